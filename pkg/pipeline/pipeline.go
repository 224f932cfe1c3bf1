// Package pipeline composes the segmentation and measurement stages into
// the per-image processing run and schedules independent images onto a
// bounded pool of workers.
//
// The pipeline is explicit function composition: every stage consumes and
// returns concrete data-model values, and within one image the stages run
// strictly sequentially. Parameters are validated once, at construction,
// so configuration errors surface before any image is processed.
package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"cellquant/internal/models"
	"cellquant/pkg/config"
	"cellquant/pkg/mask"
	"cellquant/pkg/measure"
	"cellquant/pkg/segmentation"
)

// Pipeline holds the validated stage configuration for one processing run.
// A Pipeline is safe for concurrent use: stages keep no mutable state
// between images.
type Pipeline struct {
	cfg      *config.Config
	detector *segmentation.SeedDetector
	splitter *segmentation.Splitter
	filter   *mask.Filter
	grower   *segmentation.Grower

	distanceKind string
	graphSpec    measure.GraphSpec
}

// New validates the configuration and constructs a pipeline. Any invalid
// parameter (unknown threshold method, declumping mode, filter
// measurement, distance kind or neighborhood rule, negative bound or
// non-positive scale factor) is reported here as a configuration error.
func New(cfg *config.Config) (*Pipeline, error) {
	seg := &cfg.Segmentation

	seedThreshold, err := newThreshold(seg.SeedThreshold)
	if err != nil {
		return nil, err
	}
	detector, err := segmentation.NewSeedDetector(seg.SmoothSigma, seg.MinSeedDistance, seedThreshold)
	if err != nil {
		return nil, err
	}
	splitter, err := segmentation.NewSplitter(seg.DeclumpMode)
	if err != nil {
		return nil, err
	}
	filter, err := mask.NewFilter(seg.FilterMeasurement, seg.FilterMin, seg.FilterMax)
	if err != nil {
		return nil, err
	}
	growThreshold, err := newThreshold(seg.GrowThreshold)
	if err != nil {
		return nil, err
	}
	grower, err := segmentation.NewGrower(seg.MaxExpansionDistance, seg.Regularization, growThreshold)
	if err != nil {
		return nil, err
	}
	if seg.RescaleFactor <= 0 {
		return nil, fmt.Errorf("%w: rescale factor must be positive, got %g", models.ErrConfiguration, seg.RescaleFactor)
	}
	if seg.SeedClass < 0 {
		return nil, fmt.Errorf("%w: negative seed class %d", models.ErrConfiguration, seg.SeedClass)
	}
	if len(seg.GuidanceClasses) == 0 {
		return nil, fmt.Errorf("%w: at least one guidance class is required", models.ErrConfiguration)
	}
	for _, c := range seg.GuidanceClasses {
		if c < 0 {
			return nil, fmt.Errorf("%w: negative guidance class %d", models.ErrConfiguration, c)
		}
	}

	switch cfg.Measurement.DistanceKind {
	case measure.DistanceCentroid, measure.DistanceBoundary:
	default:
		return nil, fmt.Errorf("%w: unknown distance kind %q", models.ErrConfiguration, cfg.Measurement.DistanceKind)
	}
	graphSpec := measure.GraphSpec{
		Rule:      cfg.Measurement.NeighborhoodRule,
		K:         cfg.Measurement.KNeighbors,
		Adjacency: cfg.Measurement.Adjacency,
	}
	if err := graphSpec.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:          cfg,
		detector:     detector,
		splitter:     splitter,
		filter:       filter,
		grower:       grower,
		distanceKind: cfg.Measurement.DistanceKind,
		graphSpec:    graphSpec,
	}, nil
}

func newThreshold(tc config.ThresholdConfig) (*segmentation.ThresholdPolicy, error) {
	return segmentation.NewThresholdPolicy(tc.Method, tc.Correction, tc.Min, tc.Max, tc.Value)
}

// Segment runs the full segmentation chain on one probability map:
// seed detection, declumping, object filtering, secondary growth and
// rescaling. It returns the final cell mask and the labels absorbed during
// rescaling, if any. A degenerate probability map (all zero) yields an
// all-background mask, not an error.
func (p *Pipeline) Segment(prob *models.ProbabilityMap) (*models.LabelMask, []int, error) {
	seg := &p.cfg.Segmentation
	if seg.SeedClass >= prob.Classes {
		return nil, nil, fmt.Errorf("%w: probability map has %d classes, seed class is %d",
			models.ErrShapeMismatch, prob.Classes, seg.SeedClass)
	}
	for _, c := range seg.GuidanceClasses {
		if c >= prob.Classes {
			return nil, nil, fmt.Errorf("%w: probability map has %d classes, guidance class is %d",
				models.ErrShapeMismatch, prob.Classes, c)
		}
	}

	plane := prob.Plane(seg.SeedClass)
	seeds, foreground := p.detector.Detect(plane, prob.Width, prob.Height)

	primary, err := p.splitter.Split(foreground, seeds, plane, prob.Width, prob.Height)
	if err != nil {
		return nil, nil, err
	}
	filtered := p.filter.Apply(primary)

	guidance := p.guidancePlane(prob)
	grown, err := p.grower.Grow(filtered, guidance)
	if err != nil {
		return nil, nil, err
	}

	final, absorbed, err := mask.RescaleFactor(grown, seg.RescaleFactor)
	if err != nil {
		return nil, nil, err
	}
	return final, absorbed, nil
}

// guidancePlane sums the configured probability planes into the
// combined-intensity image that guides declumping boundaries and
// secondary growth.
func (p *Pipeline) guidancePlane(prob *models.ProbabilityMap) []float64 {
	guidance := make([]float64, prob.Width*prob.Height)
	for _, c := range p.cfg.Segmentation.GuidanceClasses {
		plane := prob.Plane(c)
		for i, v := range plane {
			guidance[i] += v
		}
	}
	return guidance
}

// Measurements holds the tabular and graph outputs for one image.
type Measurements struct {
	Features    *measure.FeatureTable
	DistanceIDs []int
	Distances   *mat.SymDense
	Edges       []measure.Edge
}

// Measure computes the feature table, distance matrix and spatial graph
// for a final cell mask. img may be nil, in which case only mask-derived
// shape features are produced. A mask without cells yields empty outputs.
func (p *Pipeline) Measure(m *models.LabelMask, img *models.ChannelImage) (*Measurements, error) {
	features, err := measure.BuildFeatures(m, img)
	if err != nil {
		return nil, err
	}
	ids, distances, err := measure.Distances(m, p.distanceKind)
	if err != nil {
		return nil, err
	}
	edges, err := measure.BuildGraph(m, p.graphSpec)
	if err != nil {
		return nil, err
	}
	return &Measurements{
		Features:    features,
		DistanceIDs: ids,
		Distances:   distances,
		Edges:       edges,
	}, nil
}

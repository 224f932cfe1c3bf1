package pipeline

import (
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"

	"cellquant/internal/models"
	"cellquant/pkg/config"
)

// testConfig returns a deterministic configuration with manual thresholds
// so tests control the foreground exactly
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Segmentation.SeedClass = 0
	cfg.Segmentation.GuidanceClasses = []int{0}
	cfg.Segmentation.SmoothSigma = 0
	cfg.Segmentation.MinSeedDistance = 5
	cfg.Segmentation.SeedThreshold = config.ThresholdConfig{Method: "manual", Correction: 1, Min: 0, Max: 65535, Value: 1000}
	cfg.Segmentation.GrowThreshold = config.ThresholdConfig{Method: "manual", Correction: 1, Min: 0, Max: 65535, Value: 1000}
	cfg.Segmentation.DeclumpMode = "shape"
	cfg.Segmentation.MaxExpansionDistance = 2
	cfg.Segmentation.Regularization = 1
	cfg.Segmentation.FilterMeasurement = "area"
	cfg.Segmentation.FilterMin = 10
	cfg.Segmentation.FilterMax = 1e6
	cfg.Segmentation.RescaleFactor = 1
	cfg.Processing.NumWorkers = 2
	return cfg
}

// addBlob stamps a Gaussian-like blob onto one class of a probability map
func addBlob(p *models.ProbabilityMap, class, cx, cy int, peak, sigma float64) {
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			dx, dy := float64(x-cx), float64(y-cy)
			v := peak*math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)) + float64(p.At(x, y, class))
			if v > 65535 {
				v = 65535
			}
			p.Set(x, y, class, uint16(v))
		}
	}
}

// TestNewConfigurationErrors verifies that every invalid parameter fails
// at construction, before any image is processed
func TestNewConfigurationErrors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown threshold method", func(c *config.Config) { c.Segmentation.SeedThreshold.Method = "adaptive" }},
		{"unknown declump mode", func(c *config.Config) { c.Segmentation.DeclumpMode = "watershed" }},
		{"unknown filter measurement", func(c *config.Config) { c.Segmentation.FilterMeasurement = "perimeter" }},
		{"negative expansion distance", func(c *config.Config) { c.Segmentation.MaxExpansionDistance = -1 }},
		{"zero rescale factor", func(c *config.Config) { c.Segmentation.RescaleFactor = 0 }},
		{"no guidance classes", func(c *config.Config) { c.Segmentation.GuidanceClasses = nil }},
		{"unknown distance kind", func(c *config.Config) { c.Measurement.DistanceKind = "hausdorff" }},
		{"unknown neighborhood rule", func(c *config.Config) { c.Measurement.NeighborhoodRule = "delaunay" }},
		{"invalid knn count", func(c *config.Config) { c.Measurement.NeighborhoodRule = "knn"; c.Measurement.KNeighbors = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(cfg)
			if _, err := New(cfg); !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

// TestSegmentAllZero verifies the full degenerate scenario: an all-zero
// probability map yields an all-zero mask and empty measurements
func TestSegmentAllZero(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("failed to construct pipeline: %v", err)
	}

	prob := models.NewProbabilityMap(10, 10, 3)
	m, absorbed, err := p.Segment(prob)
	if err != nil {
		t.Fatalf("segment failed: %v", err)
	}
	if len(absorbed) != 0 {
		t.Errorf("unexpected absorbed labels %v", absorbed)
	}
	if m.Width != 10 || m.Height != 10 {
		t.Fatalf("expected a 10x10 mask, got %dx%d", m.Width, m.Height)
	}
	if m.MaxLabel() != 0 {
		t.Errorf("expected an all-zero mask, got max label %d", m.MaxLabel())
	}

	meas, err := p.Measure(m, nil)
	if err != nil {
		t.Fatalf("measure failed: %v", err)
	}
	if !meas.Features.Empty() {
		t.Errorf("expected an empty feature table")
	}
	if len(meas.DistanceIDs) != 0 || meas.Distances != nil {
		t.Errorf("expected an empty distance matrix")
	}
	if len(meas.Edges) != 0 {
		t.Errorf("expected an empty spatial graph, got %v", meas.Edges)
	}
}

// TestSegmentTwoBlobs verifies the two-blob scenario: two well-separated
// blobs produce exactly two labeled cells with no edge between them
func TestSegmentTwoBlobs(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("failed to construct pipeline: %v", err)
	}

	prob := models.NewProbabilityMap(30, 30, 3)
	addBlob(prob, 0, 8, 8, 60000, 2)
	addBlob(prob, 0, 22, 22, 60000, 2)

	m, _, err := p.Segment(prob)
	if err != nil {
		t.Fatalf("segment failed: %v", err)
	}
	labels := m.Labels()
	if len(labels) != 2 || labels[0] != 1 || labels[1] != 2 {
		t.Fatalf("expected labels [1 2], got %v", labels)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("final mask fails validation: %v", err)
	}

	meas, err := p.Measure(m, nil)
	if err != nil {
		t.Fatalf("measure failed: %v", err)
	}
	if len(meas.Features.IDs) != 2 {
		t.Errorf("expected 2 feature rows, got %d", len(meas.Features.IDs))
	}
	if len(meas.Edges) != 0 {
		t.Errorf("expected no border-contact edges between separated blobs, got %v", meas.Edges)
	}
	if meas.Distances.At(0, 1) != meas.Distances.At(1, 0) {
		t.Errorf("distance matrix not symmetric")
	}
}

// TestSegmentClassOutOfRange verifies shape validation of the configured
// probability classes against the map
func TestSegmentClassOutOfRange(t *testing.T) {
	cfg := testConfig()
	cfg.Segmentation.SeedClass = 5
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to construct pipeline: %v", err)
	}
	if _, _, err := p.Segment(models.NewProbabilityMap(10, 10, 3)); !errors.Is(err, models.ErrShapeMismatch) {
		t.Errorf("expected shape mismatch error, got %v", err)
	}
}

// writeGray16TIFF stores a probability plane as a 16-bit grayscale TIFF
func writeGray16TIFF(t *testing.T, path string, p *models.ProbabilityMap) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			off := img.PixOffset(x, y)
			v := p.At(x, y, 0)
			img.Pix[off] = uint8(v >> 8)
			img.Pix[off+1] = uint8(v)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

// TestRunBatchIsolation verifies that a failing image does not abort the
// batch and leaves no partial artifacts behind
func TestRunBatchIsolation(t *testing.T) {
	dir := t.TempDir()
	probDir := filepath.Join(dir, "probab")
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(probDir, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	prob := models.NewProbabilityMap(30, 30, 1)
	addBlob(prob, 0, 15, 15, 60000, 2)
	writeGray16TIFF(t, filepath.Join(probDir, "img1.tiff"), prob)

	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("failed to construct pipeline: %v", err)
	}

	items := []Item{
		{ID: "img1", ProbabilitiesPath: filepath.Join(probDir, "img1.tiff")},
		{ID: "missing", ProbabilitiesPath: filepath.Join(probDir, "missing.tiff")},
	}
	results := p.RunBatch(items, nil, outDir)

	if results[0].Failed() {
		t.Fatalf("img1 failed: stage %s: %v", results[0].Stage, results[0].Err)
	}
	if results[0].Cells != 1 {
		t.Errorf("expected 1 cell for img1, got %d", results[0].Cells)
	}
	if !results[1].Failed() || results[1].Stage != "load" {
		t.Errorf("expected the missing image to fail at load, got %+v", results[1])
	}

	// The successful image produced its full artifact set.
	for _, artifact := range []string{
		filepath.Join(outDir, "masks", "img1.tiff"),
		filepath.Join(outDir, "features", "img1.csv"),
		filepath.Join(outDir, "distances", "img1.csv"),
		filepath.Join(outDir, "graphs", "img1.csv"),
	} {
		if _, err := os.Stat(artifact); err != nil {
			t.Errorf("missing artifact %s: %v", artifact, err)
		}
	}

	// The failed image produced nothing.
	if _, err := os.Stat(filepath.Join(outDir, "masks", "missing.tiff")); !os.IsNotExist(err) {
		t.Errorf("failed image left a mask behind")
	}
}

package pipeline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"cellquant/internal/models"
	"cellquant/pkg/imgio"
)

// Item identifies one image to process: its probability map on disk and,
// optionally, the directory holding its per-channel intensity TIFFs.
type Item struct {
	ID                string
	ProbabilitiesPath string
	ImageDir          string
}

// Result reports the outcome for one image. A failed image carries the
// stage that failed and the error; other images in the batch are
// unaffected.
type Result struct {
	ID    string
	Stage string
	Err   error

	// Cells is the number of objects in the final mask.
	Cells int

	// Absorbed lists labels lost to rescaling absorption, surfaced as a
	// warning rather than an error.
	Absorbed []int
}

// Failed reports whether the image's pipeline was aborted.
func (r Result) Failed() bool { return r.Err != nil }

// RunBatch processes independent images on NumWorkers goroutines and
// writes, per successful image, the cell mask plus the feature, distance
// and graph CSVs under outDir. Artifacts are staged and renamed in one
// step at the end of each image, so a failed image leaves no partial
// outputs behind. The returned results are ordered like items.
func (p *Pipeline) RunBatch(items []Item, panel *imgio.Panel, outDir string) []Result {
	for _, sub := range []string{"masks", "features", "distances", "graphs"} {
		if err := os.MkdirAll(filepath.Join(outDir, sub), 0755); err != nil {
			results := make([]Result, len(items))
			for i, item := range items {
				results[i] = Result{ID: item.ID, Stage: "setup", Err: err}
			}
			return results
		}
	}

	workers := p.cfg.Processing.NumWorkers
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(items))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.processOne(items[i], panel, outDir)
			}
		}()
	}
	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, r := range results {
		if r.Failed() {
			log.Printf("image %s: stage %s failed: %v", r.ID, r.Stage, r.Err)
		} else if len(r.Absorbed) > 0 {
			log.Printf("image %s: warning: labels %v absorbed during rescaling", r.ID, r.Absorbed)
		}
	}
	return results
}

// processOne runs the full pipeline for a single image. Every failure is
// tagged with the stage it occurred in so batch logs identify both the
// image and the failing step.
func (p *Pipeline) processOne(item Item, panel *imgio.Panel, outDir string) Result {
	res := Result{ID: item.ID}

	prob, err := imgio.ReadProbabilities(item.ProbabilitiesPath)
	if err != nil {
		res.Stage, res.Err = "load", err
		return res
	}

	cellMask, absorbed, err := p.Segment(prob)
	if err != nil {
		res.Stage, res.Err = "segment", err
		return res
	}
	res.Absorbed = absorbed
	res.Cells = len(cellMask.Labels())

	img, err := p.loadImage(item, panel, cellMask)
	if err != nil {
		res.Stage, res.Err = "load", err
		return res
	}

	meas, err := p.Measure(cellMask, img)
	if err != nil {
		res.Stage, res.Err = "measure", err
		return res
	}

	staged := newArtifactSet()
	err = staged.write(filepath.Join(outDir, "masks", item.ID+".tiff"), func(tmp string) error {
		return imgio.WriteMask(tmp, cellMask)
	})
	if err == nil {
		err = staged.write(filepath.Join(outDir, "features", item.ID+".csv"), func(tmp string) error {
			return imgio.WriteFeatures(tmp, meas.Features)
		})
	}
	if err == nil {
		err = staged.write(filepath.Join(outDir, "distances", item.ID+".csv"), func(tmp string) error {
			return imgio.WriteDistances(tmp, meas.DistanceIDs, meas.Distances)
		})
	}
	if err == nil {
		err = staged.write(filepath.Join(outDir, "graphs", item.ID+".csv"), func(tmp string) error {
			return imgio.WriteGraph(tmp, meas.Edges)
		})
	}
	if err == nil {
		err = staged.commit()
	}
	if err != nil {
		staged.discard()
		res.Stage, res.Err = "write", err
		return res
	}
	return res
}

// loadImage reads the intensity channels for an item and validates their
// shape against the final mask. Items without an image directory measure
// shape features only.
func (p *Pipeline) loadImage(item Item, panel *imgio.Panel, m *models.LabelMask) (*models.ChannelImage, error) {
	if item.ImageDir == "" || panel == nil {
		return nil, nil
	}
	img, err := imgio.ReadChannels(item.ImageDir, panel.Names())
	if err != nil {
		return nil, err
	}
	if !m.SameShape(img.Width, img.Height) {
		return nil, fmt.Errorf("%w: image is %dx%d, final mask is %dx%d",
			models.ErrShapeMismatch, img.Width, img.Height, m.Width, m.Height)
	}
	return img, nil
}

// artifactSet stages output files under temporary names so that the full
// set of per-image artifacts appears at once, or not at all.
type artifactSet struct {
	renames [][2]string
}

func newArtifactSet() *artifactSet {
	return &artifactSet{}
}

// write produces one artifact at a temporary path and records the rename
// to its final path for commit.
func (a *artifactSet) write(path string, fn func(tmp string) error) error {
	tmp := path + ".tmp"
	if err := fn(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	a.renames = append(a.renames, [2]string{tmp, path})
	return nil
}

// commit moves every staged artifact to its final path. If any rename
// fails, artifacts already moved are removed again so the image never
// exposes a partial set.
func (a *artifactSet) commit() error {
	for i, r := range a.renames {
		if err := os.Rename(r[0], r[1]); err != nil {
			for _, done := range a.renames[:i] {
				os.Remove(done[1])
			}
			a.renames = a.renames[i:]
			return fmt.Errorf("failed to finalize %s: %w", r[1], err)
		}
	}
	a.renames = nil
	return nil
}

// discard removes any staged artifacts that were not committed.
func (a *artifactSet) discard() {
	for _, r := range a.renames {
		os.Remove(r[0])
	}
	a.renames = nil
}

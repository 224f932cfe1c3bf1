package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"cellquant/pkg/config"
	"cellquant/pkg/imgio"
	"cellquant/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	probDir := flag.String("probab", "", "Directory containing probability map TIFFs")
	imgDir := flag.String("img", "", "Directory containing per-image channel directories (optional)")
	panelFile := flag.String("panel", "panel.csv", "Path to the panel CSV")
	outDir := flag.String("dest", "out", "Output directory for masks and measurement CSVs")
	configPath := flag.String("config", "cellquant.yaml", "Path to the YAML configuration file")
	workers := flag.Int("workers", 0, "Number of images processed concurrently (default: config value or all cores)")
	flag.Parse()

	// Validate inputs
	if *probDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration, falling back to defaults when the file is absent
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *workers > 0 {
		cfg.Processing.NumWorkers = *workers
	}
	if cfg.Processing.NumWorkers <= 0 {
		cfg.Processing.NumWorkers = runtime.NumCPU()
	}

	// Construct the pipeline; configuration errors surface here, before
	// any image is touched
	p, err := pipeline.New(cfg)
	if err != nil {
		log.Fatalf("Invalid pipeline configuration: %v", err)
	}

	// Load the panel when intensity images are measured
	var panel *imgio.Panel
	if *imgDir != "" {
		panel, err = imgio.ReadPanel(*panelFile)
		if err != nil {
			log.Fatalf("Failed to read panel: %v", err)
		}
	}

	// Discover probability maps; one item per image
	items, err := discoverItems(*probDir, *imgDir)
	if err != nil {
		log.Fatalf("Failed to discover probability maps: %v", err)
	}
	if len(items) == 0 {
		log.Fatalf("No probability map TIFFs found in %s", *probDir)
	}

	fmt.Printf("Processing %d images on %d workers...\n", len(items), cfg.Processing.NumWorkers)
	startTime := time.Now()
	results := p.RunBatch(items, panel, *outDir)
	elapsed := time.Since(startTime)

	// Summarize the batch
	failed := 0
	cells := 0
	for _, r := range results {
		if r.Failed() {
			failed++
			continue
		}
		cells += r.Cells
		if cfg.Output.Verbose {
			fmt.Printf("  %s: %d cells\n", r.ID, r.Cells)
		}
	}
	fmt.Printf("\nCompleted in %.2f seconds: %d images processed, %d failed, %d cells total\n",
		elapsed.Seconds(), len(results)-failed, failed, cells)
	fmt.Printf("Outputs written to: %s\n", *outDir)

	if failed > 0 {
		os.Exit(1)
	}
}

// discoverItems builds one batch item per probability TIFF found in
// probDir, sorted by filename. When imgDir is given, each item's channel
// directory is imgDir/<id>.
func discoverItems(probDir, imgDir string) ([]pipeline.Item, error) {
	entries, err := os.ReadDir(probDir)
	if err != nil {
		return nil, err
	}
	var items []pipeline.Item
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".tiff") || strings.HasSuffix(name, ".tif")) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimSuffix(name, ".tif"), ".tiff")
		item := pipeline.Item{
			ID:                id,
			ProbabilitiesPath: filepath.Join(probDir, name),
		}
		if imgDir != "" {
			item.ImageDir = filepath.Join(imgDir, id)
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Package config provides configuration loading and management for
// cellquant. It handles loading configuration from YAML files and
// provides default values for every pipeline parameter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ThresholdConfig holds one global threshold policy: the method, a
// multiplicative correction factor and clip bounds. The manual method
// uses Value directly.
type ThresholdConfig struct {
	Method     string  `yaml:"method"`
	Correction float64 `yaml:"correction"`
	Min        float64 `yaml:"min"`
	Max        float64 `yaml:"max"`
	Value      float64 `yaml:"value"`
}

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Segmentation parameters
	Segmentation struct {
		// SeedClass is the probability plane used for seed detection
		SeedClass int `yaml:"seedClass"`

		// GuidanceClasses are the probability planes summed into the
		// combined-intensity guidance image for declumping and growth
		GuidanceClasses []int `yaml:"guidanceClasses"`

		// SmoothSigma is the Gaussian sigma applied before maxima detection
		SmoothSigma float64 `yaml:"smoothSigma"`

		// MinSeedDistance is the minimum separation between seeds in pixels
		MinSeedDistance float64 `yaml:"minSeedDistance"`

		// SeedThreshold bounds the seed foreground region
		SeedThreshold ThresholdConfig `yaml:"seedThreshold"`

		// DeclumpMode selects the declumping metric: shape or intensity
		DeclumpMode string `yaml:"declumpMode"`

		// GrowThreshold bounds secondary object growth
		GrowThreshold ThresholdConfig `yaml:"growThreshold"`

		// MaxExpansionDistance bounds growth in pixels from the primary object
		MaxExpansionDistance float64 `yaml:"maxExpansionDistance"`

		// Regularization balances distance against intensity during growth
		Regularization float64 `yaml:"regularization"`

		// FilterMeasurement, FilterMin and FilterMax configure the object filter
		FilterMeasurement string  `yaml:"filterMeasurement"`
		FilterMin         float64 `yaml:"filterMin"`
		FilterMax         float64 `yaml:"filterMax"`

		// RescaleFactor maps the final mask back to image resolution
		RescaleFactor float64 `yaml:"rescaleFactor"`
	} `yaml:"segmentation"`

	// Measurement parameters
	Measurement struct {
		// DistanceKind selects the cell distance: centroid or boundary
		DistanceKind string `yaml:"distanceKind"`

		// NeighborhoodRule selects graph adjacency: border or knn
		NeighborhoodRule string `yaml:"neighborhoodRule"`

		// Adjacency is the pixel connectivity for the border rule (4 or 8)
		Adjacency int `yaml:"adjacency"`

		// KNeighbors is the neighbor count for the knn rule
		KNeighbors int `yaml:"kNeighbors"`
	} `yaml:"measurement"`

	// Processing parameters
	Processing struct {
		// NumWorkers is the number of images processed concurrently
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default segmentation parameters
	cfg.Segmentation.SeedClass = 0
	cfg.Segmentation.GuidanceClasses = []int{0, 1}
	cfg.Segmentation.SmoothSigma = 1.0
	cfg.Segmentation.MinSeedDistance = 5.0
	cfg.Segmentation.SeedThreshold = ThresholdConfig{Method: "otsu", Correction: 1.0, Min: 0, Max: 65535}
	cfg.Segmentation.DeclumpMode = "shape"
	cfg.Segmentation.GrowThreshold = ThresholdConfig{Method: "otsu", Correction: 1.0, Min: 0, Max: 65535}
	cfg.Segmentation.MaxExpansionDistance = 10.0
	cfg.Segmentation.Regularization = 0.05
	cfg.Segmentation.FilterMeasurement = "area"
	cfg.Segmentation.FilterMin = 10
	cfg.Segmentation.FilterMax = 100000
	cfg.Segmentation.RescaleFactor = 1.0

	// Set default measurement parameters
	cfg.Measurement.DistanceKind = "centroid"
	cfg.Measurement.NeighborhoodRule = "border"
	cfg.Measurement.Adjacency = 8
	cfg.Measurement.KNeighbors = 5

	// Set default processing parameters
	cfg.Processing.NumWorkers = runtime.NumCPU()

	// Set default output parameters
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Package config carries the corpus-wide tunables for feature extraction and
// search. A Config value is fixed at engine construction; signatures computed
// under one Config must never be compared with signatures from another.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"imagesim/types"
)

// HashBits is the perceptual hash width. It is fixed: the hash is derived
// from an 8x8 DCT block and always occupies exactly 64 bits.
const HashBits = 64

// Bin count limits for the color histogram.
const (
	MinBins = 2
	MaxBins = 256
)

// EnvPrefix is the environment variable prefix used by FromEnv.
const EnvPrefix = "IMAGESIM"

// Config holds all extraction and search tunables. There is no ambient
// global configuration; every engine instance receives its own value.
type Config struct {
	// Bins is the per-channel bin count of the 3D color histogram. The
	// flattened histogram has Bins^3 cells.
	Bins int `envconfig:"BINS" default:"32"`

	// GridSize is the edge-feature grid dimension. The edge vector has
	// GridSize^2 cells.
	GridSize int `envconfig:"GRID_SIZE" default:"16"`

	// ResizeDim is the square dimension images are scaled to before the
	// histogram and edge extractors run.
	ResizeDim int `envconfig:"RESIZE_DIM" default:"256"`

	// Threshold is the default minimum combined score for search matches,
	// applied when a query leaves its own threshold unset.
	Threshold float64 `envconfig:"THRESHOLD" default:"0.6"`

	// Default feature weights, applied when a query carries none.
	WeightPHash float64 `envconfig:"WEIGHT_PHASH" default:"0.4"`
	WeightColor float64 `envconfig:"WEIGHT_COLOR" default:"0.3"`
	WeightEdge  float64 `envconfig:"WEIGHT_EDGE" default:"0.3"`

	// Prefilter enables the Hamming-distance candidate cut during search.
	// It is a pure optimization and never changes the result set.
	Prefilter bool `envconfig:"PREFILTER" default:"true"`

	// RebuildWorkers bounds the concurrent extractions during a bulk
	// rebuild. Zero selects a CPU-derived default.
	RebuildWorkers int `envconfig:"REBUILD_WORKERS" default:"0"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Bins:        32,
		GridSize:    16,
		ResizeDim:   256,
		Threshold:   0.6,
		WeightPHash: 0.4,
		WeightColor: 0.3,
		WeightEdge:  0.3,
		Prefilter:   true,
	}
}

// FromEnv loads configuration from IMAGESIM_* environment variables,
// reading a .env file first when one is present.
func FromEnv() (Config, error) {
	// Missing .env files are fine; explicit environment always wins.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Weights returns the default feature weights as a types.Weights value.
func (c Config) Weights() types.Weights {
	return types.Weights{
		PHash: c.WeightPHash,
		Color: c.WeightColor,
		Edge:  c.WeightEdge,
	}
}

// Validate checks every tunable and returns a ConfigurationError for the
// first field out of range.
func (c Config) Validate() error {
	if c.Bins < MinBins || c.Bins > MaxBins {
		return types.NewConfigurationError("bins",
			fmt.Sprintf("must be in [%d,%d], got %d", MinBins, MaxBins, c.Bins))
	}
	if c.GridSize < 1 {
		return types.NewConfigurationError("grid_size",
			fmt.Sprintf("must be positive, got %d", c.GridSize))
	}
	if c.ResizeDim < 1 {
		return types.NewConfigurationError("resize_dim",
			fmt.Sprintf("must be positive, got %d", c.ResizeDim))
	}
	if c.GridSize > c.ResizeDim {
		return types.NewConfigurationError("grid_size",
			fmt.Sprintf("%d exceeds the %dx%d edge map", c.GridSize, c.ResizeDim, c.ResizeDim))
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return types.NewConfigurationError("threshold",
			fmt.Sprintf("must be in [0,1], got %g", c.Threshold))
	}
	if c.WeightPHash < 0 || c.WeightColor < 0 || c.WeightEdge < 0 {
		return types.NewConfigurationError("weights", "must be non-negative")
	}
	if c.RebuildWorkers < 0 {
		return types.NewConfigurationError("rebuild_workers",
			fmt.Sprintf("must be non-negative, got %d", c.RebuildWorkers))
	}
	return nil
}

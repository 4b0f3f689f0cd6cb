package imageprocessor

import (
	"image"

	"imagesim/config"
	"imagesim/types"
)

// FeatureExtractor is the capability implemented by each feature algorithm.
// The engine holds an ordered list of extractors and a matching weight per
// feature; adding a new feature means adding a variant and a weight slot.
type FeatureExtractor interface {
	// Name returns the feature identifier used in per-feature score maps
	// and error reporting.
	Name() string

	// Extract computes the feature from img and writes it into rec.
	// Extraction touches only its own input and output, so concurrent
	// calls for independent images need no coordination.
	Extract(img image.Image, rec *types.FeatureRecord) error

	// Similarity compares the feature across two records. Results lie
	// in [0,1], where 1 means identical.
	Similarity(a, b *types.FeatureRecord) (float64, error)
}

// NewExtractors builds the ordered extractor list for a configuration:
// perceptual hash, color histogram, edge features. The order is fixed and
// matches the weight order used by the engine.
func NewExtractors(cfg config.Config) ([]FeatureExtractor, error) {
	histogram, err := NewColorHistogramExtractor(cfg.Bins, cfg.ResizeDim)
	if err != nil {
		return nil, err
	}
	edges, err := NewEdgeFeatureExtractor(cfg.GridSize, cfg.ResizeDim)
	if err != nil {
		return nil, err
	}
	return []FeatureExtractor{
		NewPerceptualHashExtractor(),
		histogram,
		edges,
	}, nil
}

package types

import (
	"image"
	"time"
)

// Feature names used as keys in per-feature score maps and metric labels.
const (
	FeaturePHash = "phash"
	FeatureColor = "color"
	FeatureEdge  = "edge"
)

// Weights holds the relative importance of each feature when combining
// per-feature similarities into one score. Weights must be non-negative;
// they do not need to sum to 1.
type Weights struct {
	PHash float64 `json:"phash"`
	Color float64 `json:"color"`
	Edge  float64 `json:"edge"`
}

// Sum returns the total weight mass.
func (w Weights) Sum() float64 {
	return w.PHash + w.Color + w.Edge
}

// FeatureRecord holds the extracted signatures for one indexed media item.
// Bins and GridSize record the configuration the vectors were computed under;
// records computed under a different configuration must never be compared.
type FeatureRecord struct {
	ID             string    `json:"id"`
	MediaRef       string    `json:"media_ref"`
	PHash          uint64    `json:"phash"`
	ColorHistogram []float32 `json:"color_histogram,omitempty"`
	EdgeFeatures   []float32 `json:"edge_features,omitempty"`
	Bins           int       `json:"bins"`
	GridSize       int       `json:"grid_size"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record. Stores hand out clones so callers
// can never mutate persisted state through a returned pointer.
func (r *FeatureRecord) Clone() *FeatureRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ColorHistogram != nil {
		c.ColorHistogram = make([]float32, len(r.ColorHistogram))
		copy(c.ColorHistogram, r.ColorHistogram)
	}
	if r.EdgeFeatures != nil {
		c.EdgeFeatures = make([]float32, len(r.EdgeFeatures))
		copy(c.EdgeFeatures, r.EdgeFeatures)
	}
	return &c
}

// SearchQuery describes one similarity search.
type SearchQuery struct {
	// Image is the decoded query image. Decoding bytes into an image is the
	// caller's responsibility.
	Image image.Image

	// Threshold is the minimum combined score a record must reach to be
	// included in the results, in [0,1].
	Threshold float64

	// Weights control how the three per-feature similarities are combined.
	Weights Weights

	// Limit caps the number of results returned after Offset is applied.
	// A limit of 0 means no limit.
	Limit int

	// Offset skips the given number of ranked results.
	Offset int
}

// SearchResult is one ranked match.
type SearchResult struct {
	Record *FeatureRecord `json:"record"`

	// Score is the weighted combination of the per-feature similarities,
	// in [0,1].
	Score float64 `json:"score"`

	// FeatureScores holds the individual similarities keyed by feature name.
	FeatureScores map[string]float64 `json:"feature_scores"`
}

// IndexStats summarizes the indexed corpus.
type IndexStats struct {
	TotalIndexed int       `json:"total_indexed"`
	LastUpdated  time.Time `json:"last_updated"`
}

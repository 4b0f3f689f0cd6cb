package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"imagesim/metrics"
	"imagesim/types"
	"imagesim/vectormath"

	"go.uber.org/zap"
)

// Search runs a weighted linear scan over the store and returns every
// record whose combined score clears the query threshold, best first.
// No matches is an empty result, never an error.
func (e *Engine) Search(ctx context.Context, query types.SearchQuery) ([]types.SearchResult, error) {
	start := time.Now()
	defer func() {
		metrics.SearchDurationSeconds.Observe(time.Since(start).Seconds())
	}()
	metrics.SearchesTotal.Inc()

	if err := e.validateQuery(query); err != nil {
		return nil, err
	}

	// A zero-value weight set means "use the configured defaults".
	if query.Weights == (types.Weights{}) {
		query.Weights = e.cfg.Weights()
	}
	weights := []float64{query.Weights.PHash, query.Weights.Color, query.Weights.Edge}
	weightSum := query.Weights.Sum()

	// Query features are extracted exactly once, then compared against
	// every candidate.
	queryRec := &types.FeatureRecord{}
	for _, ex := range e.extractors {
		if err := ex.Extract(query.Image, queryRec); err != nil {
			return nil, fmt.Errorf("extracting %s from query image: %w", ex.Name(), err)
		}
	}

	var results []types.SearchResult
	err := e.store.Iterate(ctx, func(rec *types.FeatureRecord) error {
		// Records written under another configuration are flagged and
		// skipped, never silently compared.
		if rec.Bins != e.cfg.Bins || rec.GridSize != e.cfg.GridSize {
			e.flagMismatch(rec)
			return nil
		}

		scores := make([]float64, 0, len(e.extractors))
		featureScores := make(map[string]float64, len(e.extractors))
		for i, ex := range e.extractors {
			score, err := ex.Similarity(queryRec, rec)
			if err != nil {
				if types.IsConfiguration(err) {
					e.flagMismatch(rec)
					return nil
				}
				return fmt.Errorf("comparing %s for %s: %w", ex.Name(), rec.MediaRef, err)
			}
			scores = append(scores, score)
			featureScores[ex.Name()] = score

			// After the cheap hash comparison, the combined score is
			// bounded by (w₀·s₀ + Σ remaining weights)/Σw even if every
			// other feature matched perfectly. Below the threshold the
			// record cannot qualify, so the vector comparisons are
			// skipped. The bound is exact: the result set and ranking
			// are identical with the filter on or off.
			if i == 0 && e.cfg.Prefilter && weightSum > 0 {
				bound := weights[0] * score
				for _, w := range weights[1:] {
					bound += w
				}
				bound /= weightSum
				if bound < query.Threshold {
					metrics.PrefilterSkippedTotal.Inc()
					return nil
				}
			}
		}

		combined, err := vectormath.WeightedCombine(scores, weights)
		if err != nil {
			return err
		}
		if combined < query.Threshold {
			return nil
		}

		results = append(results, types.SearchResult{
			Record:        rec,
			Score:         combined,
			FeatureScores: featureScores,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Best first; ties resolve by recency, then by reference, so equal
	// scores always order the same way.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Record.UpdatedAt.Equal(results[j].Record.UpdatedAt) {
			return results[i].Record.UpdatedAt.After(results[j].Record.UpdatedAt)
		}
		return results[i].Record.MediaRef < results[j].Record.MediaRef
	})

	e.logger.Debug("search complete",
		zap.Int("matches", len(results)),
		zap.Float64("threshold", query.Threshold),
		zap.Duration("took", time.Since(start)))

	return paginate(results, query.Offset, query.Limit), nil
}

// validateQuery rejects queries the scan could not execute meaningfully.
func (e *Engine) validateQuery(query types.SearchQuery) error {
	if query.Image == nil {
		return types.NewInvalidImageError(0, 0, "query image is required")
	}
	if query.Threshold < 0 || query.Threshold > 1 {
		return types.NewConfigurationError("threshold",
			fmt.Sprintf("threshold %v outside [0,1]", query.Threshold))
	}
	if query.Weights.PHash < 0 || query.Weights.Color < 0 || query.Weights.Edge < 0 {
		return types.NewConfigurationError("weights", "weights must be non-negative")
	}
	if query.Limit < 0 {
		return types.NewConfigurationError("limit", fmt.Sprintf("limit %d is negative", query.Limit))
	}
	if query.Offset < 0 {
		return types.NewConfigurationError("offset", fmt.Sprintf("offset %d is negative", query.Offset))
	}
	return nil
}

// paginate applies offset and limit; limit 0 means unbounded.
func paginate(results []types.SearchResult, offset, limit int) []types.SearchResult {
	if offset > 0 {
		if offset >= len(results) {
			return []types.SearchResult{}
		}
		results = results[offset:]
	}
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

// flagMismatch records a stored record that needs re-indexing before it
// can be compared again.
func (e *Engine) flagMismatch(rec *types.FeatureRecord) {
	metrics.RecordsSkippedTotal.WithLabelValues("config_mismatch").Inc()
	e.logger.Warn("skipping record indexed under a different configuration, re-index required",
		zap.String("mediaRef", rec.MediaRef),
		zap.Int("recordBins", rec.Bins),
		zap.Int("recordGridSize", rec.GridSize),
		zap.Int("bins", e.cfg.Bins),
		zap.Int("gridSize", e.cfg.GridSize))
}

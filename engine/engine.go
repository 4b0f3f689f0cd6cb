// Package engine implements the similarity search engine: single-image
// indexing, removal, weighted linear-scan search, bulk rebuild and index
// statistics.
package engine

import (
	"context"
	"fmt"
	"image"
	"time"

	"imagesim/config"
	"imagesim/imageprocessor"
	"imagesim/metrics"
	"imagesim/store"
	"imagesim/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine ties a fixed configuration, an ordered extractor list and a
// record store together. It holds no other state, so one engine instance
// serves concurrent callers.
type Engine struct {
	cfg        config.Config
	store      store.Store
	extractors []imageprocessor.FeatureExtractor
	logger     *zap.Logger
}

// New creates an engine for the given configuration and store. The
// configuration is validated once here; every later operation can rely
// on it.
func New(cfg config.Config, st store.Store, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, types.NewConfigurationError("store", "a record store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	extractors, err := imageprocessor.NewExtractors(cfg)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		store:      st,
		extractors: extractors,
		logger:     logger,
	}, nil
}

// Config returns the engine's immutable configuration.
func (e *Engine) Config() config.Config { return e.cfg }

// IndexImage extracts all features from img and upserts the record keyed
// by mediaRef. Re-indexing an existing reference replaces the record
// wholesale but preserves its identity: ID and CreatedAt survive, only
// UpdatedAt and the features change.
func (e *Engine) IndexImage(ctx context.Context, mediaRef string, img image.Image) (*types.FeatureRecord, error) {
	start := time.Now()
	defer func() {
		metrics.IndexDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	if mediaRef == "" {
		metrics.ImagesIndexedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("media reference must not be empty")
	}

	rec := &types.FeatureRecord{MediaRef: mediaRef}
	for _, ex := range e.extractors {
		if err := ex.Extract(img, rec); err != nil {
			metrics.ImagesIndexedTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("extracting %s for %s: %w", ex.Name(), mediaRef, err)
		}
	}

	now := time.Now().UTC()
	rec.UpdatedAt = now

	existing, err := e.store.Get(ctx, mediaRef)
	switch {
	case err == nil:
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	case types.IsNotFound(err):
		rec.ID = uuid.NewString()
		rec.CreatedAt = now
	case types.IsConfiguration(err):
		// The stored record predates a configuration change. Re-indexing
		// is exactly the cure, so replace it under a fresh identity.
		rec.ID = uuid.NewString()
		rec.CreatedAt = now
	default:
		metrics.ImagesIndexedTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := e.store.Upsert(ctx, rec); err != nil {
		metrics.ImagesIndexedTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.ImagesIndexedTotal.WithLabelValues("success").Inc()
	e.logger.Debug("indexed image",
		zap.String("mediaRef", mediaRef),
		zap.String("id", rec.ID),
		zap.Duration("took", time.Since(start)))
	return rec, nil
}

// RemoveIndex deletes the record for mediaRef. Removing a reference that
// was never indexed is a no-op, not an error.
func (e *Engine) RemoveIndex(ctx context.Context, mediaRef string) error {
	if mediaRef == "" {
		return fmt.Errorf("media reference must not be empty")
	}
	if err := e.store.Delete(ctx, mediaRef); err != nil {
		return err
	}
	e.logger.Debug("removed index entry", zap.String("mediaRef", mediaRef))
	return nil
}

// GetStats reports the number of indexed records and the most recent
// update time. The count comes from the store's fast path when it has
// one; the update time costs one scan on a non-empty corpus.
func (e *Engine) GetStats(ctx context.Context) (*types.IndexStats, error) {
	stats := &types.IndexStats{}

	counter, hasCounter := e.store.(store.Counter)
	if hasCounter {
		n, err := counter.Count(ctx)
		if err != nil {
			return nil, err
		}
		stats.TotalIndexed = n
		if n == 0 {
			return stats, nil
		}
	}

	total := 0
	err := e.store.Iterate(ctx, func(rec *types.FeatureRecord) error {
		total++
		if rec.UpdatedAt.After(stats.LastUpdated) {
			stats.LastUpdated = rec.UpdatedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !hasCounter {
		stats.TotalIndexed = total
	}
	return stats, nil
}

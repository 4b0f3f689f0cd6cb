package engine

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sort"
	"sync"
	"time"

	"imagesim/metrics"

	"go.uber.org/zap"
)

// ImageLoader resolves a media reference to a decoded image during a
// rebuild. Format decoding and retrieval belong to the caller; the engine
// only consumes the result.
type ImageLoader interface {
	Load(ctx context.Context, mediaRef string) (image.Image, error)
}

// LoaderFunc adapts a plain function to the ImageLoader interface.
type LoaderFunc func(ctx context.Context, mediaRef string) (image.Image, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, mediaRef string) (image.Image, error) {
	return f(ctx, mediaRef)
}

// FailedRef records one reference that could not be rebuilt.
type FailedRef struct {
	MediaRef string
	Err      error
}

// RebuildReport summarizes a bulk rebuild.
type RebuildReport struct {
	// Total is the number of references submitted.
	Total int
	// Succeeded counts references indexed without error.
	Succeeded int
	// Failed lists the references that errored, sorted by reference.
	Failed []FailedRef
	// Duration is the wall-clock time of the whole batch.
	Duration time.Duration
}

type rebuildResult struct {
	mediaRef string
	err      error
}

// RebuildIndex re-extracts and re-stores every given reference. Items are
// processed independently by a bounded worker pool: one corrupt image
// fails that item alone, never the batch. Cancelling the context stops
// new items from starting; the report then covers only what ran, and the
// context error is returned alongside it.
func (e *Engine) RebuildIndex(ctx context.Context, mediaRefs []string, loader ImageLoader) (*RebuildReport, error) {
	if loader == nil {
		return nil, fmt.Errorf("image loader is required")
	}

	workers := e.cfg.RebuildWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	start := time.Now()
	e.logger.Info("rebuild started",
		zap.Int("refs", len(mediaRefs)),
		zap.Int("workers", workers))

	var wg sync.WaitGroup
	resultsChan := make(chan rebuildResult, len(mediaRefs))
	semaphore := make(chan struct{}, workers)

launch:
	for _, ref := range mediaRefs {
		if ctx.Err() != nil {
			break
		}
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			break launch
		}

		wg.Add(1)
		go func(ref string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			resultsChan <- rebuildResult{mediaRef: ref, err: e.rebuildOne(ctx, ref, loader)}
		}(ref)
	}

	wg.Wait()
	close(resultsChan)

	report := &RebuildReport{Total: len(mediaRefs)}
	for result := range resultsChan {
		if result.err != nil {
			metrics.RebuildItemsTotal.WithLabelValues("error").Inc()
			report.Failed = append(report.Failed, FailedRef{MediaRef: result.mediaRef, Err: result.err})
			e.logger.Warn("rebuild item failed",
				zap.String("mediaRef", result.mediaRef),
				zap.Error(result.err))
			continue
		}
		metrics.RebuildItemsTotal.WithLabelValues("success").Inc()
		report.Succeeded++
	}
	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].MediaRef < report.Failed[j].MediaRef
	})
	report.Duration = time.Since(start)

	e.logger.Info("rebuild complete",
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("took", report.Duration))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// rebuildOne loads and re-indexes a single reference. Failures stay
// scoped to the item.
func (e *Engine) rebuildOne(ctx context.Context, mediaRef string, loader ImageLoader) error {
	img, err := loader.Load(ctx, mediaRef)
	if err != nil {
		return fmt.Errorf("loading %s: %w", mediaRef, err)
	}
	_, err = e.IndexImage(ctx, mediaRef, img)
	return err
}

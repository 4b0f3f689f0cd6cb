package store

import (
	"context"
	"fmt"
	"sync"

	"imagesim/types"
)

// MemoryStore keeps records in a mutex-guarded map. It backs tests and
// small corpora; records are deep-copied on the way in and out so callers
// can never mutate stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*types.FeatureRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*types.FeatureRecord),
	}
}

// Get returns a copy of the record for mediaRef.
func (s *MemoryStore) Get(ctx context.Context, mediaRef string) (*types.FeatureRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[mediaRef]
	if !ok {
		return nil, types.ErrNotFound
	}
	return rec.Clone(), nil
}

// Upsert stores a copy of rec under its media reference.
func (s *MemoryStore) Upsert(ctx context.Context, rec *types.FeatureRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.MediaRef == "" {
		return types.NewStoreError("upsert", fmt.Errorf("record is missing a media reference"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.MediaRef] = rec.Clone()
	return nil
}

// Delete removes the record for mediaRef, if any.
func (s *MemoryStore) Delete(ctx context.Context, mediaRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, mediaRef)
	return nil
}

// Iterate calls fn for every record in a point-in-time snapshot, so a
// long scan never blocks writers.
func (s *MemoryStore) Iterate(ctx context.Context, fn func(rec *types.FeatureRecord) error) error {
	s.mu.RLock()
	snapshot := make([]*types.FeatureRecord, 0, len(s.records))
	for _, rec := range s.records {
		snapshot = append(snapshot, rec.Clone())
	}
	s.mu.RUnlock()

	for _, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Count reports the number of stored records.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error { return nil }

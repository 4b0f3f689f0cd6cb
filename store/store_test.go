package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"imagesim/logging"
	"imagesim/types"
)

const (
	testBins     = 2
	testGridSize = 2
)

func makeRecord(ref string, seed float32) *types.FeatureRecord {
	now := time.Now().UTC()
	return &types.FeatureRecord{
		ID:             "test-" + ref,
		MediaRef:       ref,
		PHash:          0xabcdef0123456789,
		ColorHistogram: []float32{seed, 1 - seed, 0, 0, 0, 0, 0, 0},
		EdgeFeatures:   []float32{1, seed, 0, 0.5},
		Bins:           testBins,
		GridSize:       testGridSize,
		CreatedAt:      now.Add(-time.Hour),
		UpdatedAt:      now,
	}
}

// testStoreContract exercises the behavior every backend must share.
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	// Missing records are NotFound, not errors in disguise.
	if _, err := s.Get(ctx, "absent"); !types.IsNotFound(err) {
		t.Fatalf("Get on empty store returned %v, want NotFound", err)
	}

	rec := makeRecord("media/1", 0.25)
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := s.Get(ctx, "media/1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != rec.ID || got.MediaRef != rec.MediaRef || got.PHash != rec.PHash {
		t.Errorf("Get returned %+v, want %+v", got, rec)
	}
	if len(got.ColorHistogram) != 8 || len(got.EdgeFeatures) != 4 {
		t.Errorf("vectors lost on round trip: %+v", got)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) || !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("timestamps lost on round trip: %+v", got)
	}

	// Upsert replaces wholesale under the same ref.
	updated := makeRecord("media/1", 0.75)
	updated.ID = rec.ID
	updated.UpdatedAt = rec.UpdatedAt.Add(time.Minute)
	if err := s.Upsert(ctx, updated); err != nil {
		t.Fatalf("replacing Upsert failed: %v", err)
	}
	got, err = s.Get(ctx, "media/1")
	if err != nil {
		t.Fatalf("Get after replace failed: %v", err)
	}
	if got.ColorHistogram[0] != 0.75 {
		t.Errorf("record not replaced: histogram[0] = %v, want 0.75", got.ColorHistogram[0])
	}
	if !got.UpdatedAt.Equal(updated.UpdatedAt) {
		t.Errorf("UpdatedAt not replaced: %v", got.UpdatedAt)
	}

	if err := s.Upsert(ctx, makeRecord("media/2", 0.5)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Upsert(ctx, makeRecord("media/3", 0.1)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Iterate sees every record exactly once.
	seen := map[string]int{}
	err = s.Iterate(ctx, func(rec *types.FeatureRecord) error {
		seen[rec.MediaRef]++
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}
	for _, ref := range []string{"media/1", "media/2", "media/3"} {
		if seen[ref] != 1 {
			t.Errorf("Iterate saw %q %d times, want once", ref, seen[ref])
		}
	}

	// Callback errors stop the scan and surface unchanged.
	sentinel := errors.New("enough")
	err = s.Iterate(ctx, func(*types.FeatureRecord) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Errorf("Iterate returned %v, want the callback error", err)
	}

	counter, ok := s.(Counter)
	if !ok {
		t.Fatal("backend does not implement Counter")
	}
	n, err := counter.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Count is %d, want 3", n)
	}

	// Delete is idempotent.
	if err := s.Delete(ctx, "media/2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "media/2"); !types.IsNotFound(err) {
		t.Errorf("Get after delete returned %v, want NotFound", err)
	}
	if err := s.Delete(ctx, "media/2"); err != nil {
		t.Errorf("repeated Delete failed: %v", err)
	}

	// A canceled context aborts the scan.
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = s.Iterate(canceled, func(*types.FeatureRecord) error { return nil })
	if err == nil {
		t.Error("Iterate with canceled context succeeded")
	}

	// Records without a media reference are rejected.
	if err := s.Upsert(ctx, &types.FeatureRecord{}); err == nil {
		t.Error("Upsert accepted a record without a media reference")
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreCopiesRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := makeRecord("media/1", 0.25)
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Mutating the caller's record or a returned record must not leak
	// into the store.
	rec.ColorHistogram[0] = 99
	got, err := s.Get(ctx, "media/1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ColorHistogram[0] != 0.25 {
		t.Errorf("store shares memory with caller: %v", got.ColorHistogram[0])
	}

	got.EdgeFeatures[0] = 99
	again, err := s.Get(ctx, "media/1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.EdgeFeatures[0] != 1 {
		t.Errorf("store leaked internal state: %v", again.EdgeFeatures[0])
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.db")
	s, err := NewSQLiteStore(path, testBins, testGridSize, logging.Discard())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	testStoreContract(t, s)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "features.db")

	s, err := NewSQLiteStore(path, testBins, testGridSize, logging.Discard())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s.Upsert(ctx, makeRecord("media/1", 0.25)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(path, testBins, testGridSize, logging.Discard())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "media/1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.MediaRef != "media/1" {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestSQLiteStoreConfigurationGuard(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "features.db")

	s, err := NewSQLiteStore(path, testBins, testGridSize, logging.Discard())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := s.Upsert(ctx, makeRecord("media/1", 0.25)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	s.Close()

	// Reopening under a different bin count must reject the stored
	// vectors instead of comparing them.
	mismatched, err := NewSQLiteStore(path, 4, testGridSize, logging.Discard())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer mismatched.Close()

	if _, err := mismatched.Get(ctx, "media/1"); !types.IsConfiguration(err) {
		t.Errorf("Get under changed bins returned %v, want configuration error", err)
	}

	// The scan skips the mismatched record rather than failing.
	calls := 0
	err = mismatched.Iterate(ctx, func(*types.FeatureRecord) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("Iterate surfaced %d mismatched records, want 0", calls)
	}
}

func TestBadgerStore(t *testing.T) {
	s, err := NewBadgerStore("", testBins, testGridSize, logging.Discard())
	if err != nil {
		t.Fatalf("NewBadgerStore failed: %v", err)
	}
	defer s.Close()

	testStoreContract(t, s)
}

func TestBadgerStoreOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewBadgerStore(dir, testBins, testGridSize, logging.Discard())
	if err != nil {
		t.Fatalf("NewBadgerStore failed: %v", err)
	}
	if err := s.Upsert(ctx, makeRecord("media/1", 0.25)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewBadgerStore(dir, testBins, testGridSize, logging.Discard())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "media/1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.MediaRef != "media/1" {
		t.Errorf("unexpected record: %+v", got)
	}
}

// TestRedisStore runs only when a throwaway Redis server is provided, the
// same way the other backends get exercised everywhere else.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("IMAGESIM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set IMAGESIM_TEST_REDIS_ADDR to run Redis store tests")
	}

	ctx := context.Background()
	s, err := NewRedisStore(ctx, RedisOptions{
		Address:   addr,
		KeyPrefix: fmt.Sprintf("imagesim-test:%d:", time.Now().UnixNano()),
	}, testBins, testGridSize, logging.Discard())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()

	testStoreContract(t, s)
}

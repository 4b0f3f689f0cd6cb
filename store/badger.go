package store

import (
	"context"
	"errors"
	"fmt"

	"imagesim/featenc"
	"imagesim/metrics"
	"imagesim/types"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// recordKeyPrefix namespaces feature records inside the Badger keyspace.
const recordKeyPrefix = "record/"

// BadgerStore persists records in an embedded Badger database. An empty
// directory selects the in-memory mode, which the tests rely on.
type BadgerStore struct {
	db       *badger.DB
	bins     int
	gridSize int
	logger   *zap.Logger
}

// NewBadgerStore opens a Badger database at dir, or an in-memory one when
// dir is empty.
func NewBadgerStore(dir string, bins, gridSize int, logger *zap.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	// Badger's own chatter goes through our logger or not at all.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, types.NewStoreError("open", err)
	}
	return &BadgerStore{db: db, bins: bins, gridSize: gridSize, logger: logger}, nil
}

func recordKey(mediaRef string) []byte {
	return []byte(recordKeyPrefix + mediaRef)
}

// Get returns the record for mediaRef.
func (s *BadgerStore) Get(ctx context.Context, mediaRef string) (*types.FeatureRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *types.FeatureRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(mediaRef))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			rec, decodeErr = featenc.DecodeRecord(val, s.bins, s.gridSize)
			return decodeErr
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		if types.IsConfiguration(err) {
			return nil, err
		}
		return nil, types.NewStoreError("get", err)
	}
	return rec, nil
}

// Upsert inserts or wholesale-replaces the record for rec.MediaRef.
func (s *BadgerStore) Upsert(ctx context.Context, rec *types.FeatureRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.MediaRef == "" {
		return types.NewStoreError("upsert", fmt.Errorf("record is missing a media reference"))
	}

	data, err := featenc.EncodeRecord(rec)
	if err != nil {
		return types.NewStoreError("upsert", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.MediaRef), data)
	})
	if err != nil {
		return types.NewStoreError("upsert", err)
	}
	return nil
}

// Delete removes the record for mediaRef. Deleting an absent key is a
// no-op in Badger already.
func (s *BadgerStore) Delete(ctx context.Context, mediaRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(mediaRef))
	})
	if err != nil {
		return types.NewStoreError("delete", err)
	}
	return nil
}

// Iterate scans the record prefix, skipping values that no longer decode
// under the current configuration.
func (s *BadgerStore) Iterate(ctx context.Context, fn func(rec *types.FeatureRecord) error) error {
	var fnErr error
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			var rec *types.FeatureRecord
			if err := item.Value(func(val []byte) error {
				var decodeErr error
				rec, decodeErr = featenc.DecodeRecord(val, s.bins, s.gridSize)
				return decodeErr
			}); err != nil {
				s.logSkip(string(item.Key()), err)
				continue
			}

			if err := fn(rec); err != nil {
				fnErr = err
				return nil
			}
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return types.NewStoreError("iterate", err)
	}
	return fnErr
}

// Count walks the record prefix without fetching values.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordKeyPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		return 0, types.NewStoreError("count", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) logSkip(key string, err error) {
	reason := skipReason(err)
	metrics.RecordsSkippedTotal.WithLabelValues(reason).Inc()
	s.logger.Warn("skipping stored record, re-index required",
		zap.String("key", key),
		zap.String("reason", reason),
		zap.Error(err))
}

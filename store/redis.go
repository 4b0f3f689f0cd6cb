package store

import (
	"context"
	"errors"
	"fmt"

	"imagesim/featenc"
	"imagesim/metrics"
	"imagesim/types"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisScanCount is the batch hint passed to SCAN.
const redisScanCount = 100

// RedisOptions carries the connection settings for a Redis-backed store.
type RedisOptions struct {
	// Address of the Redis server, host:port.
	Address string
	// Password, empty when the server runs without auth.
	Password string
	// DB selects the logical database.
	DB int
	// KeyPrefix namespaces record keys; defaults to "imagesim:record:".
	KeyPrefix string
}

// RedisStore persists records as one key per media reference under a
// namespace prefix, iterated with SCAN so a full walk never blocks the
// server the way KEYS would.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	bins     int
	gridSize int
	logger   *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, opts RedisOptions, bins, gridSize int, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, types.NewStoreError("open", fmt.Errorf("cannot reach redis at %s: %v", opts.Address, err))
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "imagesim:record:"
	}
	return &RedisStore{
		client:   client,
		prefix:   prefix,
		bins:     bins,
		gridSize: gridSize,
		logger:   logger,
	}, nil
}

func (s *RedisStore) key(mediaRef string) string {
	return s.prefix + mediaRef
}

// Get returns the record for mediaRef.
func (s *RedisStore) Get(ctx context.Context, mediaRef string) (*types.FeatureRecord, error) {
	data, err := s.client.Get(ctx, s.key(mediaRef)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, types.NewStoreError("get", err)
	}

	rec, err := featenc.DecodeRecord(data, s.bins, s.gridSize)
	if err != nil {
		if types.IsConfiguration(err) {
			return nil, err
		}
		return nil, types.NewStoreError("get", err)
	}
	return rec, nil
}

// Upsert inserts or wholesale-replaces the record for rec.MediaRef. A
// plain SET makes the replacement atomic per key.
func (s *RedisStore) Upsert(ctx context.Context, rec *types.FeatureRecord) error {
	if rec == nil || rec.MediaRef == "" {
		return types.NewStoreError("upsert", fmt.Errorf("record is missing a media reference"))
	}

	data, err := featenc.EncodeRecord(rec)
	if err != nil {
		return types.NewStoreError("upsert", err)
	}
	if err := s.client.Set(ctx, s.key(rec.MediaRef), data, 0).Err(); err != nil {
		return types.NewStoreError("upsert", err)
	}
	return nil
}

// Delete removes the record for mediaRef. DEL on an absent key is a no-op.
func (s *RedisStore) Delete(ctx context.Context, mediaRef string) error {
	if err := s.client.Del(ctx, s.key(mediaRef)).Err(); err != nil {
		return types.NewStoreError("delete", err)
	}
	return nil
}

// Iterate walks the namespace with SCAN, skipping values that no longer
// decode under the current configuration. A record deleted between the
// SCAN and its GET is treated as absent, not as an error.
func (s *RedisStore) Iterate(ctx context.Context, fn func(rec *types.FeatureRecord) error) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return types.NewStoreError("iterate", err)
		}

		rec, err := featenc.DecodeRecord(data, s.bins, s.gridSize)
		if err != nil {
			s.logSkip(key, err)
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return types.NewStoreError("iterate", err)
	}
	return nil
}

// Count walks the namespace with SCAN, counting keys only.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		return 0, types.NewStoreError("count", err)
	}
	return count, nil
}

// Close closes the client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) logSkip(key string, err error) {
	reason := skipReason(err)
	metrics.RecordsSkippedTotal.WithLabelValues(reason).Inc()
	s.logger.Warn("skipping stored record, re-index required",
		zap.String("key", key),
		zap.String("reason", reason),
		zap.Error(err))
}

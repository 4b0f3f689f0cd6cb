// Package store persists feature records. It defines the backend contract
// and provides memory, SQLite, Badger and Redis implementations.
package store

import (
	"context"

	"imagesim/types"
)

// Store is the persistence contract for feature records, keyed by media
// reference. Implementations must guarantee atomic upsert per mediaRef;
// no cross-record transaction is required by the engine. All blocking
// operations honor the caller's context.
type Store interface {
	// Get returns the record for mediaRef, or types.ErrNotFound when no
	// record exists. A stored record whose vectors were written under a
	// different configuration fails with a ConfigurationError.
	Get(ctx context.Context, mediaRef string) (*types.FeatureRecord, error)

	// Upsert inserts or wholesale-replaces the record for rec.MediaRef.
	Upsert(ctx context.Context, rec *types.FeatureRecord) error

	// Delete removes the record for mediaRef. Deleting an absent record
	// is a no-op, not an error.
	Delete(ctx context.Context, mediaRef string) error

	// Iterate calls fn for every decodable record. Records that fail to
	// decode are skipped and flagged (log + metric) rather than aborting
	// the scan. An error returned by fn stops the scan and is returned
	// unchanged.
	Iterate(ctx context.Context, fn func(rec *types.FeatureRecord) error) error

	// Close releases backend resources.
	Close() error
}

// Counter is an optional fast path for backends that can report their
// record count without a full scan.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// skipReason labels a record decode failure for the skip metric. A
// configuration mismatch means the record needs re-indexing; anything
// else is damage.
func skipReason(err error) string {
	if types.IsConfiguration(err) {
		return "config_mismatch"
	}
	return "malformed"
}

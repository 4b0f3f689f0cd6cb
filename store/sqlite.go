package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"imagesim/featenc"
	"imagesim/metrics"
	"imagesim/types"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore persists records in a single SQLite table. The media
// reference carries a UNIQUE constraint and upserts go through
// INSERT OR REPLACE, so replacement is wholesale and atomic per ref.
type SQLiteStore struct {
	db       *sql.DB
	bins     int
	gridSize int
	logger   *zap.Logger
}

// NewSQLiteStore opens (and if needed initializes) the database at path.
// bins and gridSize are the corpus-wide extraction parameters every
// stored vector is validated against.
func NewSQLiteStore(path string, bins, gridSize int, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, types.NewStoreError("open", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS feature_records (
		id TEXT PRIMARY KEY,
		media_ref TEXT NOT NULL UNIQUE,
		phash TEXT NOT NULL,
		color_histogram BLOB NOT NULL,
		edge_features BLOB NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feature_records_phash ON feature_records(phash);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, types.NewStoreError("init", fmt.Errorf("cannot create schema: %v", err))
	}

	return &SQLiteStore{db: db, bins: bins, gridSize: gridSize, logger: logger}, nil
}

// Get returns the record for mediaRef.
func (s *SQLiteStore) Get(ctx context.Context, mediaRef string) (*types.FeatureRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, media_ref, phash, color_histogram, edge_features, created_at, updated_at
		FROM feature_records WHERE media_ref = ?`, mediaRef)

	rec, err := s.scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	return rec, err
}

// Upsert inserts or wholesale-replaces the record for rec.MediaRef.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *types.FeatureRecord) error {
	if rec == nil || rec.MediaRef == "" {
		return types.NewStoreError("upsert", fmt.Errorf("record is missing a media reference"))
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT OR REPLACE INTO feature_records (
			id, media_ref, phash, color_histogram, edge_features, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return types.NewStoreError("upsert", fmt.Errorf("cannot prepare statement for %s: %v", rec.MediaRef, err))
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		rec.ID,
		rec.MediaRef,
		featenc.EncodePHash(rec.PHash),
		featenc.EncodeVector(featenc.KindHistogram, rec.Bins, rec.ColorHistogram),
		featenc.EncodeVector(featenc.KindEdges, rec.GridSize, rec.EdgeFeatures),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return types.NewStoreError("upsert", fmt.Errorf("cannot store record for %s: %v", rec.MediaRef, err))
	}
	return nil
}

// Delete removes the record for mediaRef, if any.
func (s *SQLiteStore) Delete(ctx context.Context, mediaRef string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM feature_records WHERE media_ref = ?`, mediaRef)
	if err != nil {
		return types.NewStoreError("delete", fmt.Errorf("cannot delete record for %s: %v", mediaRef, err))
	}
	return nil
}

// Iterate scans every row in media_ref order, skipping rows that no
// longer decode under the current configuration.
func (s *SQLiteStore) Iterate(ctx context.Context, fn func(rec *types.FeatureRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_ref, phash, color_histogram, edge_features, created_at, updated_at
		FROM feature_records ORDER BY media_ref`)
	if err != nil {
		return types.NewStoreError("iterate", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := s.scanRecord(rows.Scan)
		if err != nil {
			s.logSkip(err)
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return types.NewStoreError("iterate", err)
	}
	return nil
}

// Count reports the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feature_records`).Scan(&count)
	if err != nil {
		return 0, types.NewStoreError("count", err)
	}
	return count, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanRecord decodes one row via the given Scan function. sql.ErrNoRows
// passes through untouched so Get can map it to ErrNotFound.
func (s *SQLiteStore) scanRecord(scan func(dest ...any) error) (*types.FeatureRecord, error) {
	var (
		rec       types.FeatureRecord
		phash     string
		histogram []byte
		edges     []byte
		createdAt string
		updatedAt string
	)
	if err := scan(&rec.ID, &rec.MediaRef, &phash, &histogram, &edges, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, types.NewStoreError("scan", err)
	}

	var err error
	if rec.PHash, err = featenc.DecodePHash(phash); err != nil {
		return nil, err
	}
	if rec.ColorHistogram, err = featenc.DecodeVector(featenc.KindHistogram, s.bins, histogram); err != nil {
		return nil, err
	}
	if rec.EdgeFeatures, err = featenc.DecodeVector(featenc.KindEdges, s.gridSize, edges); err != nil {
		return nil, err
	}
	rec.Bins = s.bins
	rec.GridSize = s.gridSize

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at for %s: %v", rec.MediaRef, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at for %s: %v", rec.MediaRef, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) logSkip(err error) {
	reason := skipReason(err)
	metrics.RecordsSkippedTotal.WithLabelValues(reason).Inc()
	s.logger.Warn("skipping stored record, re-index required",
		zap.String("reason", reason),
		zap.Error(err))
}

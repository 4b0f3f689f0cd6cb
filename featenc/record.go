package featenc

import (
	"encoding/json"
	"fmt"
	"time"

	"imagesim/types"
)

// storedRecord is the JSON envelope used by key-value backends. The vectors
// are kept as tagged blobs rather than raw arrays so the embedded format
// version survives the round trip.
type storedRecord struct {
	ID        string    `json:"id"`
	MediaRef  string    `json:"mediaRef"`
	PHash     string    `json:"phash"`
	Histogram []byte    `json:"histogram"`
	Edges     []byte    `json:"edges"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EncodeRecord serializes a full feature record for key-value storage.
func EncodeRecord(rec *types.FeatureRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("cannot encode nil record")
	}

	stored := storedRecord{
		ID:        rec.ID,
		MediaRef:  rec.MediaRef,
		PHash:     EncodePHash(rec.PHash),
		Histogram: EncodeVector(KindHistogram, rec.Bins, rec.ColorHistogram),
		Edges:     EncodeVector(KindEdges, rec.GridSize, rec.EdgeFeatures),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %v", rec.MediaRef, err)
	}
	return data, nil
}

// DecodeRecord deserializes a stored record, validating its vectors against
// the expected extraction parameters. Vector decoding errors pass through
// unchanged, so a ConfigurationError still reports as one.
func DecodeRecord(data []byte, bins, gridSize int) (*types.FeatureRecord, error) {
	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode record: %v", err)
	}

	phash, err := DecodePHash(stored.PHash)
	if err != nil {
		return nil, err
	}
	histogram, err := DecodeVector(KindHistogram, bins, stored.Histogram)
	if err != nil {
		return nil, err
	}
	edges, err := DecodeVector(KindEdges, gridSize, stored.Edges)
	if err != nil {
		return nil, err
	}

	return &types.FeatureRecord{
		ID:             stored.ID,
		MediaRef:       stored.MediaRef,
		PHash:          phash,
		ColorHistogram: histogram,
		EdgeFeatures:   edges,
		Bins:           bins,
		GridSize:       gridSize,
		CreatedAt:      stored.CreatedAt,
		UpdatedAt:      stored.UpdatedAt,
	}, nil
}

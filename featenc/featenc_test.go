package featenc

import (
	"testing"
	"time"

	"imagesim/types"
)

func TestVectorRoundTrip(t *testing.T) {
	values := []float32{0.5, 0.25, 0, 1, 0.125}

	blob := EncodeVector(KindHistogram, 32, values)
	decoded, err := DecodeVector(KindHistogram, 32, blob)
	if err != nil {
		t.Fatalf("DecodeVector failed: %v", err)
	}
	if len(decoded) != len(values) {
		t.Fatalf("decoded %d values, want %d", len(decoded), len(values))
	}
	for i := range values {
		if decoded[i] != values[i] {
			t.Errorf("value %d is %v, want %v", i, decoded[i], values[i])
		}
	}
}

func TestVectorParameterMismatch(t *testing.T) {
	// A blob written under bins=32 must not decode against bins=16. This is
	// the guard that forces re-indexing after a configuration change.
	blob := EncodeVector(KindHistogram, 32, []float32{1, 2, 3})

	_, err := DecodeVector(KindHistogram, 16, blob)
	if !types.IsConfiguration(err) {
		t.Errorf("expected configuration error for parameter mismatch, got %v", err)
	}
}

func TestVectorVersionMismatch(t *testing.T) {
	blob := EncodeVector(KindEdges, 16, []float32{1, 2})
	blob[2] = FormatVersion + 1

	_, err := DecodeVector(KindEdges, 16, blob)
	if !types.IsConfiguration(err) {
		t.Errorf("expected configuration error for version mismatch, got %v", err)
	}
}

func TestVectorMalformed(t *testing.T) {
	blob := EncodeVector(KindEdges, 16, []float32{1, 2, 3, 4})

	cases := map[string][]byte{
		"truncated header": blob[:4],
		"truncated values": blob[:len(blob)-3],
		"bad magic":        append([]byte{'X', 'Y'}, blob[2:]...),
		"wrong kind":       EncodeVector(KindHistogram, 16, []float32{1}),
		"empty":            nil,
	}
	for name, data := range cases {
		_, err := DecodeVector(KindEdges, 16, data)
		if err == nil {
			t.Errorf("%s: expected decode error", name)
			continue
		}
		// Structural damage is not a configuration problem.
		if types.IsConfiguration(err) {
			t.Errorf("%s: got configuration error, want plain error: %v", name, err)
		}
	}
}

func TestVectorEmptyValues(t *testing.T) {
	blob := EncodeVector(KindHistogram, 2, nil)
	decoded, err := DecodeVector(KindHistogram, 2, blob)
	if err != nil {
		t.Fatalf("DecodeVector failed: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("decoded %d values, want 0", len(decoded))
	}
}

func TestPHashRoundTrip(t *testing.T) {
	hashes := []uint64{0, 1, 0xdeadbeefcafe0123, ^uint64(0)}
	for _, h := range hashes {
		s := EncodePHash(h)
		if len(s) != 16 {
			t.Errorf("EncodePHash(%#x) = %q, want 16 characters", h, s)
		}
		back, err := DecodePHash(s)
		if err != nil {
			t.Errorf("DecodePHash(%q) failed: %v", s, err)
		}
		if back != h {
			t.Errorf("round trip of %#x yielded %#x", h, back)
		}
	}
}

func TestPHashDecodeRejectsBadInput(t *testing.T) {
	for _, s := range []string{"", "abc", "zzzzzzzzzzzzzzzz", "00000000000000000"} {
		if _, err := DecodePHash(s); err == nil {
			t.Errorf("DecodePHash(%q): expected error", s)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	rec := &types.FeatureRecord{
		ID:             "0a0b0c0d-0000-0000-0000-000000000001",
		MediaRef:       "media/42",
		PHash:          0xfeedface01020304,
		ColorHistogram: []float32{0.5, 0.5},
		EdgeFeatures:   []float32{1, 0, 0.25, 0.75},
		Bins:           2,
		GridSize:       2,
		CreatedAt:      now.Add(-time.Hour),
		UpdatedAt:      now,
	}

	data, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("EncodeRecord failed: %v", err)
	}
	decoded, err := DecodeRecord(data, 2, 2)
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}

	if decoded.ID != rec.ID || decoded.MediaRef != rec.MediaRef {
		t.Errorf("identity fields lost: %+v", decoded)
	}
	if decoded.PHash != rec.PHash {
		t.Errorf("phash is %#x, want %#x", decoded.PHash, rec.PHash)
	}
	if len(decoded.ColorHistogram) != 2 || len(decoded.EdgeFeatures) != 4 {
		t.Errorf("vector lengths lost: %+v", decoded)
	}
	if !decoded.CreatedAt.Equal(rec.CreatedAt) || !decoded.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("timestamps lost: %+v", decoded)
	}
}

func TestRecordDecodeConfigGuard(t *testing.T) {
	rec := &types.FeatureRecord{
		ID:             "0a0b0c0d-0000-0000-0000-000000000002",
		MediaRef:       "media/43",
		PHash:          1,
		ColorHistogram: []float32{1, 0},
		EdgeFeatures:   []float32{1, 0, 0, 0},
		Bins:           2,
		GridSize:       2,
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("EncodeRecord failed: %v", err)
	}

	_, err = DecodeRecord(data, 4, 2)
	if !types.IsConfiguration(err) {
		t.Errorf("expected configuration error for bin mismatch, got %v", err)
	}

	if _, err := DecodeRecord([]byte("{not json"), 2, 2); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

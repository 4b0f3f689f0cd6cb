// Package featenc encodes feature vectors and records for persistence.
//
// Vector blob format (little-endian):
//
//	[2 bytes] magic "IS"
//	[1 byte]  format version
//	[1 byte]  vector kind (1 = color histogram, 2 = edge features)
//	[2 bytes] extraction parameter (bin count or grid size)
//	[4 bytes] value count
//	[count * 4 bytes] float32 values
//
// The embedded version and parameter make a configuration change detectable:
// a blob written under bins=32 never decodes silently against a bins=16
// expectation, it fails with a ConfigurationError so the caller can force a
// re-index instead of comparing incompatible vectors.
package featenc

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"imagesim/types"
)

// FormatVersion identifies the encoding pipeline as a whole: blob layout,
// resampling kernel (bilinear) and luminance formula. Any change to one of
// those invalidates stored vectors and must bump this constant.
const FormatVersion = 1

// Vector kinds.
const (
	KindHistogram byte = 1
	KindEdges     byte = 2
)

const (
	magic0     = 'I'
	magic1     = 'S'
	headerSize = 10
)

// EncodeVector serializes a feature vector into a tagged binary blob.
func EncodeVector(kind byte, param int, values []float32) []byte {
	data := make([]byte, headerSize+len(values)*4)
	data[0] = magic0
	data[1] = magic1
	data[2] = FormatVersion
	data[3] = kind
	binary.LittleEndian.PutUint16(data[4:], uint16(param))
	binary.LittleEndian.PutUint32(data[6:], uint32(len(values)))

	offset := headerSize
	for _, v := range values {
		binary.LittleEndian.PutUint32(data[offset:], math.Float32bits(v))
		offset += 4
	}
	return data
}

// DecodeVector deserializes a tagged blob, verifying that it was written
// with the expected kind and extraction parameter. Structural damage
// (truncation, bad magic, length mismatch) yields a plain error; a version
// or parameter mismatch yields a ConfigurationError so callers can tell
// "re-index required" apart from "corrupt data".
func DecodeVector(kind byte, param int, data []byte) ([]float32, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(data))
	}
	if data[0] != magic0 || data[1] != magic1 {
		return nil, fmt.Errorf("vector blob has invalid magic %#x%x", data[0], data[1])
	}
	if data[2] != FormatVersion {
		return nil, types.NewConfigurationError("formatVersion",
			fmt.Sprintf("stored version %d, expected %d", data[2], FormatVersion))
	}
	if data[3] != kind {
		return nil, fmt.Errorf("vector blob kind is %d, expected %d", data[3], kind)
	}
	storedParam := int(binary.LittleEndian.Uint16(data[4:]))
	if storedParam != param {
		return nil, types.NewConfigurationError("extractionParam",
			fmt.Sprintf("stored parameter %d, expected %d", storedParam, param))
	}

	count := int(binary.LittleEndian.Uint32(data[6:]))
	if len(data) != headerSize+count*4 {
		return nil, fmt.Errorf("vector blob length mismatch: %d bytes for %d values", len(data), count)
	}

	values := make([]float32, count)
	offset := headerSize
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
	}
	return values, nil
}

// EncodePHash renders a 64-bit perceptual hash as a fixed-width 16-character
// hexadecimal string, the storage form used by every backend.
func EncodePHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// DecodePHash parses the fixed-width hexadecimal form back into a 64-bit hash.
func DecodePHash(s string) (uint64, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("perceptual hash must be 16 hex characters, got %d", len(s))
	}
	h, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid perceptual hash %q: %v", s, err)
	}
	return h, nil
}

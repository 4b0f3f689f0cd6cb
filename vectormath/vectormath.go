// Package vectormath implements the similarity metrics used to compare
// feature vectors and perceptual hashes. Vectors are stored as []float32;
// all accumulation happens in float64 to keep the results stable for
// large vectors.
package vectormath

import (
	"fmt"
	"math"
	"math/bits"

	"imagesim/types"
)

// CosineSimilarity computes the cosine similarity between two vectors,
// clamped to [0,1]. A zero-magnitude operand yields 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cannot compare empty vectors")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return clamp01(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}

// EuclideanSimilarity converts the L2 distance between two vectors into a
// similarity in (0,1] via 1/(1+d).
func EuclideanSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cannot compare empty vectors")
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}

	return 1 / (1 + math.Sqrt(sum)), nil
}

// ManhattanSimilarity converts the L1 distance between two vectors into a
// similarity in (0,1] via 1/(1+d).
func ManhattanSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cannot compare empty vectors")
	}

	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}

	return 1 / (1 + sum), nil
}

// Bhattacharyya computes the Bhattacharyya coefficient Σ√(aᵢ·bᵢ) between
// two histograms, clamped to [0,1]. Identical normalized histograms score
// 1; an all-zero operand scores 0. Negative entries are invalid.
func Bhattacharyya(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("histogram length mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cannot compare empty histograms")
	}

	var sum float64
	for i := range a {
		if a[i] < 0 || b[i] < 0 {
			return 0, fmt.Errorf("histogram entry %d is negative", i)
		}
		sum += math.Sqrt(float64(a[i]) * float64(b[i]))
	}

	return clamp01(sum), nil
}

// HammingDistance64 counts the differing bits between two 64-bit hashes.
// math/bits.OnesCount64 compiles to a single POPCNT on amd64.
func HammingDistance64(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// HammingSimilarity64 maps the Hamming distance between two 64-bit hashes
// into [0,1], where 1 means identical.
func HammingSimilarity64(a, b uint64) float64 {
	return 1 - float64(HammingDistance64(a, b))/64
}

// WeightedCombine folds per-feature scores into one combined score,
// Σ(sᵢ·wᵢ)/Σwᵢ. All-zero weights yield 0 so that disabled features never
// force a divide. A negative weight is a configuration error.
func WeightedCombine(scores, weights []float64) (float64, error) {
	if len(scores) != len(weights) {
		return 0, fmt.Errorf("score/weight length mismatch: %d vs %d", len(scores), len(weights))
	}

	var weighted, total float64
	for i, w := range weights {
		if w < 0 {
			return 0, types.NewConfigurationError("weights", fmt.Sprintf("weight %d is negative (%v)", i, w))
		}
		weighted += scores[i] * w
		total += w
	}
	if total == 0 {
		return 0, nil
	}

	return clamp01(weighted / total), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

/*
Package dct provides a forward two-dimensional discrete cosine transform
(DCT-II) over square matrices, with orthonormal scaling.

The transform concentrates the coarse structure of an image block in the
top-left coefficients, which is what makes it useful for perceptual
hashing: low frequencies survive rescaling and re-encoding while fine
detail and noise end up in coefficients a hash can ignore.
*/
package dct

import (
	"fmt"
	"math"
)

// basis holds the precomputed cosine terms and orthonormal scale factors
// for one matrix size.
type basis struct {
	// cos[k*size+x] = cos((2x+1)·k·π / (2·size))
	cos []float64

	// scale[k] is √(1/size) for k=0 and √(2/size) otherwise.
	scale []float64
}

func newBasis(size int) basis {
	b := basis{
		cos:   make([]float64, size*size),
		scale: make([]float64, size),
	}
	for k := 0; k < size; k++ {
		for x := 0; x < size; x++ {
			b.cos[k*size+x] = math.Cos(float64(2*x+1) * float64(k) * math.Pi / float64(2*size))
		}
		if k == 0 {
			b.scale[k] = math.Sqrt(1 / float64(size))
		} else {
			b.scale[k] = math.Sqrt(2 / float64(size))
		}
	}
	return b
}

// Transform computes the forward 2D DCT-II of a square matrix. The input
// is size×size values in row-major order; the output uses the same layout,
// with the DC coefficient at index 0 and coefficient (u,v) at v*size+u
// (u horizontal frequency, v vertical). Scaling is orthonormal, so the
// transform preserves total energy.
func Transform(values []float64, size int) ([]float64, error) {
	if size < 1 {
		return nil, fmt.Errorf("invalid matrix size %d", size)
	}
	if len(values) != size*size {
		return nil, fmt.Errorf("matrix size mismatch: got %d values, want %d", len(values), size*size)
	}

	b := newBasis(size)

	// The 2D transform is separable: a 1D pass over each row followed by
	// a 1D pass over each column replaces the quadruple loop.
	tmp := make([]float64, size*size)
	for y := 0; y < size; y++ {
		row := values[y*size : (y+1)*size]
		for u := 0; u < size; u++ {
			var sum float64
			for x := 0; x < size; x++ {
				sum += row[x] * b.cos[u*size+x]
			}
			tmp[y*size+u] = sum * b.scale[u]
		}
	}

	out := make([]float64, size*size)
	for u := 0; u < size; u++ {
		for v := 0; v < size; v++ {
			var sum float64
			for y := 0; y < size; y++ {
				sum += tmp[y*size+u] * b.cos[v*size+y]
			}
			out[v*size+u] = sum * b.scale[v]
		}
	}

	return out, nil
}

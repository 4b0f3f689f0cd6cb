package imageprocessor

import (
	"fmt"
	"image"

	"imagesim/dct"
	"imagesim/types"
	"imagesim/vectormath"
)

const (
	// phashInputSize is the intermediate size the source image is scaled
	// to before hashing.
	phashInputSize = 32

	// phashBlockSize is the side of the DCT block the hash is read from.
	phashBlockSize = 8
)

// PerceptualHashExtractor computes 64-bit DCT-based perceptual hashes.
// The hash is robust to scaling, re-compression and minor edits because
// it is built from the coarse frequency structure of the image, not its
// exact pixels.
type PerceptualHashExtractor struct{}

// NewPerceptualHashExtractor creates a perceptual hash extractor.
func NewPerceptualHashExtractor() *PerceptualHashExtractor {
	return &PerceptualHashExtractor{}
}

// Name returns the feature identifier.
func (e *PerceptualHashExtractor) Name() string { return types.FeaturePHash }

// Extract computes the perceptual hash and stores it in the record.
func (e *PerceptualHashExtractor) Extract(img image.Image, rec *types.FeatureRecord) error {
	hash, err := ComputePerceptualHash(img)
	if err != nil {
		return err
	}
	rec.PHash = hash
	return nil
}

// Similarity maps the Hamming distance between the two stored hashes
// into [0,1].
func (e *PerceptualHashExtractor) Similarity(a, b *types.FeatureRecord) (float64, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("cannot compare nil records")
	}
	return vectormath.HammingSimilarity64(a.PHash, b.PHash), nil
}

// ComputePerceptualHash computes the 64-bit DCT hash of an image.
//
// Pipeline: scale to 32×32, convert to grayscale, scale again to 8×8 (a
// true second resample, not a subsample of the 32×32 buffer), take the
// 8×8 DCT-II, and compare each of the 63 AC coefficients against their
// mean. Coefficient i (row-major) maps to bit 63−i of the result; the DC
// coefficient is excluded from the mean and its bit is always 0, keeping
// the hash exactly 64 bits wide.
func ComputePerceptualHash(img image.Image) (uint64, error) {
	if img == nil {
		return 0, types.NewInvalidImageError(0, 0, "nil image")
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 2 || height < 2 {
		return 0, types.NewInvalidImageError(width, height, "image too small to hash")
	}

	small := Grayscale(ResizeImage(img, phashInputSize, phashInputSize))
	block := Grayscale(ResizeImage(small, phashBlockSize, phashBlockSize))

	values := make([]float64, phashBlockSize*phashBlockSize)
	blockBounds := block.Bounds()
	i := 0
	for y := blockBounds.Min.Y; y < blockBounds.Max.Y; y++ {
		for x := blockBounds.Min.X; x < blockBounds.Max.X; x++ {
			values[i] = float64(block.GrayAt(x, y).Y)
			i++
		}
	}

	coefs, err := dct.Transform(values, phashBlockSize)
	if err != nil {
		return 0, types.NewExtractionError(types.FeaturePHash, err)
	}

	// Mean of the AC coefficients only. The DC term is the block average
	// and would drown out the structure bits.
	var sum float64
	for i := 1; i < len(coefs); i++ {
		sum += coefs[i]
	}
	mean := sum / float64(len(coefs)-1)

	var hash uint64
	for i := 1; i < len(coefs); i++ {
		if coefs[i] > mean {
			hash |= 1 << uint(63-i)
		}
	}
	return hash, nil
}

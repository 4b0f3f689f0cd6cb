// Package imageprocessor implements feature extraction for similarity
// indexing: perceptual hashing, color histograms and edge feature grids.
package imageprocessor

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

// ResizeImage scales an image to the given dimensions using bilinear
// interpolation. Every extraction path must resample through this one
// function: the kernel choice is baked into stored signatures, and
// changing it would invalidate every previously indexed record (the
// format version in featenc exists to catch exactly that).
func ResizeImage(img image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
}

// Grayscale converts an image to 8-bit grayscale using the fixed luminance
// formula 0.299R + 0.587G + 0.114B. Like the resampling kernel, the
// formula is frozen: stored hashes depend on it.
func Grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r32, g32, b32, _ := img.At(x, y).RGBA()
			r, g, b := float64(r32>>8), float64(g32>>8), float64(b32>>8)
			lum := 0.299*r + 0.587*g + 0.114*b
			gray.SetGray(x, y, color.Gray{Y: uint8(lum + 0.5)})
		}
	}
	return gray
}

package imageprocessor

import (
	"fmt"
	"image"
	"math"

	"imagesim/types"
	"imagesim/vectormath"
)

// EdgeFeatureExtractor computes gridSize² edge intensity features from
// Sobel gradient magnitudes. Like bin count, grid size is corpus-wide
// configuration.
type EdgeFeatureExtractor struct {
	gridSize  int
	resizeDim int
}

// NewEdgeFeatureExtractor creates an edge extractor for the given grid
// size, operating on the image scaled to resizeDim×resizeDim.
func NewEdgeFeatureExtractor(gridSize, resizeDim int) (*EdgeFeatureExtractor, error) {
	if gridSize < 1 {
		return nil, types.NewConfigurationError("gridSize",
			fmt.Sprintf("grid size %d below 1", gridSize))
	}
	if resizeDim < 1 {
		return nil, types.NewConfigurationError("resizeDim",
			fmt.Sprintf("resize dimension %d below 1", resizeDim))
	}
	if gridSize > resizeDim {
		return nil, types.NewConfigurationError("gridSize",
			fmt.Sprintf("grid size %d exceeds the %d×%d gradient map", gridSize, resizeDim, resizeDim))
	}
	return &EdgeFeatureExtractor{gridSize: gridSize, resizeDim: resizeDim}, nil
}

// Name returns the feature identifier.
func (e *EdgeFeatureExtractor) Name() string { return types.FeatureEdge }

// Extract computes the edge features and stores them in the record along
// with the grid size they were built under.
func (e *EdgeFeatureExtractor) Extract(img image.Image, rec *types.FeatureRecord) error {
	features, err := ComputeEdgeFeatures(img, e.gridSize, e.resizeDim)
	if err != nil {
		return err
	}
	rec.EdgeFeatures = features
	rec.GridSize = e.gridSize
	return nil
}

// Similarity computes the cosine similarity between the two stored edge
// vectors, rejecting records built under a different grid size.
func (e *EdgeFeatureExtractor) Similarity(a, b *types.FeatureRecord) (float64, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("cannot compare nil records")
	}
	if a.GridSize != b.GridSize || a.GridSize != e.gridSize {
		return 0, types.NewConfigurationError("gridSize",
			fmt.Sprintf("edge grid sizes differ: %d vs %d (extractor %d)", a.GridSize, b.GridSize, e.gridSize))
	}
	score, err := vectormath.CosineSimilarity(a.EdgeFeatures, b.EdgeFeatures)
	if err != nil {
		return 0, types.NewExtractionError(types.FeatureEdge, err)
	}
	return score, nil
}

// ComputeEdgeFeatures computes a gridSize² edge intensity vector.
//
// The image is scaled to resizeDim×resizeDim, converted to grayscale, and
// convolved with the 3×3 Sobel kernels. The border policy is zero-padding:
// pixels outside the image read as black, so the magnitude map keeps the
// full resizeDim² size and any image brighter than black grows an edge
// frame at its boundary. The map is partitioned into gridSize×gridSize
// cells with integer-scaled boundaries, each cell contributes its mean
// magnitude, and the vector is normalized by its maximum for contrast
// invariance. An all-black image yields all zeros.
func ComputeEdgeFeatures(img image.Image, gridSize, resizeDim int) ([]float32, error) {
	if img == nil {
		return nil, types.NewInvalidImageError(0, 0, "nil image")
	}
	srcBounds := img.Bounds()
	if srcBounds.Dx() < 1 || srcBounds.Dy() < 1 {
		return nil, types.NewInvalidImageError(srcBounds.Dx(), srcBounds.Dy(), "empty image")
	}

	gray := Grayscale(ResizeImage(img, resizeDim, resizeDim))
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	// Zero-padded read: outside the image everything is black.
	at := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= width || y >= height {
			return 0
		}
		return float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
	}

	magnitudes := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) +
				-2*at(x-1, y) + 2*at(x+1, y) +
				-at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			magnitudes[y*width+x] = math.Sqrt(gx*gx + gy*gy)
		}
	}

	features := make([]float32, gridSize*gridSize)
	for cy := 0; cy < gridSize; cy++ {
		y0, y1 := cy*height/gridSize, (cy+1)*height/gridSize
		for cx := 0; cx < gridSize; cx++ {
			x0, x1 := cx*width/gridSize, (cx+1)*width/gridSize
			var sum float64
			count := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sum += magnitudes[y*width+x]
					count++
				}
			}
			if count > 0 {
				features[cy*gridSize+cx] = float32(sum / float64(count))
			}
		}
	}

	var max float32
	for _, v := range features {
		if v > max {
			max = v
		}
	}
	if max > 0 {
		for i := range features {
			features[i] /= max
		}
	}
	return features, nil
}

package imageprocessor

import (
	"fmt"
	"image"
	"image/color"

	"imagesim/config"
	"imagesim/types"
	"imagesim/vectormath"
)

// ColorHistogramExtractor computes normalized 3D RGB histograms with
// bins³ cells. Bin count is corpus-wide configuration: histograms built
// under different bin counts are never comparable.
type ColorHistogramExtractor struct {
	bins      int
	resizeDim int
}

// NewColorHistogramExtractor creates a histogram extractor for the given
// bin count. Extraction operates on the image scaled to
// resizeDim×resizeDim so pixel counts are comparable across inputs.
func NewColorHistogramExtractor(bins, resizeDim int) (*ColorHistogramExtractor, error) {
	if bins < config.MinBins || bins > config.MaxBins {
		return nil, types.NewConfigurationError("bins",
			fmt.Sprintf("bin count %d outside [%d,%d]", bins, config.MinBins, config.MaxBins))
	}
	if resizeDim < 1 {
		return nil, types.NewConfigurationError("resizeDim",
			fmt.Sprintf("resize dimension %d below 1", resizeDim))
	}
	return &ColorHistogramExtractor{bins: bins, resizeDim: resizeDim}, nil
}

// Name returns the feature identifier.
func (e *ColorHistogramExtractor) Name() string { return types.FeatureColor }

// Extract computes the histogram and stores it in the record along with
// the bin count it was built under.
func (e *ColorHistogramExtractor) Extract(img image.Image, rec *types.FeatureRecord) error {
	hist, err := ComputeColorHistogram(img, e.bins, e.resizeDim)
	if err != nil {
		return err
	}
	rec.ColorHistogram = hist
	rec.Bins = e.bins
	return nil
}

// Similarity computes the Bhattacharyya coefficient between the two
// stored histograms. Comparing records built under different bin counts
// is a configuration error, never a silent miscomparison.
func (e *ColorHistogramExtractor) Similarity(a, b *types.FeatureRecord) (float64, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("cannot compare nil records")
	}
	if a.Bins != b.Bins || a.Bins != e.bins {
		return 0, types.NewConfigurationError("bins",
			fmt.Sprintf("histogram bin counts differ: %d vs %d (extractor %d)", a.Bins, b.Bins, e.bins))
	}
	score, err := vectormath.Bhattacharyya(a.ColorHistogram, b.ColorHistogram)
	if err != nil {
		return 0, types.NewExtractionError(types.FeatureColor, err)
	}
	return score, nil
}

// ComputeColorHistogram computes a normalized 3D color histogram with
// bins³ cells over the image scaled to resizeDim×resizeDim. Pixels are
// read as non-premultiplied RGBA and fully transparent ones are skipped;
// if every pixel is transparent the histogram is all zeros. Cell index
// is r·bins² + g·bins + b with bin = channel·bins/256.
func ComputeColorHistogram(img image.Image, bins, resizeDim int) ([]float32, error) {
	if img == nil {
		return nil, types.NewInvalidImageError(0, 0, "nil image")
	}
	srcBounds := img.Bounds()
	if srcBounds.Dx() < 1 || srcBounds.Dy() < 1 {
		return nil, types.NewInvalidImageError(srcBounds.Dx(), srcBounds.Dy(), "empty image")
	}

	resized := ResizeImage(img, resizeDim, resizeDim)
	hist := make([]float32, bins*bins*bins)

	counted := 0
	bounds := resized.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := color.NRGBAModel.Convert(resized.At(x, y)).(color.NRGBA)
			if px.A == 0 {
				continue
			}
			r := int(px.R) * bins / 256
			g := int(px.G) * bins / 256
			b := int(px.B) * bins / 256
			hist[r*bins*bins+g*bins+b]++
			counted++
		}
	}
	if counted == 0 {
		return hist, nil
	}

	inv := 1 / float32(counted)
	for i := range hist {
		hist[i] *= inv
	}
	return hist, nil
}

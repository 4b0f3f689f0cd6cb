package engine

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagesim/config"
	"imagesim/logging"
	"imagesim/store"
	"imagesim/types"
)

// testConfig keeps the feature vectors small so the scan tests stay fast.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.Bins = 8
	cfg.GridSize = 4
	cfg.ResizeDim = 32
	cfg.RebuildWorkers = 4
	return cfg
}

func newTestEngine(t *testing.T, cfg config.Config) (*Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	eng, err := New(cfg, st, logging.Discard())
	require.NoError(t, err)
	return eng, st
}

func makeSolid(w, h int, c color.NRGBA) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// makeGradient ramps from black to white left to right.
func makeGradient(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// makeBusy builds a blue/green checkerboard with white diagonal stripes,
// standing in for an unrelated photograph. It contains no red-dominant
// pixels, so its color histogram shares no cell with a solid red image.
func makeBusy(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := color.NRGBA{B: 255, A: 255}
			if (x/8+y/8)%2 == 0 {
				px = color.NRGBA{G: 255, A: 255}
			}
			if (x+y)%16 < 2 {
				px = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetNRGBA(x, y, px)
		}
	}
	return img
}

func TestNewValidatesInputs(t *testing.T) {
	bad := testConfig()
	bad.Bins = 1
	_, err := New(bad, store.NewMemoryStore(), logging.Discard())
	assert.True(t, types.IsConfiguration(err))

	_, err = New(testConfig(), nil, logging.Discard())
	assert.True(t, types.IsConfiguration(err))

	eng, err := New(testConfig(), store.NewMemoryStore(), nil)
	require.NoError(t, err)
	assert.Equal(t, 8, eng.Config().Bins)
}

func TestIndexImageCreatesRecord(t *testing.T) {
	eng, st := newTestEngine(t, testConfig())
	ctx := context.Background()

	rec, err := eng.IndexImage(ctx, "images/ramp.png", makeGradient(64, 64))
	require.NoError(t, err)

	_, err = uuid.Parse(rec.ID)
	assert.NoError(t, err, "record ID should be a UUID")
	assert.Equal(t, "images/ramp.png", rec.MediaRef)
	assert.NotZero(t, rec.PHash)
	assert.Len(t, rec.ColorHistogram, 8*8*8)
	assert.Len(t, rec.EdgeFeatures, 4*4)
	assert.Equal(t, 8, rec.Bins)
	assert.Equal(t, 4, rec.GridSize)
	assert.True(t, rec.CreatedAt.Equal(rec.UpdatedAt))

	stored, err := st.Get(ctx, "images/ramp.png")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
}

func TestIndexImageReindexPreservesIdentity(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	first, err := eng.IndexImage(ctx, "images/item.png", makeSolid(64, 64, color.NRGBA{R: 255, A: 255}))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	second, err := eng.IndexImage(ctx, "images/item.png", makeSolid(64, 64, color.NRGBA{B: 255, A: 255}))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.NotEqual(t, first.ColorHistogram, second.ColorHistogram)
}

func TestIndexImageRejectsBadInput(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	_, err := eng.IndexImage(ctx, "", makeGradient(64, 64))
	assert.Error(t, err)

	_, err = eng.IndexImage(ctx, "images/nil.png", nil)
	assert.True(t, types.IsInvalidImage(err))

	_, err = eng.IndexImage(ctx, "images/tiny.png", makeSolid(1, 1, color.NRGBA{A: 255}))
	assert.True(t, types.IsInvalidImage(err))

	stats, err := eng.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalIndexed)
}

func TestRemoveIndex(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig())
	ctx := context.Background()
	red := makeSolid(64, 64, color.NRGBA{R: 255, A: 255})

	_, err := eng.IndexImage(ctx, "images/red.png", red)
	require.NoError(t, err)

	require.NoError(t, eng.RemoveIndex(ctx, "images/red.png"))

	results, err := eng.Search(ctx, types.SearchQuery{Image: red, Threshold: 0})
	require.NoError(t, err)
	for _, res := range results {
		assert.NotEqual(t, "images/red.png", res.Record.MediaRef)
	}

	// Removing twice, or removing a reference never indexed, is a no-op.
	assert.NoError(t, eng.RemoveIndex(ctx, "images/red.png"))
	assert.NoError(t, eng.RemoveIndex(ctx, "images/never-indexed.png"))
	assert.Error(t, eng.RemoveIndex(ctx, ""))
}

func TestGetStats(t *testing.T) {
	eng, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	stats, err := eng.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalIndexed)
	assert.True(t, stats.LastUpdated.IsZero())

	_, err = eng.IndexImage(ctx, "images/a.png", makeGradient(64, 64))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	last, err := eng.IndexImage(ctx, "images/b.png", makeBusy(64, 64))
	require.NoError(t, err)

	stats, err = eng.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalIndexed)
	assert.True(t, stats.LastUpdated.Equal(last.UpdatedAt))

	require.NoError(t, eng.RemoveIndex(ctx, "images/a.png"))
	stats, err = eng.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalIndexed)
}

package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ndviImage(t *testing.T, id string, g Grid, acquired, b2 float64, ndvi func(col, row int) (float64, bool)) *Image {
	t.Helper()
	img, err := NewImage(Metadata{ID: id, Acquired: day(int(acquired))}, g, wideFootprint(g),
		constantBand("B2", g, b2),
		constantBand(BandRed, g, b2+1),
		bandFrom(BandNDVI, g, ndvi),
	)
	require.NoError(t, err)
	return img
}

func TestQualityMosaic(t *testing.T) {
	g := testGrid
	bands := []string{"B2", BandRed, BandNDVI}

	t.Run("takes every band from the best step", func(t *testing.T) {
		// Image a wins the left half, image b the right half.
		a := ndviImage(t, "a", g, 1, 100, func(col, row int) (float64, bool) { return 0.8 - 0.2*float64(col), true })
		b := ndviImage(t, "b", g, 2, 200, func(col, row int) (float64, bool) { return 0.5, true })

		out, err := QualityMosaic("s2", g, NewCollection(a, b), BandNDVI, bands)
		require.NoError(t, err)

		for row := 0; row < g.Height; row++ {
			for col := 0; col < g.Width; col++ {
				b2, ok := compositeAt(out, "B2", col, row)
				require.True(t, ok)
				b4, _ := compositeAt(out, BandRed, col, row)
				ndvi, _ := compositeAt(out, BandNDVI, col, row)
				if col < 2 {
					assert.Equal(t, 100.0, b2)
					assert.Equal(t, 101.0, b4)
					assert.InDelta(t, 0.8-0.2*float64(col), ndvi, 1e-12)
				} else {
					assert.Equal(t, 200.0, b2)
					assert.Equal(t, 201.0, b4)
					assert.Equal(t, 0.5, ndvi)
				}
			}
		}
	})

	t.Run("ties go to the earliest acquisition", func(t *testing.T) {
		late := ndviImage(t, "late", g, 9, 900, func(col, row int) (float64, bool) { return 0.6, true })
		early := ndviImage(t, "early", g, 3, 300, func(col, row int) (float64, bool) { return 0.6, true })

		out, err := QualityMosaic("s2", g, NewCollection(late, early), BandNDVI, bands)
		require.NoError(t, err)
		v, _ := compositeAt(out, "B2", 0, 0)
		assert.Equal(t, 300.0, v)
	})

	t.Run("invalid NDVI never wins", func(t *testing.T) {
		a := ndviImage(t, "a", g, 1, 100, func(col, row int) (float64, bool) { return 0.1, true })
		b := ndviImage(t, "b", g, 2, 200, func(col, row int) (float64, bool) { return 0.9, false })
		out, err := QualityMosaic("s2", g, NewCollection(a, b), BandNDVI, bands)
		require.NoError(t, err)
		v, _ := compositeAt(out, "B2", 0, 0)
		assert.Equal(t, 100.0, v)
	})

	t.Run("masked step is skipped", func(t *testing.T) {
		a := ndviImage(t, "a", g, 1, 100, func(col, row int) (float64, bool) { return 0.1, true })
		b := ndviImage(t, "b", g, 2, 200, func(col, row int) (float64, bool) { return 0.9, true }).
			UpdateMask(func(col, row int) bool { return false })
		out, err := QualityMosaic("s2", g, NewCollection(a, b), BandNDVI, bands)
		require.NoError(t, err)
		v, _ := compositeAt(out, "B2", 0, 0)
		assert.Equal(t, 100.0, v)
	})

	t.Run("no valid step leaves every band invalid", func(t *testing.T) {
		a := ndviImage(t, "a", g, 1, 100, func(col, row int) (float64, bool) { return 0, col != 1 })
		out, err := QualityMosaic("s2", g, NewCollection(a), BandNDVI, bands)
		require.NoError(t, err)
		for _, name := range bands {
			_, ok := compositeAt(out, name, 1, 0)
			assert.False(t, ok, name)
		}
		_, ok := compositeAt(out, "B2", 0, 0)
		assert.True(t, ok)
	})

	t.Run("empty collection", func(t *testing.T) {
		out, err := QualityMosaic("s2", g, nil, BandNDVI, bands)
		require.NoError(t, err)
		assert.Equal(t, 0, out.ValidPixels())
		assert.Equal(t, bands, out.BandNames())
	})

	t.Run("grid mismatch", func(t *testing.T) {
		a := ndviImage(t, "a", g.Sub(0, 0, 2, 2), 1, 100, func(col, row int) (float64, bool) { return 0.1, true })
		_, err := QualityMosaic("s2", g, NewCollection(a), BandNDVI, bands)
		assert.True(t, errors.Is(err, ErrGridMismatch))
	})
}

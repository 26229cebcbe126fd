package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrectTerrain_FlatTerrainKeepsAngle(t *testing.T) {
	g := testGrid
	img := s1Image(t, "s1", g, Descending, day(1), 38.5, -8, -10)

	out, err := CorrectTerrain(img, flatTerrain(g), 193)
	require.NoError(t, err)

	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			lia, ok := out.Sample(BandLIA, col, row)
			require.True(t, ok)
			assert.InDelta(t, 38.5, lia, 1e-12)

			vv, ok := out.Sample(BandVVGamma0, col, row)
			require.True(t, ok)
			assert.InDelta(t, -8-10*math.Log10(math.Cos(38.5*math.Pi/180)), vv, 1e-12)
		}
	}
	assert.Equal(t, []string{BandAngle, BandVV, BandVH, BandLIA, BandVHGamma0, BandVVGamma0}, out.BandNames())
}

func TestCorrectTerrain_InvalidInputs(t *testing.T) {
	g := testGrid

	t.Run("missing band", func(t *testing.T) {
		img, err := NewImage(Metadata{ID: "s1"}, g, wideFootprint(g), constantBand(BandAngle, g, 30))
		require.NoError(t, err)
		_, err = CorrectTerrain(img, flatTerrain(g), 0)
		assert.True(t, errors.Is(err, ErrMissingBand))
	})

	t.Run("no terrain coverage", func(t *testing.T) {
		img := s1Image(t, "s1", g, Ascending, day(1), 30, -8, -10)
		elsewhere := flatTerrain(Grid{OriginX: 0, OriginY: 0, PixelSize: 10, Width: 4, Height: 3})
		out, err := CorrectTerrain(img, elsewhere, 0)
		require.NoError(t, err)
		lia, _ := out.Band(BandLIA)
		assert.Equal(t, 0, lia.ValidCount())
	})

	t.Run("grazing incidence", func(t *testing.T) {
		img := s1Image(t, "s1", g, Ascending, day(1), 100, -8, -10)
		out, err := CorrectTerrain(img, flatTerrain(g), 0)
		require.NoError(t, err)
		_, ok := out.Sample(BandLIA, 0, 0)
		assert.True(t, ok)
		_, ok = out.Sample(BandVVGamma0, 0, 0)
		assert.False(t, ok, "cos(lia) <= 0 is invalid")
	})
}

func TestLocalIncidenceAngle(t *testing.T) {
	assert.InDelta(t, 15.0, LocalIncidenceAngle(35, 20, 100, 100), 1e-12, "slope facing the azimuth")
	assert.InDelta(t, 55.0, LocalIncidenceAngle(35, 20, 280, 100), 1e-12, "slope facing away")
	assert.InDelta(t, 35.0, LocalIncidenceAngle(35, 20, 10, 100), 1e-12, "slope across the azimuth")
	assert.InDelta(t, 5.0, LocalIncidenceAngle(10, 15, 0, 0), 1e-12, "absolute value")
}

func TestGamma0(t *testing.T) {
	v, ok := Gamma0(-10, 60)
	require.True(t, ok)
	assert.InDelta(t, -10+10*math.Log10(2), v, 1e-12)

	v, ok = Gamma0(-10, 0)
	require.True(t, ok)
	assert.Equal(t, -10.0, v)

	_, ok = Gamma0(-10, 120)
	assert.False(t, ok)
}

func TestDeriveTerrain(t *testing.T) {
	g := Grid{OriginX: 0, OriginY: 50, PixelSize: 10, Width: 5, Height: 5}

	t.Run("east facing plane", func(t *testing.T) {
		// Drops 10 m per 10 m pixel eastward.
		z := bandFrom("z", g, func(col, row int) (float64, bool) { return 100 - 10*float64(col), true })
		tm := DeriveTerrain(&ElevationModel{Grid: g, Elevation: z})
		for _, px := range [][2]int{{0, 0}, {2, 2}, {4, 4}} {
			s, ok := tm.Slope.At(px[0], px[1])
			require.True(t, ok)
			assert.InDelta(t, 45.0, s, 1e-9)
			a, _ := tm.Aspect.At(px[0], px[1])
			assert.InDelta(t, 90.0, a, 1e-9)
		}
	})

	t.Run("south facing plane", func(t *testing.T) {
		// Rises 5 m per pixel northward.
		z := bandFrom("z", g, func(col, row int) (float64, bool) { return 100 - 5*float64(row), true })
		tm := DeriveTerrain(&ElevationModel{Grid: g, Elevation: z})
		s, _ := tm.Slope.At(2, 2)
		assert.InDelta(t, math.Atan(0.5)*180/math.Pi, s, 1e-9)
		a, _ := tm.Aspect.At(2, 2)
		assert.InDelta(t, 180.0, a, 1e-9)
	})

	t.Run("flat terrain faces north", func(t *testing.T) {
		tm := DeriveTerrain(&ElevationModel{Grid: g, Elevation: constantBand("z", g, 12)})
		s, _ := tm.Slope.At(1, 1)
		a, _ := tm.Aspect.At(1, 1)
		assert.Equal(t, 0.0, s)
		assert.Equal(t, 0.0, a)
	})

	t.Run("invalid neighbour invalidates the stencil", func(t *testing.T) {
		z := bandFrom("z", g, func(col, row int) (float64, bool) { return 1, !(col == 2 && row == 2) })
		tm := DeriveTerrain(&ElevationModel{Grid: g, Elevation: z})
		_, ok := tm.Slope.At(1, 2)
		assert.False(t, ok)
		_, ok = tm.Slope.At(2, 1)
		assert.False(t, ok)
		_, ok = tm.Slope.At(0, 0)
		assert.True(t, ok)
	})

	t.Run("sampled at point", func(t *testing.T) {
		tm := DeriveTerrain(&ElevationModel{Grid: g, Elevation: constantBand("z", g, 1)})
		_, _, ok := tm.At(g.Center(4, 4))
		assert.True(t, ok)
		_, _, ok = tm.At(g.Center(5, 4))
		assert.False(t, ok)
	})
}

func TestSatelliteAzimuth(t *testing.T) {
	g := testGrid

	t.Run("mean aspect of the angle raster", func(t *testing.T) {
		// Incidence angle grows eastward, so the angle "surface" faces west.
		angle := bandFrom(BandAngle, g, func(col, row int) (float64, bool) { return 30 + 0.01*float64(col), true })
		img, err := NewImage(Metadata{ID: "s1"}, g, wideFootprint(g), angle)
		require.NoError(t, err)

		az, err := SatelliteAzimuth(img)
		require.NoError(t, err)
		assert.InDelta(t, 270.0, az, 1e-9)
	})

	t.Run("no valid pixels", func(t *testing.T) {
		img, err := NewImage(Metadata{ID: "s1"}, g, wideFootprint(g), NewBand(BandAngle, g.Width, g.Height))
		require.NoError(t, err)
		_, err = SatelliteAzimuth(img)
		assert.True(t, errors.Is(err, ErrMissingBand))
	})

	t.Run("pixels outside the footprint are ignored", func(t *testing.T) {
		angle := bandFrom(BandAngle, g, func(col, row int) (float64, bool) { return 30 + 0.01*float64(col), true })
		img, err := NewImage(Metadata{ID: "s1"}, g, Grid{OriginX: 0, OriginY: 10, PixelSize: 10, Width: 1, Height: 1}.Bound().ToPolygon(), angle)
		require.NoError(t, err)
		_, err = SatelliteAzimuth(img)
		assert.True(t, errors.Is(err, ErrMissingBand))
	})
}

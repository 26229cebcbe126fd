package domain

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

// testGrid is a small 10 m grid inside a large footprint.
var testGrid = Grid{OriginX: 500000, OriginY: 4000000, PixelSize: 10, Width: 4, Height: 3}

// wideFootprint is far larger than any test grid and the edge displacement.
func wideFootprint(g Grid) orb.Polygon {
	b := g.Bound().Pad(100000)
	return b.ToPolygon()
}

func constantBand(name string, g Grid, v float64) *Band {
	b := NewBand(name, g.Width, g.Height)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			b.Set(col, row, v)
		}
	}
	return b
}

func bandFrom(name string, g Grid, fn func(col, row int) (float64, bool)) *Band {
	b := NewBand(name, g.Width, g.Height)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if v, ok := fn(col, row); ok {
				b.Set(col, row, v)
			}
		}
	}
	return b
}

func s1Image(t *testing.T, id string, g Grid, orbit OrbitDirection, acquired time.Time, angle, vv, vh float64) *Image {
	t.Helper()
	img, err := NewImage(Metadata{
		ID:             id,
		Sensor:         SensorS1,
		Acquired:       acquired,
		Orbit:          orbit,
		Polarisations:  []string{BandVV, BandVH},
		InstrumentMode: "IW",
		Resolution:     "H",
	}, g, wideFootprint(g),
		constantBand(BandAngle, g, angle),
		constantBand(BandVV, g, vv),
		constantBand(BandVH, g, vh),
	)
	require.NoError(t, err)
	return img
}

type s2Pixel struct {
	B4, B8, B11, SCL, Prob float64
}

func s2Image(t *testing.T, id string, g Grid, acquired time.Time, px s2Pixel) *Image {
	t.Helper()
	img, err := NewImage(Metadata{ID: id, Sensor: SensorS2, Acquired: acquired}, g, wideFootprint(g),
		constantBand("B2", g, 500),
		constantBand(BandRed, g, px.B4),
		constantBand(BandNIR, g, px.B8),
		constantBand(BandSWIR, g, px.B11),
		constantBand(BandSCL, g, px.SCL),
		constantBand(BandCloudProb, g, px.Prob),
	)
	require.NoError(t, err)
	return img
}

func flatTerrain(g Grid) *TerrainModel {
	return &TerrainModel{
		Grid:   g,
		Slope:  constantBand("slope", g, 0),
		Aspect: constantBand("aspect", g, 0),
	}
}

func day(d int) time.Time {
	return time.Date(2019, 7, d, 10, 0, 0, 0, time.UTC)
}

func compositeAt(c *Composite, band string, col, row int) (float64, bool) {
	b, err := c.Band(band)
	if err != nil {
		return 0, false
	}
	return b.At(col, row)
}

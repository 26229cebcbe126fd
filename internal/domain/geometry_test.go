package domain

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		bound orb.Bound
	}{
		{
			name:  "WKT polygon",
			input: "POLYGON((0 0, 100 0, 100 50, 0 50, 0 0))",
			bound: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 50}},
		},
		{
			name:  "WKT single-part multipolygon",
			input: "MULTIPOLYGON(((10 10, 20 10, 20 20, 10 20, 10 10)))",
			bound: orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{20, 20}},
		},
		{
			name:  "GeoJSON geometry",
			input: `{"type":"Polygon","coordinates":[[[0,0],[30,0],[30,30],[0,30],[0,0]]]}`,
			bound: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{30, 30}},
		},
		{
			name:  "GeoJSON feature",
			input: `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[5,0],[5,5],[0,5],[0,0]]]}}`,
			bound: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{5, 5}},
		},
		{
			name:  "GeoJSON feature collection",
			input: `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[1,1],[2,1],[2,2],[1,2],[1,1]]]}}]}`,
			bound: orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{2, 2}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poly, err := ParseRegion(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.bound, poly.Bound())
		})
	}

	for _, bad := range []string{
		"",
		"POINT(1 2)",
		"POLYGON((0 0, 0 0, 0 0, 0 0))",
		"MULTIPOLYGON(((0 0, 1 0, 1 1, 0 0)),((5 5, 6 5, 6 6, 5 5)))",
		"{not json",
	} {
		_, err := ParseRegion(bad)
		assert.True(t, errors.Is(err, ErrInvalidRegion), "input %q: %v", bad, err)
	}
}

func TestGridForRegion(t *testing.T) {
	region, err := ParseRegion("POLYGON((671003 419600, 690998 419600, 690998 439605, 671003 439605, 671003 419600))")
	require.NoError(t, err)

	g, err := GridForRegion(region, 10)
	require.NoError(t, err)
	assert.Equal(t, Grid{OriginX: 671000, OriginY: 439610, PixelSize: 10, Width: 2000, Height: 2001}, g)

	_, err = GridForRegion(region, 0)
	assert.True(t, errors.Is(err, ErrInvalidRegion))
}

func TestClipToRegion(t *testing.T) {
	g := Grid{OriginX: 0, OriginY: 20, PixelSize: 10, Width: 2, Height: 2}
	c := NewComposite("c", g, "a")
	a, _ := c.Band("a")
	for i := range a.Values {
		a.Values[i], a.Valid[i] = 1, true
	}

	// Covers the centres of the left column only.
	region := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 20}}.ToPolygon()
	ClipToRegion(c, region)

	assert.Equal(t, []bool{true, false, true, false}, a.Valid)
}

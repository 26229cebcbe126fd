package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ParseRegion parses a polygon given as WKT or as a GeoJSON geometry,
// feature or single-feature collection.
func ParseRegion(s string) (orb.Polygon, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidRegion)
	}

	var geom orb.Geometry
	var err error
	if strings.HasPrefix(s, "{") {
		geom, err = parseGeoJSON([]byte(s))
	} else {
		geom, err = wkt.Unmarshal(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegion, err)
	}

	var poly orb.Polygon
	switch g := geom.(type) {
	case orb.Polygon:
		poly = g
	case orb.MultiPolygon:
		if len(g) != 1 {
			return nil, fmt.Errorf("%w: multipolygon with %d parts", ErrInvalidRegion, len(g))
		}
		poly = g[0]
	case orb.Bound:
		poly = g.ToPolygon()
	default:
		return nil, fmt.Errorf("%w: unsupported geometry %s", ErrInvalidRegion, geom.GeoJSONType())
	}

	if len(poly) == 0 || len(poly[0]) < 4 || planar.Area(poly) == 0 {
		return nil, fmt.Errorf("%w: degenerate polygon", ErrInvalidRegion)
	}
	return poly, nil
}

func parseGeoJSON(data []byte) (orb.Geometry, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && fc.Type == "FeatureCollection" {
		if len(fc.Features) != 1 {
			return nil, fmt.Errorf("feature collection with %d features", len(fc.Features))
		}
		return fc.Features[0].Geometry, nil
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Type == "Feature" {
		return f.Geometry, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	return g.Geometry(), nil
}

// GridForRegion returns the grid of the given pixel size that covers the
// region's bounding box, snapped to multiples of the pixel size.
func GridForRegion(region orb.Polygon, scale float64) (Grid, error) {
	if !(scale > 0) {
		return Grid{}, fmt.Errorf("%w: scale %v", ErrInvalidRegion, scale)
	}
	b := region.Bound()
	minX := math.Floor(b.Min[0]/scale) * scale
	maxY := math.Ceil(b.Max[1]/scale) * scale
	maxX := math.Ceil(b.Max[0]/scale) * scale
	minY := math.Floor(b.Min[1]/scale) * scale
	g := Grid{
		OriginX:   minX,
		OriginY:   maxY,
		PixelSize: scale,
		Width:     int(math.Round((maxX - minX) / scale)),
		Height:    int(math.Round((maxY - minY) / scale)),
	}
	if g.Width == 0 || g.Height == 0 {
		return Grid{}, fmt.Errorf("%w: region smaller than one pixel", ErrInvalidRegion)
	}
	return g, nil
}

// ClipToRegion invalidates every composite pixel whose centre lies outside region.
func ClipToRegion(c *Composite, region orb.Polygon) {
	for row := 0; row < c.Grid.Height; row++ {
		for col := 0; col < c.Grid.Width; col++ {
			if planar.PolygonContains(region, c.Grid.Center(col, row)) {
				continue
			}
			for _, b := range c.bands {
				b.Invalidate(col, row)
			}
		}
	}
}

// insideShrunk reports whether p lies inside poly and at least margin away
// from its boundary, i.e. inside poly buffered inward by margin.
func insideShrunk(poly orb.Polygon, p orb.Point, margin float64) bool {
	if len(poly) == 0 || !planar.PolygonContains(poly, p) {
		return false
	}
	return planar.DistanceFrom(poly, p) >= margin
}

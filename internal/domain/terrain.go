package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/stat"
)

// Sentinel-1 band names.
const (
	BandAngle    = "angle"
	BandVV       = "VV"
	BandVH       = "VH"
	BandLIA      = "lia"
	BandVVGamma0 = "VV_gamma0"
	BandVHGamma0 = "VH_gamma0"
)

const deg = math.Pi / 180

// ElevationModel is an elevation raster in metres on its own grid.
type ElevationModel struct {
	Grid      Grid
	Elevation *Band
}

// TerrainModel holds slope and aspect in degrees on the elevation grid.
type TerrainModel struct {
	Grid   Grid
	Slope  *Band
	Aspect *Band
}

// DeriveTerrain computes slope and aspect from an elevation model.
func DeriveTerrain(em *ElevationModel) *TerrainModel {
	slope, aspect := slopeAspect(em.Elevation, em.Grid.PixelSize)
	return &TerrainModel{Grid: em.Grid, Slope: slope, Aspect: aspect}
}

// At returns slope and aspect at the pixel containing p.
func (t *TerrainModel) At(p orb.Point) (slope, aspect float64, ok bool) {
	col, row, inside := t.Grid.PixelAt(p)
	if !inside {
		return 0, 0, false
	}
	s, sok := t.Slope.At(col, row)
	a, aok := t.Aspect.At(col, row)
	return s, a, sok && aok
}

// slopeAspect uses 4-connected central differences, one-sided at the raster
// edges. Slope is in degrees from horizontal; aspect is the downslope facing
// direction in degrees clockwise from north in [0, 360). A pixel with an
// invalid neighbour is invalid.
func slopeAspect(z *Band, size float64) (slope, aspect *Band) {
	w, h := z.Width, z.Height
	slope = NewBand("slope", w, h)
	aspect = NewBand("aspect", w, h)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if _, ok := z.At(col, row); !ok {
				continue
			}
			west, east := max(col-1, 0), min(col+1, w-1)
			north, south := max(row-1, 0), min(row+1, h-1)

			var dzdx, dzdy float64
			if east > west {
				ze, okE := z.At(east, row)
				zw, okW := z.At(west, row)
				if !okE || !okW {
					continue
				}
				dzdx = (ze - zw) / (float64(east-west) * size)
			}
			if south > north {
				zn, okN := z.At(col, north)
				zs, okS := z.At(col, south)
				if !okN || !okS {
					continue
				}
				// y grows northward while rows grow southward.
				dzdy = (zn - zs) / (float64(south-north) * size)
			}

			slope.Set(col, row, math.Atan(math.Hypot(dzdx, dzdy))/deg)
			// Flat cells face north.
			var a float64
			if dzdx != 0 || dzdy != 0 {
				a = math.Atan2(-dzdx, -dzdy) / deg
				if a < 0 {
					a += 360
				}
			}
			aspect.Set(col, row, a)
		}
	}
	return slope, aspect
}

// SatelliteAzimuth estimates the satellite heading of a scene as the mean
// aspect of its incidence angle raster over the footprint. The angle band
// must cover the full scene extent of interest; it is a spatial aggregate
// and is computed once per scene.
func SatelliteAzimuth(img *Image) (float64, error) {
	angle, err := img.Band(BandAngle)
	if err != nil {
		return 0, err
	}
	_, aspect := slopeAspect(angle, img.Grid.PixelSize)

	var values []float64
	for row := 0; row < img.Grid.Height; row++ {
		for col := 0; col < img.Grid.Width; col++ {
			a, ok := aspect.At(col, row)
			if !ok || img.Masked(col, row) {
				continue
			}
			if len(img.Footprint) > 0 && !planar.PolygonContains(img.Footprint, img.Grid.Center(col, row)) {
				continue
			}
			values = append(values, a)
		}
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: no valid %s pixels in footprint of %s", ErrMissingBand, BandAngle, img.ID)
	}
	return stat.Mean(values, nil), nil
}

// LocalIncidenceAngle returns the incidence angle relative to the terrain
// surface, in degrees, for the ellipsoid incidence angle and terrain slope
// and aspect projected on the satellite azimuth.
func LocalIncidenceAngle(angle, slope, aspect, azimuth float64) float64 {
	projected := slope * math.Cos((azimuth-aspect)*deg)
	return math.Abs(angle - (90 - (90 - projected)))
}

// Gamma0 converts sigma0 backscatter in dB to gamma0 for a local incidence
// angle in degrees. ok is false where cos(lia) is not positive.
func Gamma0(sigma0, lia float64) (float64, bool) {
	c := math.Cos(lia * deg)
	if c <= 0 {
		return 0, false
	}
	return sigma0 - 10*math.Log10(c), true
}

// CorrectTerrain adds lia, VH_gamma0 and VV_gamma0 bands to a Sentinel-1
// image. The terrain model is sampled at each pixel centre.
func CorrectTerrain(img *Image, terrain *TerrainModel, azimuth float64) (*Image, error) {
	for _, b := range []string{BandAngle, BandVV, BandVH} {
		if _, err := img.Band(b); err != nil {
			return nil, err
		}
	}

	g := img.Grid
	lia := NewBand(BandLIA, g.Width, g.Height)
	vh := NewBand(BandVHGamma0, g.Width, g.Height)
	vv := NewBand(BandVVGamma0, g.Width, g.Height)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			a, ok := img.Sample(BandAngle, col, row)
			if !ok {
				continue
			}
			slope, aspect, ok := terrain.At(g.Center(col, row))
			if !ok {
				continue
			}
			l := LocalIncidenceAngle(a, slope, aspect, azimuth)
			lia.Set(col, row, l)

			if x, ok := img.Sample(BandVH, col, row); ok {
				if y, ok := Gamma0(x, l); ok {
					vh.Set(col, row, y)
				}
			}
			if x, ok := img.Sample(BandVV, col, row); ok {
				if y, ok := Gamma0(x, l); ok {
					vv.Set(col, row, y)
				}
			}
		}
	}
	return img.WithBands(lia, vh, vv)
}

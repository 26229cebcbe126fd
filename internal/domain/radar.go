package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Radar composite band names, in export order.
const (
	BandT0VH = "t0_vh"
	BandT0VV = "t0_vv"
)

// RadarBands lists the bands of every radar composite.
var RadarBands = []string{BandT0VH, BandT0VV}

const (
	radarPercentile = 50
	// vhOffset shifts VH so both polarisations land in a similar positive range.
	vhOffset = 5.5
)

// IsDualPolarisation reports whether a scene was acquired in both VV and VH.
func IsDualPolarisation(md Metadata) bool {
	return md.HasPolarisation(BandVV) && md.HasPolarisation(BandVH)
}

// PrepareRadarImage terrain-corrects a Sentinel-1 image and masks the
// near-edge strip of its swath.
func PrepareRadarImage(img *Image, terrain *TerrainModel, azimuth float64) (*Image, error) {
	corrected, err := CorrectTerrain(img, terrain, azimuth)
	if err != nil {
		return nil, err
	}
	return MaskEdges(corrected, img.Orbit), nil
}

// BuildRadarComposite reduces prepared images of one orbit pass to a
// per-pixel median per polarisation:
//
//	t0_vh = −p50(VH_gamma0) − 5.5
//	t0_vv = −p50(VV_gamma0)
//
// Only valid observations take part. An empty collection yields a fully
// invalid composite tagged with the orbit pass.
func BuildRadarComposite(grid Grid, orbit OrbitDirection, images Collection) (*Composite, error) {
	out := NewComposite("s1_"+strings.ToLower(orbit.String()), grid, RadarBands...)
	out.Orbit = orbit
	for _, img := range images {
		if img.Grid != grid {
			return nil, fmt.Errorf("%w: image %s not on composite grid", ErrGridMismatch, img.ID)
		}
	}

	vh, _ := out.Band(BandT0VH)
	vv, _ := out.Band(BandT0VV)
	stack := make([]float64, 0, len(images))
	reduce := func(col, row int, band string, dst *Band, offset float64) {
		stack = stack[:0]
		for _, img := range images {
			if v, ok := img.Sample(band, col, row); ok {
				stack = append(stack, v)
			}
		}
		if len(stack) == 0 {
			return
		}
		dst.Set(col, row, -Percentile(stack, radarPercentile)-offset)
	}

	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			reduce(col, row, BandVHGamma0, vh, vhOffset)
			reduce(col, row, BandVVGamma0, vv, 0)
		}
	}
	return out, nil
}

// Percentile returns the p-th percentile of values by linear interpolation
// between closest ranks (rank = p/100·(n−1)). values is reordered.
// It returns NaN for an empty slice.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	slices.Sort(values)
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return values[lo]
	}
	frac := rank - float64(lo)
	return values[lo] + frac*(values[hi]-values[lo])
}

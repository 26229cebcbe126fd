package domain

import "github.com/paulmach/orb"

const (
	// edgeMargin is the inward buffer applied to the footprint before the
	// displacement test.
	edgeMargin = 50.0
	// edgeDisplacement is the easting shift of the displaced footprints.
	edgeDisplacement = 5000.0
	// edgeWedgeSlope is the northing/easting ratio of the displacement for
	// ascending passes; descending passes use its negation.
	edgeWedgeSlope = 0.2247366657
)

// EdgeDisplacement returns the displacement vector for an orbit pass.
func EdgeDisplacement(orbit OrbitDirection) orb.Point {
	k := edgeWedgeSlope
	if orbit == Descending {
		k = -k
	}
	return orb.Point{edgeDisplacement, k * edgeDisplacement}
}

// MaskEdges removes the noisy near-edge strip of a Sentinel-1 scene. The
// footprint is shrunk by 50 m; a pixel stays valid only if it is inside the
// shrunk footprint and inside both copies displaced by ±d along the swath
// wedge. The result may be entirely invalid.
func MaskEdges(img *Image, orbit OrbitDirection) *Image {
	d := EdgeDisplacement(orbit)
	fp := img.Footprint
	return img.UpdateMask(func(col, row int) bool {
		p := img.Grid.Center(col, row)
		return insideShrunk(fp, p, edgeMargin) &&
			insideShrunk(fp, orb.Point{p[0] + d[0], p[1] + d[1]}, edgeMargin) &&
			insideShrunk(fp, orb.Point{p[0] - d[0], p[1] - d[1]}, edgeMargin)
	})
}

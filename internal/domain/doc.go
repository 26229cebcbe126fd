// Package domain models Sentinel-1 radar and Sentinel-2 optical scenes and
// the per-pixel operations that reduce them to export composites.
//
// # Rasters
//
// All rasters are north-up grids in one projected CRS whose units are
// metres. A [Grid] is anchored at its top-left corner; pixel (col, row)
// covers
//
//	x ∈ [originX + col·size, originX + (col+1)·size)
//	y ∈ (originY − (row+1)·size, originY − row·size]
//
// and its centre is used for every geometric test (footprint, region,
// elevation lookup).
//
// A [Band] carries a value buffer and a validity buffer of the same shape.
// An invalid pixel has no value: accessors return (value, ok) and
// operations propagate invalid inputs to invalid outputs. Non-finite
// results are stored as invalid, so NaN and Inf never reach an export.
//
// # Sentinel-1 conventions
//
// GRD scenes carry backscatter bands VV and VH in decibels and the
// ellipsoid incidence angle band "angle" in degrees. Orbit pass is
// ASCENDING or DESCENDING; only interferometric wide swath ("IW") scenes at
// high resolution ("H") with both polarisations are composited.
//
// Terrain correction follows the volume model:
//
//	slope_projected = slope · cos(azimuth − aspect)
//	lia             = |angle − slope_projected|
//	γ0              = σ0 − 10·log10(cos(lia))
//
// where the satellite azimuth is the mean aspect of the incidence angle
// raster over the scene footprint.
//
// # Sentinel-2 conventions
//
// Level-2A surface reflectance bands B1…B12 are scaled by 10000. The
// scene classification band SCL uses the ESA codes:
//
//	 1 saturated or defective    3 cloud shadow
//	 8 cloud medium probability  9 cloud high probability
//	10 thin cirrus              11 snow or ice
//
// MSK_CLDPRB is the cloud probability in percent.
//
// # Exports
//
// Composites are quantized to 8 bits before export: radar values are
// multiplied by 12, optical reflectances are divided by 2000 and
// multiplied by 255. Values are rounded half away from zero and clipped to
// [0, 255].
package domain

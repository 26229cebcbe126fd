package domain

import "math"

// Sentinel-2 band names used by masking and the quality mosaic.
const (
	BandCloudProb = "MSK_CLDPRB"
	BandSCL       = "SCL"
	BandRed       = "B4"
	BandNIR       = "B8"
	BandSWIR      = "B11"
	BandNDVI      = "NDVI"
)

// Scene classification codes rejected by the cloud mask.
const (
	SCLSaturated   = 1
	SCLCloudShadow = 3
	SCLCloudMedium = 8
	SCLCloudHigh   = 9
	SCLThinCirrus  = 10
	SCLSnowOrIce   = 11
)

const (
	cloudProbLimit = 60
	darkSWIRLimit  = 1200
	darkRedLimit   = 200
)

// CloudMaskBands lists the bands MaskCloudsAndShadows needs.
var CloudMaskBands = []string{BandCloudProb, BandSCL, BandRed, BandNIR, BandSWIR}

func clearProbability(p float64) bool { return p < cloudProbLimit }

func clearSceneClass(code float64) bool {
	switch int(math.Round(code)) {
	case SCLSaturated, SCLCloudShadow, SCLCloudMedium, SCLCloudHigh, SCLThinCirrus, SCLSnowOrIce:
		return false
	}
	return true
}

// notDarkShadow rejects pixels dark in both SWIR and red, a cloud shadow
// signature that scene classification misses.
func notDarkShadow(swir, red float64) bool {
	return !(swir < darkSWIRLimit && red < darkRedLimit)
}

// NDVI returns (nir − red)/(nir + red). ok is false for a zero denominator
// or a result outside [−1, 1].
func NDVI(nir, red float64) (float64, bool) {
	den := nir + red
	if den == 0 {
		return 0, false
	}
	v := (nir - red) / den
	if math.IsNaN(v) || math.IsInf(v, 0) || v < -1 || v > 1 {
		return 0, false
	}
	return v, true
}

// MaskCloudsAndShadows adds an NDVI band to a Sentinel-2 image and narrows
// its mask to pixels that pass all three tests: cloud probability below 60,
// a scene class other than saturated, shadow, cloud, cirrus or snow, and
// not dark in both B11 and B4. A pixel whose test inputs are invalid fails.
func MaskCloudsAndShadows(img *Image) (*Image, error) {
	for _, b := range CloudMaskBands {
		if _, err := img.Band(b); err != nil {
			return nil, err
		}
	}

	g := img.Grid
	ndvi := NewBand(BandNDVI, g.Width, g.Height)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			nir, ok1 := img.Sample(BandNIR, col, row)
			red, ok2 := img.Sample(BandRed, col, row)
			if !ok1 || !ok2 {
				continue
			}
			if v, ok := NDVI(nir, red); ok {
				ndvi.Set(col, row, v)
			}
		}
	}
	withNDVI, err := img.WithBands(ndvi)
	if err != nil {
		return nil, err
	}

	return withNDVI.UpdateMask(func(col, row int) bool {
		prob, ok := img.Sample(BandCloudProb, col, row)
		if !ok || !clearProbability(prob) {
			return false
		}
		scl, ok := img.Sample(BandSCL, col, row)
		if !ok || !clearSceneClass(scl) {
			return false
		}
		swir, ok1 := img.Sample(BandSWIR, col, row)
		red, ok2 := img.Sample(BandRed, col, row)
		return ok1 && ok2 && notDarkShadow(swir, red)
	}), nil
}

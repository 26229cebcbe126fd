package netcdf

import (
	"fmt"
	"math"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// Global attribute names of a scene file.
const (
	AttrID             = "id"
	AttrSensor         = "sensor"
	AttrAcquired       = "acquired"
	AttrInstrumentMode = "instrument_mode"
	AttrResolution     = "resolution"
	AttrOrbitPass      = "orbit_pass"
	AttrPolarisations  = "polarisations"
	AttrOriginX        = "origin_x"
	AttrOriginY        = "origin_y"
	AttrPixelSize      = "pixel_size"
	AttrWidth          = "width"
	AttrHeight         = "height"
	AttrFootprint      = "footprint"
	AttrFillValue      = "_FillValue"
)

// Band variable dimensions, row-major.
var bandDims = []string{"y", "x"}

func attrString(attrs api.AttributeMap, key string) (string, error) {
	v, ok := attrs.Get(key)
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("attribute %q is %T, want string", key, v)
	}
	return s, nil
}

func optionalString(attrs api.AttributeMap, key string) string {
	s, _ := attrString(attrs, key)
	return s
}

func attrFloat(attrs api.AttributeMap, key string) (float64, error) {
	v, ok := attrs.Get(key)
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("attribute %q is %T, want a number", key, v)
	}
	return f, nil
}

// toFloat accepts the scalar and single-element slice forms the reader
// returns for numeric attributes.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int32:
		return float64(x), true
	case int16:
		return float64(x), true
	case int8:
		return float64(x), true
	case []float64:
		if len(x) == 1 {
			return x[0], true
		}
	case []float32:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

// fillValue returns the _FillValue of a variable, or NaN when unset.
func fillValue(v *api.Variable) float64 {
	if v.Attributes == nil {
		return math.NaN()
	}
	raw, ok := v.Attributes.Get(AttrFillValue)
	if !ok {
		return math.NaN()
	}
	f, ok := toFloat(raw)
	if !ok {
		return math.NaN()
	}
	return f
}

// raster2D flattens the value slice of a 2-D variable into row-major
// float64 values and returns its shape.
func raster2D(values any) (data []float64, w, h int, err error) {
	switch x := values.(type) {
	case [][]float32:
		return flatten(x)
	case [][]float64:
		return flatten(x)
	case [][]int16:
		return flatten(x)
	case [][]int32:
		return flatten(x)
	case [][]int8:
		return flatten(x)
	default:
		return nil, 0, 0, fmt.Errorf("unsupported band layout %T", values)
	}
}

type number interface {
	~float32 | ~float64 | ~int8 | ~int16 | ~int32
}

func flatten[T number](rows [][]T) ([]float64, int, int, error) {
	h := len(rows)
	if h == 0 {
		return nil, 0, 0, fmt.Errorf("empty band")
	}
	w := len(rows[0])
	data := make([]float64, 0, w*h)
	for i, row := range rows {
		if len(row) != w {
			return nil, 0, 0, fmt.Errorf("ragged band: row %d has %d columns, want %d", i, len(row), w)
		}
		for _, v := range row {
			data = append(data, float64(v))
		}
	}
	return data, w, h, nil
}

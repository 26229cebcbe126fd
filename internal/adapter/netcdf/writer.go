package netcdf

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/paulmach/orb/encoding/wkt"
)

// SceneFillValue marks invalid pixels in scene band variables.
const SceneFillValue = float32(-9999)

// WriteScene writes an image as a scene file readable by Archive. Bands are
// stored as float32 (y, x) variables; invalid pixels hold SceneFillValue.
func WriteScene(path string, img *domain.Image) error {
	w, err := createWriter(path)
	if err != nil {
		return err
	}

	attrs := map[string]any{
		AttrID:        img.ID,
		AttrSensor:    string(img.Sensor),
		AttrAcquired:  img.Acquired.UTC().Format(time.RFC3339),
		AttrOriginX:   img.Grid.OriginX,
		AttrOriginY:   img.Grid.OriginY,
		AttrPixelSize: img.Grid.PixelSize,
		AttrWidth:     int32(img.Grid.Width),
		AttrHeight:    int32(img.Grid.Height),
	}
	keys := []string{AttrID, AttrSensor, AttrAcquired, AttrOriginX, AttrOriginY, AttrPixelSize, AttrWidth, AttrHeight}
	optional := []struct {
		key, value string
	}{
		{AttrInstrumentMode, img.InstrumentMode},
		{AttrResolution, img.Resolution},
		{AttrOrbitPass, string(img.Orbit)},
		{AttrPolarisations, strings.Join(img.Polarisations, ",")},
	}
	for _, o := range optional {
		if o.value != "" {
			attrs[o.key] = o.value
			keys = append(keys, o.key)
		}
	}
	if len(img.Footprint) > 0 {
		attrs[AttrFootprint] = wkt.MarshalString(img.Footprint)
		keys = append(keys, AttrFootprint)
	}

	if err := addGlobalAttrs(w, keys, attrs); err != nil {
		return closeOnError(w, path, err)
	}

	for _, name := range img.BandNames() {
		b, err := img.Band(name)
		if err != nil {
			return closeOnError(w, path, err)
		}
		if err := addFloatBand(w, name, img, b); err != nil {
			return closeOnError(w, path, err)
		}
	}
	return closeWriter(w, path)
}

func addFloatBand(w *cdf.CDFWriter, name string, img *domain.Image, b *domain.Band) error {
	rows := make([][]float32, b.Height)
	for row := range rows {
		rows[row] = make([]float32, b.Width)
		for col := range rows[row] {
			v, ok := img.Sample(name, col, row)
			if !ok || math.IsNaN(v) {
				rows[row][col] = SceneFillValue
				continue
			}
			rows[row][col] = float32(v)
		}
	}
	attrs, err := util.NewOrderedMap([]string{AttrFillValue}, map[string]any{AttrFillValue: SceneFillValue})
	if err != nil {
		return fmt.Errorf("band %s attributes: %w", name, err)
	}
	if err := w.AddVar(name, api.Variable{Values: rows, Dimensions: bandDims, Attributes: attrs}); err != nil {
		return fmt.Errorf("write band %s: %w", name, err)
	}
	return nil
}

func createWriter(path string) (*cdf.CDFWriter, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("replace %s: %w", path, err)
	}
	w, err := cdf.OpenWriter(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return w, nil
}

func addGlobalAttrs(w *cdf.CDFWriter, keys []string, values map[string]any) error {
	attrs, err := util.NewOrderedMap(keys, values)
	if err != nil {
		return fmt.Errorf("global attributes: %w", err)
	}
	if err := w.AddGlobalAttrs(attrs); err != nil {
		return fmt.Errorf("write global attributes: %w", err)
	}
	return nil
}

func closeWriter(w *cdf.CDFWriter, path string) error {
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func closeOnError(w *cdf.CDFWriter, path string, err error) error {
	_ = w.Close()
	_ = os.Remove(path)
	return err
}

package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/paulmach/orb/encoding/wkt"
)

// Format is the export format name recorded in results.
const Format = "netcdf"

// MaskVariable holds 1 where a pixel is valid in at least one band, else 0.
const MaskVariable = "valid_mask"

// BandMaskSuffix names the per-band validity variable, <band>_valid.
const BandMaskSuffix = "_valid"

// Export global attribute names.
const (
	AttrName      = "name"
	AttrCRS       = "crs"
	AttrScale     = "scale"
	AttrRegion    = "region"
	AttrBands     = "bands"
	AttrNoData    = "nodata"
	AttrTimestamp = "timestamp"
)

// Sink writes quantized composites as one netCDF file per export.
type Sink struct {
	dir    string
	logger *slog.Logger
}

// NewSink creates a sink writing into dir.
func NewSink(dir string, logger *slog.Logger) *Sink {
	return &Sink{dir: dir, logger: logger}
}

// Export writes <name>.nc with an int16 variable and a <band>_valid mask per
// band, plus the export validity mask. Band variables carry a nodata
// attribute rather than _FillValue, since nodata is a legal quantized value
// and CF readers would hide valid pixels. Nothing is written when the
// request is invalid.
func (s *Sink) Export(ctx context.Context, req domain.ExportRequest) (domain.ExportResult, error) {
	if err := req.Validate(); err != nil {
		return domain.ExportResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.ExportResult{}, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return domain.ExportResult{}, fmt.Errorf("create export dir: %w", err)
	}

	name := ExportFile(req.Name)
	path := filepath.Join(s.dir, name)
	w, err := createWriter(path)
	if err != nil {
		return domain.ExportResult{}, err
	}

	q := req.Composite
	keys, values := exportAttrs(req)
	if err := addGlobalAttrs(w, keys, values); err != nil {
		return domain.ExportResult{}, closeOnError(w, path, err)
	}

	for _, b := range q.Bands {
		if err := ctx.Err(); err != nil {
			return domain.ExportResult{}, closeOnError(w, path, err)
		}
		if err := addQuantizedBand(w, q.Grid, b, int16(req.NoData)); err != nil {
			return domain.ExportResult{}, closeOnError(w, path, err)
		}
		if err := addBandMask(w, q.Grid, b); err != nil {
			return domain.ExportResult{}, closeOnError(w, path, err)
		}
	}
	if err := addMask(w, q); err != nil {
		return domain.ExportResult{}, closeOnError(w, path, err)
	}
	if err := closeWriter(w, path); err != nil {
		return domain.ExportResult{}, err
	}

	s.logger.Debug("export written", "name", req.Name, "path", path)
	return domain.NewExportResult(req, Format, []string{name}), nil
}

// BandMaskVariable returns the validity variable name of a band.
func BandMaskVariable(band string) string {
	return band + BandMaskSuffix
}

// ExportFile returns the file name of an export.
func ExportFile(export string) string {
	return export + ".nc"
}

func exportAttrs(req domain.ExportRequest) ([]string, map[string]any) {
	g := req.Composite.Grid
	values := map[string]any{
		AttrName:      req.Name,
		AttrCRS:       req.CRS,
		AttrScale:     req.Scale,
		AttrOriginX:   g.OriginX,
		AttrOriginY:   g.OriginY,
		AttrPixelSize: g.PixelSize,
		AttrWidth:     int32(g.Width),
		AttrHeight:    int32(g.Height),
		AttrBands:     strings.Join(req.Composite.BandNames(), ","),
		AttrNoData:    int32(req.NoData),
		AttrTimestamp: req.Composite.Timestamp.UTC().Format(time.RFC3339),
	}
	keys := []string{
		AttrName, AttrCRS, AttrScale, AttrOriginX, AttrOriginY, AttrPixelSize,
		AttrWidth, AttrHeight, AttrBands, AttrNoData, AttrTimestamp,
	}
	if len(req.Region) > 0 {
		values[AttrRegion] = wkt.MarshalString(req.Region)
		keys = append(keys, AttrRegion)
	}
	return keys, values
}

func addQuantizedBand(w *cdf.CDFWriter, g domain.Grid, b *domain.QuantizedBand, nodata int16) error {
	rows := make([][]int16, g.Height)
	for row := range rows {
		rows[row] = make([]int16, g.Width)
		for col := range rows[row] {
			i := row*g.Width + col
			if b.Valid[i] {
				rows[row][col] = int16(b.Values[i])
			} else {
				rows[row][col] = nodata
			}
		}
	}
	attrs, err := util.NewOrderedMap([]string{AttrNoData}, map[string]any{AttrNoData: nodata})
	if err != nil {
		return fmt.Errorf("band %s attributes: %w", b.Name, err)
	}
	if err := w.AddVar(b.Name, api.Variable{Values: rows, Dimensions: bandDims, Attributes: attrs}); err != nil {
		return fmt.Errorf("write band %s: %w", b.Name, err)
	}
	return nil
}

func addBandMask(w *cdf.CDFWriter, g domain.Grid, b *domain.QuantizedBand) error {
	rows := make([][]int8, g.Height)
	for row := range rows {
		rows[row] = make([]int8, g.Width)
		for col := range rows[row] {
			if b.Valid[row*g.Width+col] {
				rows[row][col] = 1
			}
		}
	}
	attrs, err := util.NewOrderedMap([]string{"long_name"}, map[string]any{"long_name": "pixel valid in " + b.Name})
	if err != nil {
		return fmt.Errorf("band %s mask attributes: %w", b.Name, err)
	}
	if err := w.AddVar(BandMaskVariable(b.Name), api.Variable{Values: rows, Dimensions: bandDims, Attributes: attrs}); err != nil {
		return fmt.Errorf("write band %s mask: %w", b.Name, err)
	}
	return nil
}

func addMask(w *cdf.CDFWriter, q *domain.QuantizedComposite) error {
	attrs, err := util.NewOrderedMap([]string{"long_name"}, map[string]any{"long_name": "pixel valid in at least one band"})
	if err != nil {
		return fmt.Errorf("mask attributes: %w", err)
	}
	if err := w.AddVar(MaskVariable, api.Variable{Values: maskRows(q), Dimensions: bandDims, Attributes: attrs}); err != nil {
		return fmt.Errorf("write mask: %w", err)
	}
	return nil
}

func maskRows(q *domain.QuantizedComposite) [][]int8 {
	g := q.Grid
	rows := make([][]int8, g.Height)
	for row := range rows {
		rows[row] = make([]int8, g.Width)
		for col := range rows[row] {
			i := row*g.Width + col
			for _, b := range q.Bands {
				if b.Valid[i] {
					rows[row][col] = 1
					break
				}
			}
		}
	}
	return rows
}

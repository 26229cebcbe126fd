package geotiff

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"strings"

	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/paulmach/orb"
	"golang.org/x/image/tiff"
)

// DEMNoData marks void cells in a 16-bit DEM.
const DEMNoData = math.MaxUint16

// DEM is an elevation source backed by a 16-bit grayscale TIFF and its
// world file. The whole raster is held in memory.
type DEM struct {
	model *domain.ElevationModel
}

// OpenDEM reads path and the world file next to it (same name, .tfw).
func OpenDEM(path string) (*DEM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dem: %w", err)
	}
	defer f.Close()

	wf, err := os.Open(WorldFilePath(path))
	if err != nil {
		return nil, fmt.Errorf("open dem world file: %w", err)
	}
	defer wf.Close()

	model, err := DecodeDEM(f, wf)
	if err != nil {
		return nil, fmt.Errorf("decode dem %s: %w", path, err)
	}
	return &DEM{model: model}, nil
}

// NewDEM wraps an elevation model already in memory.
func NewDEM(model *domain.ElevationModel) *DEM {
	return &DEM{model: model}
}

// Elevation returns the window of the DEM covering bound.
func (d *DEM) Elevation(ctx context.Context, bound orb.Bound) (*domain.ElevationModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Window(d.model, bound)
}

// WorldFilePath returns the world file path for a TIFF path.
func WorldFilePath(tiffPath string) string {
	for _, ext := range []string{".tif", ".tiff", ".TIF", ".TIFF"} {
		if strings.HasSuffix(tiffPath, ext) {
			return strings.TrimSuffix(tiffPath, ext) + WorldFileExt
		}
	}
	return tiffPath + WorldFileExt
}

// DecodeDEM reads a grayscale TIFF and its world file into an elevation
// model. Cells equal to DEMNoData are invalid.
func DecodeDEM(tiffData, worldFile io.Reader) (*domain.ElevationModel, error) {
	originX, originY, size, err := DecodeWorldFile(worldFile)
	if err != nil {
		return nil, err
	}
	img, err := tiff.Decode(tiffData)
	if err != nil {
		return nil, fmt.Errorf("decode tiff: %w", err)
	}

	r := img.Bounds()
	grid := domain.Grid{OriginX: originX, OriginY: originY, PixelSize: size, Width: r.Dx(), Height: r.Dy()}
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	z := domain.NewBand("elevation", grid.Width, grid.Height)
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			v := grayAt(img, r.Min.X+col, r.Min.Y+row)
			if v == DEMNoData {
				continue
			}
			z.Set(col, row, float64(v))
		}
	}
	return &domain.ElevationModel{Grid: grid, Elevation: z}, nil
}

// EncodeDEM writes an elevation model as a 16-bit TIFF plus world file.
// Elevations are rounded and clamped to [0, DEMNoData); invalid cells are
// written as DEMNoData.
func EncodeDEM(tiffOut, worldOut io.Writer, em *domain.ElevationModel) error {
	g := em.Grid
	img := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			v, ok := em.Elevation.At(col, row)
			cell := uint16(DEMNoData)
			if ok {
				cell = uint16(math.Max(0, math.Min(DEMNoData-1, math.Round(v))))
			}
			img.SetGray16(col, row, color.Gray16{Y: cell})
		}
	}
	if err := tiff.Encode(tiffOut, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("encode dem tiff: %w", err)
	}
	return EncodeWorldFile(worldOut, g)
}

// Window returns the part of em covering bound, padded by one DEM pixel on
// every side where the model allows so slope stencils see across tile seams.
// A bound not fully covered by the model yields ErrElevationUnavailable.
func Window(em *domain.ElevationModel, bound orb.Bound) (*domain.ElevationModel, error) {
	g := em.Grid
	full := g.Bound()
	if !full.Contains(bound.Min) || !full.Contains(bound.Max) {
		return nil, fmt.Errorf("%w: request %v outside dem %v", domain.ErrElevationUnavailable, bound, full)
	}

	c0 := int(math.Floor((bound.Min[0]-g.OriginX)/g.PixelSize)) - 1
	c1 := int(math.Ceil((bound.Max[0]-g.OriginX)/g.PixelSize)) + 1
	r0 := int(math.Floor((g.OriginY-bound.Max[1])/g.PixelSize)) - 1
	r1 := int(math.Ceil((g.OriginY-bound.Min[1])/g.PixelSize)) + 1
	c0, r0 = max(c0, 0), max(r0, 0)
	c1, r1 = min(c1, g.Width), min(r1, g.Height)
	if c1 <= c0 || r1 <= r0 {
		return nil, fmt.Errorf("%w: empty window for %v", domain.ErrElevationUnavailable, bound)
	}

	sub := g.Sub(c0, r0, c1-c0, r1-r0)
	z := domain.NewBand(em.Elevation.Name, sub.Width, sub.Height)
	for row := 0; row < sub.Height; row++ {
		for col := 0; col < sub.Width; col++ {
			if v, ok := em.Elevation.At(c0+col, r0+row); ok {
				z.Set(col, row, v)
			}
		}
	}
	return &domain.ElevationModel{Grid: sub, Elevation: z}, nil
}

func grayAt(img image.Image, x, y int) uint16 {
	switch m := img.(type) {
	case *image.Gray16:
		return m.Gray16At(x, y).Y
	case *image.Gray:
		return uint16(m.GrayAt(x, y).Y)
	default:
		return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
	}
}

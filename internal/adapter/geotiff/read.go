package geotiff

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"os"
	"path/filepath"

	"github.com/adriadescals/oil-palm-global/internal/domain"
	"golang.org/x/image/tiff"
)

// Export is an export read back from disk.
type Export struct {
	Sidecar Sidecar
	// WorldGrid is the grid described by the world file and the mask size.
	WorldGrid domain.Grid
	Bands     map[string]*image.Gray
	BandMasks map[string]*image.Gray
	Mask      *image.Gray
}

// ReadExport loads the sidecar, world file, mask and band files of export
// name from dir.
func ReadExport(dir, name string) (*Export, error) {
	data, err := os.ReadFile(filepath.Join(dir, SidecarFile(name)))
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode sidecar: %w", err)
	}

	mask, err := readGray(filepath.Join(dir, sc.MaskFile))
	if err != nil {
		return nil, err
	}

	wf, err := os.Open(filepath.Join(dir, sc.WorldFile))
	if err != nil {
		return nil, fmt.Errorf("open world file: %w", err)
	}
	defer wf.Close()
	ox, oy, size, err := DecodeWorldFile(wf)
	if err != nil {
		return nil, err
	}

	exp := &Export{
		Sidecar: sc,
		WorldGrid: domain.Grid{
			OriginX: ox, OriginY: oy, PixelSize: size,
			Width: mask.Rect.Dx(), Height: mask.Rect.Dy(),
		},
		Bands:     make(map[string]*image.Gray, len(sc.Bands)),
		BandMasks: make(map[string]*image.Gray, len(sc.Bands)),
		Mask:      mask,
	}
	for _, b := range sc.Bands {
		img, err := readGray(filepath.Join(dir, BandFile(name, b)))
		if err != nil {
			return nil, err
		}
		exp.Bands[b] = img

		maskFile, ok := sc.BandMaskFiles[b]
		if !ok {
			return nil, fmt.Errorf("sidecar lists no mask for band %s", b)
		}
		bm, err := readGray(filepath.Join(dir, maskFile))
		if err != nil {
			return nil, err
		}
		exp.BandMasks[b] = bm
	}
	return exp, nil
}

// Check verifies band layout, dimensions, georeferencing, the nodata
// convention and mask consistency: every band mask must agree with its band
// and the export mask must be their union. All violations are reported.
func (e *Export) Check() error {
	var errs []error
	g := e.Sidecar.Grid

	if e.Sidecar.Format != Format {
		errs = append(errs, fmt.Errorf("format %q, want %q", e.Sidecar.Format, Format))
	}
	if len(e.Sidecar.Bands) == 0 {
		errs = append(errs, errors.New("export lists no bands"))
	}
	if !sameGrid(g, e.WorldGrid) {
		errs = append(errs, fmt.Errorf("world file grid %+v does not match sidecar grid %+v", e.WorldGrid, g))
	}

	for _, name := range e.Sidecar.Bands {
		img, ok := e.Bands[name]
		if !ok {
			errs = append(errs, fmt.Errorf("band %s has no file", name))
			continue
		}
		if img.Rect.Dx() != g.Width || img.Rect.Dy() != g.Height {
			errs = append(errs, fmt.Errorf("band %s is %dx%d, want %dx%d", name, img.Rect.Dx(), img.Rect.Dy(), g.Width, g.Height))
		}
		bm, ok := e.BandMasks[name]
		if !ok {
			errs = append(errs, fmt.Errorf("band %s has no mask", name))
			continue
		}
		if bm.Rect.Dx() != g.Width || bm.Rect.Dy() != g.Height {
			errs = append(errs, fmt.Errorf("band %s mask is %dx%d, want %dx%d", name, bm.Rect.Dx(), bm.Rect.Dy(), g.Width, g.Height))
		}
	}
	if e.Mask.Rect.Dx() != g.Width || e.Mask.Rect.Dy() != g.Height {
		errs = append(errs, fmt.Errorf("mask is %dx%d, want %dx%d", e.Mask.Rect.Dx(), e.Mask.Rect.Dy(), g.Width, g.Height))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	nodata := uint8(e.Sidecar.NoData)
	valid := 0
	for i, m := range e.Mask.Pix {
		anyValid := false
		for _, name := range e.Sidecar.Bands {
			switch bm := e.BandMasks[name].Pix[i]; bm {
			case MaskValid:
				anyValid = true
			case MaskInvalid:
				if v := e.Bands[name].Pix[i]; v != nodata {
					errs = append(errs, fmt.Errorf("band %s pixel %d is %d under an invalid mask, want nodata %d", name, i, v, nodata))
				}
			default:
				errs = append(errs, fmt.Errorf("band %s mask pixel %d has value %d", name, i, bm))
			}
		}
		switch m {
		case MaskValid:
			valid++
			if !anyValid {
				errs = append(errs, fmt.Errorf("mask pixel %d is valid but no band is", i))
			}
		case MaskInvalid:
			if anyValid {
				errs = append(errs, fmt.Errorf("mask pixel %d is invalid but a band is valid", i))
			}
		default:
			errs = append(errs, fmt.Errorf("mask pixel %d has value %d", i, m))
		}
	}
	if valid != e.Sidecar.ValidPixels {
		errs = append(errs, fmt.Errorf("mask has %d valid pixels, sidecar records %d", valid, e.Sidecar.ValidPixels))
	}
	return errors.Join(errs...)
}

func sameGrid(a, b domain.Grid) bool {
	const eps = 1e-6
	return a.Width == b.Width && a.Height == b.Height &&
		math.Abs(a.OriginX-b.OriginX) < eps &&
		math.Abs(a.OriginY-b.OriginY) < eps &&
		math.Abs(a.PixelSize-b.PixelSize) < eps
}

// readGray decodes an 8-bit TIFF, converting other colour models to gray.
func readGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) && g.Stride == g.Rect.Dx() {
		return g, nil
	}
	r := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(g, g.Rect, img, r.Min, draw.Src)
	return g, nil
}

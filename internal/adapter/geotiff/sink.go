package geotiff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/paulmach/orb/encoding/wkt"
	"golang.org/x/image/tiff"
)

// Format is the export format name recorded in results.
const Format = "geotiff"

// MaskBand is the file suffix of the validity masks. The export mask marks
// pixels valid in any band; each band also has its own mask.
const MaskBand = "mask"

// Mask pixel values.
const (
	MaskValid   = 255
	MaskInvalid = 0
)

// Sidecar is the JSON document written next to the band files.
type Sidecar struct {
	domain.ExportResult
	Region   string `json:"region"`
	MaskFile string `json:"mask_file"`
	// BandMaskFiles maps each band to its own validity mask, so a valid
	// pixel whose value equals nodata stays distinguishable.
	BandMaskFiles map[string]string `json:"band_mask_files"`
	WorldFile     string            `json:"world_file"`
}

// Sink writes quantized composites as one 8-bit TIFF per band.
type Sink struct {
	dir    string
	logger *slog.Logger
}

// NewSink creates a sink writing into dir.
func NewSink(dir string, logger *slog.Logger) *Sink {
	return &Sink{dir: dir, logger: logger}
}

// Export writes <name>_<band>.tif and <name>_<band>_mask.tif for every
// band, <name>_mask.tif, <name>.tfw and the <name>.json sidecar. Nothing is written when the
// request is invalid.
func (s *Sink) Export(ctx context.Context, req domain.ExportRequest) (domain.ExportResult, error) {
	if err := req.Validate(); err != nil {
		return domain.ExportResult{}, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return domain.ExportResult{}, fmt.Errorf("create export dir: %w", err)
	}

	q := req.Composite
	var files []string
	bandMasks := make(map[string]string, len(q.Bands))
	for _, b := range q.Bands {
		if err := ctx.Err(); err != nil {
			return domain.ExportResult{}, err
		}
		name := BandFile(req.Name, b.Name)
		if err := s.writeTIFF(name, bandImage(q.Grid, b, uint8(req.NoData))); err != nil {
			return domain.ExportResult{}, err
		}
		maskName := BandMaskFile(req.Name, b.Name)
		if err := s.writeTIFF(maskName, bandMaskImage(q.Grid, b)); err != nil {
			return domain.ExportResult{}, err
		}
		bandMasks[b.Name] = maskName
		files = append(files, name, maskName)
	}

	maskName := BandFile(req.Name, MaskBand)
	if err := s.writeTIFF(maskName, maskImage(q)); err != nil {
		return domain.ExportResult{}, err
	}
	files = append(files, maskName)

	var wf bytes.Buffer
	if err := EncodeWorldFile(&wf, q.Grid); err != nil {
		return domain.ExportResult{}, err
	}
	worldName := req.Name + WorldFileExt
	if err := s.writeFile(worldName, wf.Bytes()); err != nil {
		return domain.ExportResult{}, err
	}
	files = append(files, worldName)

	sidecarName := SidecarFile(req.Name)
	files = append(files, sidecarName)
	res := domain.NewExportResult(req, Format, files)

	sc := Sidecar{ExportResult: res, MaskFile: maskName, BandMaskFiles: bandMasks, WorldFile: worldName}
	if len(req.Region) > 0 {
		sc.Region = wkt.MarshalString(req.Region)
	}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return domain.ExportResult{}, fmt.Errorf("marshal sidecar: %w", err)
	}
	if err := s.writeFile(sidecarName, data); err != nil {
		return domain.ExportResult{}, err
	}

	s.logger.Debug("export written", "name", req.Name, "dir", s.dir, "files", len(files))
	return res, nil
}

// BandFile returns the file name of one band of an export.
func BandFile(export, band string) string {
	return fmt.Sprintf("%s_%s.tif", export, band)
}

// BandMaskFile returns the file name of the validity mask of one band.
func BandMaskFile(export, band string) string {
	return fmt.Sprintf("%s_%s_%s.tif", export, band, MaskBand)
}

// SidecarFile returns the file name of the JSON sidecar of an export.
func SidecarFile(export string) string {
	return export + ".json"
}

func (s *Sink) writeTIFF(name string, img image.Image) error {
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.writeFile(name, buf.Bytes())
}

func (s *Sink) writeFile(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func bandImage(g domain.Grid, b *domain.QuantizedBand, nodata uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	for i, ok := range b.Valid {
		if ok {
			img.Pix[i] = b.Values[i]
		} else {
			img.Pix[i] = nodata
		}
	}
	return img
}

func bandMaskImage(g domain.Grid, b *domain.QuantizedBand) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	for i, ok := range b.Valid {
		if ok {
			img.Pix[i] = MaskValid
		}
	}
	return img
}

// maskImage marks pixels valid in at least one band.
func maskImage(q *domain.QuantizedComposite) *image.Gray {
	g := q.Grid
	img := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	for i := range img.Pix {
		img.Pix[i] = MaskInvalid
		for _, b := range q.Bands {
			if b.Valid[i] {
				img.Pix[i] = MaskValid
				break
			}
		}
	}
	return img
}

package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// SceneQuery selects scenes from a collection. Zero-valued fields match
// every scene. The date range is [Start, End).
type SceneQuery struct {
	Sensor         Sensor
	Start          time.Time
	End            time.Time
	InstrumentMode string
	Resolution     string
	Orbit          OrbitDirection
	Polarisations  []string
	// Region, when set, keeps only scenes whose footprint bound intersects it.
	Region orb.Bound
}

// Matches reports whether a scene satisfies every predicate of the query.
func (q SceneQuery) Matches(ref SceneRef) bool {
	switch {
	case q.Sensor != "" && ref.Sensor != q.Sensor:
		return false
	case !q.Start.IsZero() && ref.Acquired.Before(q.Start):
		return false
	case !q.End.IsZero() && !ref.Acquired.Before(q.End):
		return false
	case q.InstrumentMode != "" && ref.InstrumentMode != q.InstrumentMode:
		return false
	case q.Resolution != "" && ref.Resolution != q.Resolution:
		return false
	case q.Orbit != "" && ref.Orbit != q.Orbit:
		return false
	}
	for _, p := range q.Polarisations {
		if !ref.HasPolarisation(p) {
			return false
		}
	}
	if !q.Region.IsZero() && len(ref.Footprint) > 0 && !q.Region.Intersects(ref.Footprint.Bound()) {
		return false
	}
	return true
}

// CollectionSource resolves scene queries and reads scene pixels.
type CollectionSource interface {
	// Query returns matching scenes in acquisition-ascending order.
	Query(ctx context.Context, q SceneQuery) ([]SceneRef, error)
	// ReadTile resamples the named bands of a scene onto grid. Pixels outside
	// the scene are invalid. A band the scene lacks yields ErrMissingBand.
	ReadTile(ctx context.Context, ref SceneRef, grid Grid, bands ...string) (*Image, error)
}

// ElevationSource returns an elevation model covering a bound.
type ElevationSource interface {
	Elevation(ctx context.Context, bound orb.Bound) (*ElevationModel, error)
}

// ExportSink writes a quantized composite.
type ExportSink interface {
	Export(ctx context.Context, req ExportRequest) (ExportResult, error)
}

// ExportNotifier announces a completed export.
type ExportNotifier interface {
	Notify(ctx context.Context, res ExportResult) error
}

// ExportRequest describes one composite export.
type ExportRequest struct {
	Composite *QuantizedComposite
	Name      string
	Scale     float64
	Region    orb.Polygon
	MaxPixels int
	CRS       string
	NoData    int
}

// Validate enforces the pixel budget and the shape of the composite.
func (r ExportRequest) Validate() error {
	if r.Composite == nil {
		return fmt.Errorf("%w: no composite for export %s", ErrEmptyComposite, r.Name)
	}
	if err := r.Composite.Grid.Validate(); err != nil {
		return err
	}
	if r.MaxPixels > 0 && r.Composite.Grid.Pixels() > r.MaxPixels {
		return fmt.Errorf("%w: export %s needs %d pixels, budget %d",
			ErrPixelBudgetExceeded, r.Name, r.Composite.Grid.Pixels(), r.MaxPixels)
	}
	if r.NoData < 0 || r.NoData > 255 {
		return fmt.Errorf("export %s: nodata %d outside 8-bit range", r.Name, r.NoData)
	}
	return nil
}

// ExportResult describes what an export wrote.
type ExportResult struct {
	Name        string    `json:"name"`
	Format      string    `json:"format"`
	Files       []string  `json:"files"`
	Bands       []string  `json:"bands"`
	Grid        Grid      `json:"grid"`
	CRS         string    `json:"crs"`
	Scale       float64   `json:"scale"`
	NoData      int       `json:"nodata"`
	ValidPixels int       `json:"valid_pixels"`
	Timestamp   time.Time `json:"timestamp"`
	ExportedAt  time.Time `json:"exported_at"`
}

// NewExportResult fills the fields common to every sink.
func NewExportResult(req ExportRequest, format string, files []string) ExportResult {
	return ExportResult{
		Name:        req.Name,
		Format:      format,
		Files:       files,
		Bands:       req.Composite.BandNames(),
		Grid:        req.Composite.Grid,
		CRS:         req.CRS,
		Scale:       req.Scale,
		NoData:      req.NoData,
		ValidPixels: req.Composite.ValidPixels(),
		Timestamp:   req.Composite.Timestamp,
		ExportedAt:  Now(),
	}
}

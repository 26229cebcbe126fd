package pipeline_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type fakeScene struct {
	ref domain.SceneRef
	img *domain.Image
}

// fakeSource serves full-extent images and resamples them per tile.
type fakeSource struct {
	scenes    []fakeScene
	queries   atomic.Int64
	reads     atomic.Int64
	readDelay time.Duration
}

func (f *fakeSource) Query(_ context.Context, q domain.SceneQuery) ([]domain.SceneRef, error) {
	f.queries.Add(1)
	var out []domain.SceneRef
	for _, s := range f.scenes {
		if q.Matches(s.ref) {
			out = append(out, s.ref)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Acquired.Before(out[j].Acquired) })
	return out, nil
}

func (f *fakeSource) ReadTile(ctx context.Context, ref domain.SceneRef, grid domain.Grid, bands ...string) (*domain.Image, error) {
	f.reads.Add(1)
	if f.readDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.readDelay):
		}
	}
	for _, s := range f.scenes {
		if s.ref.ID != ref.ID {
			continue
		}
		var out []*domain.Band
		for _, name := range bands {
			src, err := s.img.Band(name)
			if err != nil {
				return nil, err
			}
			dst := domain.NewBand(name, grid.Width, grid.Height)
			for row := 0; row < grid.Height; row++ {
				for col := 0; col < grid.Width; col++ {
					c, r, ok := s.img.Grid.PixelAt(grid.Center(col, row))
					if !ok {
						continue
					}
					if v, ok := src.At(c, r); ok {
						dst.Set(col, row, v)
					}
				}
			}
			out = append(out, dst)
		}
		return domain.NewImage(ref.Metadata, grid, ref.Footprint, out...)
	}
	return nil, errors.New("unknown scene " + ref.ID)
}

// fakeElevation returns flat terrain padded by one pixel. The first failures
// calls fail, and every call fails when err is set permanently.
type fakeElevation struct {
	calls    atomic.Int64
	failures int64
	err      error
}

func (f *fakeElevation) Elevation(_ context.Context, b orb.Bound) (*domain.ElevationModel, error) {
	n := f.calls.Add(1)
	if f.err != nil && (f.failures == 0 || n <= f.failures) {
		return nil, f.err
	}
	g := domain.Grid{
		OriginX:   b.Min[0] - 30,
		OriginY:   b.Max[1] + 30,
		PixelSize: 30,
		Width:     int((b.Max[0]-b.Min[0])/30) + 3,
		Height:    int((b.Max[1]-b.Min[1])/30) + 3,
	}
	z := domain.NewBand("elevation", g.Width, g.Height)
	for i := range z.Values {
		z.Values[i], z.Valid[i] = 50, true
	}
	return &domain.ElevationModel{Grid: g, Elevation: z}, nil
}

type memorySink struct {
	mu       sync.Mutex
	requests []domain.ExportRequest
}

func (s *memorySink) Export(_ context.Context, req domain.ExportRequest) (domain.ExportResult, error) {
	if err := req.Validate(); err != nil {
		return domain.ExportResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return domain.NewExportResult(req, "memory", []string{req.Name}), nil
}

func (s *memorySink) export(t *testing.T, name string) *domain.QuantizedComposite {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.Name == name {
			return r.Composite
		}
	}
	require.Failf(t, "export not written", "%s", name)
	return nil
}

func (s *memorySink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.requests {
		out = append(out, r.Name)
	}
	sort.Strings(out)
	return out
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []domain.ExportResult
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, res domain.ExportResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, res)
	return n.err
}

// --- fixtures ---

// testRegion is a 60 m × 40 m box, a 6×4 grid at 10 m.
var testRegion = orb.Bound{Min: orb.Point{680000, 430000}, Max: orb.Point{680060, 430040}}.ToPolygon()

var testGrid = domain.Grid{OriginX: 680000, OriginY: 430040, PixelSize: 10, Width: 6, Height: 4}

var testEnd = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func constantBand(name string, v float64) *domain.Band {
	b := domain.NewBand(name, testGrid.Width, testGrid.Height)
	for i := range b.Values {
		b.Values[i], b.Valid[i] = v, true
	}
	return b
}

func bandFunc(name string, fn func(col, row int) float64) *domain.Band {
	b := domain.NewBand(name, testGrid.Width, testGrid.Height)
	for row := 0; row < testGrid.Height; row++ {
		for col := 0; col < testGrid.Width; col++ {
			b.Set(col, row, fn(col, row))
		}
	}
	return b
}

func wideFootprint() orb.Polygon {
	return testGrid.Bound().Pad(50000).ToPolygon()
}

func s1Scene(t *testing.T, id string, orbit domain.OrbitDirection, acquired time.Time, vv, vh float64, bands ...*domain.Band) fakeScene {
	t.Helper()
	md := domain.Metadata{
		ID:             id,
		Sensor:         domain.SensorS1,
		Acquired:       acquired,
		Orbit:          orbit,
		Polarisations:  []string{domain.BandVV, domain.BandVH},
		InstrumentMode: "IW",
		Resolution:     "H",
	}
	if len(bands) == 0 {
		bands = []*domain.Band{
			constantBand(domain.BandAngle, 0),
			constantBand(domain.BandVV, vv),
			constantBand(domain.BandVH, vh),
		}
	}
	return newScene(t, md, bands)
}

type s2Values struct {
	B2, B4, B8, B11, SCL float64
	Prob                 func(col, row int) float64
}

func s2Scene(t *testing.T, id string, acquired time.Time, v s2Values) fakeScene {
	t.Helper()
	prob := v.Prob
	if prob == nil {
		prob = func(int, int) float64 { return 0 }
	}
	md := domain.Metadata{ID: id, Sensor: domain.SensorS2, Acquired: acquired}
	return newScene(t, md, []*domain.Band{
		constantBand("B2", v.B2),
		constantBand(domain.BandRed, v.B4),
		constantBand(domain.BandNIR, v.B8),
		constantBand(domain.BandSWIR, v.B11),
		constantBand(domain.BandSCL, v.SCL),
		bandFunc(domain.BandCloudProb, prob),
	})
}

func newScene(t *testing.T, md domain.Metadata, bands []*domain.Band) fakeScene {
	t.Helper()
	img, err := domain.NewImage(md, testGrid, wideFootprint(), bands...)
	require.NoError(t, err)
	return fakeScene{
		ref: domain.SceneRef{
			Metadata:  md,
			Footprint: wideFootprint(),
			Bands:     img.BandNames(),
			Location:  "memory://" + md.ID,
		},
		img: img,
	}
}

// standardScenes is two descending radar scenes and two optical scenes whose
// greenest clear observation differs between the left and right halves.
func standardScenes(t *testing.T) []fakeScene {
	t.Helper()
	return []fakeScene{
		s1Scene(t, "s1-a", domain.Descending, testEnd.AddDate(0, -2, 0), -8, -10),
		s1Scene(t, "s1-b", domain.Descending, testEnd.AddDate(0, -1, 0), -9, -12),
		s2Scene(t, "s2-a", testEnd.AddDate(0, -3, 0), s2Values{B2: 300, B4: 400, B8: 1200, B11: 1700, SCL: 4}),
		s2Scene(t, "s2-b", testEnd.AddDate(0, -2, 0), s2Values{
			B2: 640, B4: 400, B8: 2800, B11: 1700, SCL: 4,
			Prob: func(col, row int) float64 {
				if col < 3 {
					return 80
				}
				return 10
			},
		}),
	}
}

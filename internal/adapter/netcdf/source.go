package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adriadescals/oil-palm-global/internal/domain"
	nc "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Archive is a directory of scene files, one .nc per scene. It implements
// domain.CollectionSource.
type Archive struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	scenes []domain.SceneRef
	loaded bool
}

// NewArchive creates a scene archive over dir. The directory is indexed on
// the first query.
func NewArchive(dir string, logger *slog.Logger) *Archive {
	return &Archive{dir: dir, logger: logger}
}

// Query returns the scenes matching q in acquisition-ascending order.
func (a *Archive) Query(ctx context.Context, q domain.SceneQuery) ([]domain.SceneRef, error) {
	scenes, err := a.index(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.SceneRef
	for _, ref := range scenes {
		if q.Matches(ref) {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (a *Archive) index(ctx context.Context) ([]domain.SceneRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return a.scenes, nil
	}

	if _, err := os.Stat(a.dir); err != nil {
		return nil, fmt.Errorf("scene archive: %w", err)
	}
	paths, err := filepath.Glob(filepath.Join(a.dir, "*.nc"))
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}

	scenes := make([]domain.SceneRef, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref, err := readHeader(p)
		if err != nil {
			a.logger.Warn("skipping unreadable scene", "path", p, "error", err)
			continue
		}
		scenes = append(scenes, ref)
	}
	sort.SliceStable(scenes, func(i, j int) bool {
		if !scenes[i].Acquired.Equal(scenes[j].Acquired) {
			return scenes[i].Acquired.Before(scenes[j].Acquired)
		}
		return scenes[i].ID < scenes[j].ID
	})

	a.logger.Info("scene archive indexed", "dir", a.dir, "scenes", len(scenes))
	a.scenes, a.loaded = scenes, true
	return scenes, nil
}

// ReadTile samples the named bands of a scene at the pixel centres of grid
// (nearest neighbour). Pixels outside the scene, equal to _FillValue or NaN
// are invalid.
func (a *Archive) ReadTile(ctx context.Context, ref domain.SceneRef, grid domain.Grid, bands ...string) (*domain.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := nc.Open(ref.Location)
	if err != nil {
		return nil, fmt.Errorf("open scene %s: %w", ref.ID, err)
	}
	defer f.Close()

	sceneGrid, err := gridFromAttrs(f.Attributes())
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", ref.ID, err)
	}
	available := f.ListVariables()

	out := make([]*domain.Band, 0, len(bands))
	for _, name := range bands {
		if !slices.Contains(available, name) {
			return nil, fmt.Errorf("%w: scene %s has no band %s", domain.ErrMissingBand, ref.ID, name)
		}
		v, err := f.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("read band %s of scene %s: %w", name, ref.ID, err)
		}
		data, w, h, err := raster2D(v.Values)
		if err != nil {
			return nil, fmt.Errorf("band %s of scene %s: %w", name, ref.ID, err)
		}
		if w != sceneGrid.Width || h != sceneGrid.Height {
			return nil, fmt.Errorf("%w: band %s of scene %s is %dx%d, grid is %dx%d",
				domain.ErrGridMismatch, name, ref.ID, w, h, sceneGrid.Width, sceneGrid.Height)
		}
		out = append(out, resample(name, data, fillValue(v), sceneGrid, grid))
	}
	return domain.NewImage(ref.Metadata, grid, ref.Footprint, out...)
}

func resample(name string, data []float64, fill float64, src, dst domain.Grid) *domain.Band {
	b := domain.NewBand(name, dst.Width, dst.Height)
	for row := 0; row < dst.Height; row++ {
		for col := 0; col < dst.Width; col++ {
			sc, sr, ok := src.PixelAt(dst.Center(col, row))
			if !ok {
				continue
			}
			v := data[sr*src.Width+sc]
			if v == fill || math.IsNaN(v) {
				continue
			}
			b.Set(col, row, v)
		}
	}
	return b
}

// readHeader reads the scene metadata from the global attributes and checks
// that the grid attributes are usable.
func readHeader(path string) (domain.SceneRef, error) {
	f, err := nc.Open(path)
	if err != nil {
		return domain.SceneRef{}, err
	}
	defer f.Close()

	ref, err := refFromAttrs(f.Attributes())
	if err != nil {
		return domain.SceneRef{}, err
	}
	if _, err := gridFromAttrs(f.Attributes()); err != nil {
		return domain.SceneRef{}, err
	}
	ref.Location = path
	ref.Bands = f.ListVariables()
	return ref, nil
}

func refFromAttrs(attrs api.AttributeMap) (domain.SceneRef, error) {
	id, err := attrString(attrs, AttrID)
	if err != nil {
		return domain.SceneRef{}, err
	}
	sensor, err := attrString(attrs, AttrSensor)
	if err != nil {
		return domain.SceneRef{}, err
	}
	acq, err := attrString(attrs, AttrAcquired)
	if err != nil {
		return domain.SceneRef{}, err
	}
	acquired, err := time.Parse(time.RFC3339, acq)
	if err != nil {
		return domain.SceneRef{}, fmt.Errorf("attribute %q: %w", AttrAcquired, err)
	}

	ref := domain.SceneRef{
		Metadata: domain.Metadata{
			ID:             id,
			Sensor:         domain.Sensor(sensor),
			Acquired:       acquired.UTC(),
			Orbit:          domain.OrbitDirection(optionalString(attrs, AttrOrbitPass)),
			InstrumentMode: optionalString(attrs, AttrInstrumentMode),
			Resolution:     optionalString(attrs, AttrResolution),
		},
	}
	if pols := optionalString(attrs, AttrPolarisations); pols != "" {
		for _, p := range strings.Split(pols, ",") {
			ref.Polarisations = append(ref.Polarisations, strings.TrimSpace(p))
		}
	}
	if fp := optionalString(attrs, AttrFootprint); fp != "" {
		g, err := wkt.Unmarshal(fp)
		if err != nil {
			return domain.SceneRef{}, fmt.Errorf("attribute %q: %w", AttrFootprint, err)
		}
		poly, ok := g.(orb.Polygon)
		if !ok {
			return domain.SceneRef{}, fmt.Errorf("attribute %q is a %s, want a polygon", AttrFootprint, g.GeoJSONType())
		}
		ref.Footprint = poly
	}
	return ref, nil
}

func gridFromAttrs(attrs api.AttributeMap) (domain.Grid, error) {
	var g domain.Grid
	var err error
	if g.OriginX, err = attrFloat(attrs, AttrOriginX); err != nil {
		return g, err
	}
	if g.OriginY, err = attrFloat(attrs, AttrOriginY); err != nil {
		return g, err
	}
	if g.PixelSize, err = attrFloat(attrs, AttrPixelSize); err != nil {
		return g, err
	}
	if !(g.PixelSize > 0) {
		return g, fmt.Errorf("%w: pixel size %v", domain.ErrGridMismatch, g.PixelSize)
	}
	w, err := attrFloat(attrs, AttrWidth)
	if err != nil {
		return g, err
	}
	h, err := attrFloat(attrs, AttrHeight)
	if err != nil {
		return g, err
	}
	g.Width, g.Height = int(w), int(h)
	return g, g.Validate()
}

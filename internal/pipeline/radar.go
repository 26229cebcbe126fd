package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/adriadescals/oil-palm-global/internal/domain"
)

// radarScene is a Sentinel-1 scene with its satellite azimuth resolved.
type radarScene struct {
	ref     domain.SceneRef
	azimuth float64
}

var radarBands = []string{domain.BandAngle, domain.BandVV, domain.BandVH}

func (j *Job) runRadar(ctx context.Context, grid domain.Grid) error {
	refs, err := j.scenes.Query(ctx, domain.SceneQuery{
		Sensor:         domain.SensorS1,
		Start:          j.cfg.S1Start,
		End:            j.cfg.S1End,
		InstrumentMode: "IW",
		Resolution:     "H",
		Polarisations:  []string{domain.BandVV, domain.BandVH},
		Region:         grid.Bound(),
	})
	if err != nil {
		return fmt.Errorf("query sentinel-1: %w", err)
	}
	j.markResolved()

	scenes, err := j.resolveAzimuths(ctx, grid, refs)
	if err != nil {
		return err
	}
	j.logger.Info("radar scenes selected",
		"branch", branchRadar,
		"queried", len(refs),
		"selected", len(scenes),
	)

	out := domain.NewComposite("s1", grid, domain.RadarBands...)
	out.Timestamp = j.cfg.Timestamp
	err = j.processTiles(ctx, branchRadar, out, func(ctx context.Context, tile domain.Tile) (*domain.Composite, error) {
		return j.radarTile(ctx, tile, scenes)
	})
	if err != nil {
		return err
	}

	if out.ValidPixels() == 0 {
		return fmt.Errorf("%s: %w", RadarExportName, domain.ErrEmptyComposite)
	}
	q, err := domain.Quantize(out, domain.RadarScale)
	if err != nil {
		return err
	}
	return j.export(ctx, RadarExportName, q)
}

// resolveAzimuths computes the satellite azimuth of each scene over the full
// export grid. Scenes without the required bands, a known orbit pass or any
// valid incidence angle inside the footprint are excluded.
func (j *Job) resolveAzimuths(ctx context.Context, grid domain.Grid, refs []domain.SceneRef) ([]radarScene, error) {
	var scenes []radarScene
	for _, ref := range refs {
		if !hasBands(ref.Bands, radarBands...) {
			j.exclude(branchRadar, ref, "missing_band")
			continue
		}

		if !ref.Orbit.Valid() {
			j.exclude(branchRadar, ref, "unknown_orbit")
			continue
		}

		var az float64
		err := j.retry(ctx, branchRadar, "azimuth "+ref.ID, func(ctx context.Context) error {
			img, err := j.scenes.ReadTile(ctx, ref, grid, domain.BandAngle)
			if err != nil {
				return err
			}
			az, err = domain.SatelliteAzimuth(img)
			return err
		})
		switch {
		case errors.Is(err, domain.ErrMissingBand):
			j.exclude(branchRadar, ref, "no_azimuth")
			continue
		case err != nil:
			return nil, fmt.Errorf("azimuth of %s: %w", ref.ID, err)
		}

		j.logger.Debug("satellite azimuth", "scene", ref.ID, "orbit", ref.Orbit, "azimuth", az)
		j.metrics.ScenesSelected.WithLabelValues(branchRadar).Inc()
		scenes = append(scenes, radarScene{ref: ref, azimuth: az})
	}
	return scenes, nil
}

// radarTile builds both orbit composites for one tile and fuses them.
func (j *Job) radarTile(ctx context.Context, tile domain.Tile, scenes []radarScene) (*domain.Composite, error) {
	var overlapping []radarScene
	for _, s := range scenes {
		if intersects(s.ref, tile.Grid) {
			overlapping = append(overlapping, s)
		}
	}
	if len(overlapping) == 0 {
		return domain.NewComposite("s1", tile.Grid, domain.RadarBands...), nil
	}

	em, err := j.elevation.Elevation(ctx, tile.Grid.Bound())
	if err != nil {
		return nil, err
	}
	terrain := domain.DeriveTerrain(em)

	var asc, dsc []*domain.Image
	for _, s := range overlapping {
		img, err := j.scenes.ReadTile(ctx, s.ref, tile.Grid, radarBands...)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.ref.ID, err)
		}
		prepared, err := domain.PrepareRadarImage(img, terrain, s.azimuth)
		if err != nil {
			return nil, fmt.Errorf("prepare %s: %w", s.ref.ID, err)
		}
		switch s.ref.Orbit {
		case domain.Ascending:
			asc = append(asc, prepared)
		case domain.Descending:
			dsc = append(dsc, prepared)
		}
	}

	ascComp, err := domain.BuildRadarComposite(tile.Grid, domain.Ascending, domain.NewCollection(asc...))
	if err != nil {
		return nil, err
	}
	dscComp, err := domain.BuildRadarComposite(tile.Grid, domain.Descending, domain.NewCollection(dsc...))
	if err != nil {
		return nil, err
	}
	fused, err := domain.FuseOrbits(ascComp, dscComp)
	if err != nil {
		return nil, err
	}
	domain.ClipToRegion(fused, j.cfg.Region)
	return fused, nil
}

func (j *Job) exclude(branch string, ref domain.SceneRef, reason string) {
	j.logger.Warn("scene excluded", "branch", branch, "scene", ref.ID, "reason", reason)
	j.metrics.ScenesExcluded.WithLabelValues(branch, reason).Inc()
}

func hasBands(available []string, required ...string) bool {
	for _, b := range required {
		if !slices.Contains(available, b) {
			return false
		}
	}
	return true
}

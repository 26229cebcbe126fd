package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/adriadescals/oil-palm-global/internal/domain"
)

func (j *Job) runOptical(ctx context.Context, grid domain.Grid) error {
	refs, err := j.scenes.Query(ctx, domain.SceneQuery{
		Sensor: domain.SensorS2,
		Start:  j.cfg.S2Start,
		End:    j.cfg.S2End,
		Region: grid.Bound(),
	})
	if err != nil {
		return fmt.Errorf("query sentinel-2: %w", err)
	}
	j.markResolved()

	var selected []domain.SceneRef
	var available []string
	for _, ref := range refs {
		if !hasBands(ref.Bands, domain.CloudMaskBands...) {
			j.exclude(branchOptical, ref, "missing_band")
			continue
		}
		j.metrics.ScenesSelected.WithLabelValues(branchOptical).Inc()
		selected = append(selected, ref)
		for _, b := range ref.Bands {
			if !slices.Contains(available, b) {
				available = append(available, b)
			}
		}
	}
	j.logger.Info("optical scenes selected",
		"branch", branchOptical,
		"queried", len(refs),
		"selected", len(selected),
	)
	if len(selected) == 0 {
		return fmt.Errorf("%s: %w", OpticalExportName, domain.ErrEmptyComposite)
	}

	exportBands, err := domain.OpticalExportBands(available, j.cfg.S2Bands)
	if err != nil {
		return err
	}
	mosaicBands := slices.Clone(available)
	if !slices.Contains(mosaicBands, domain.BandNDVI) {
		mosaicBands = append(mosaicBands, domain.BandNDVI)
	}

	out := domain.NewComposite("s2", grid, exportBands...)
	out.Timestamp = j.cfg.Timestamp
	err = j.processTiles(ctx, branchOptical, out, func(ctx context.Context, tile domain.Tile) (*domain.Composite, error) {
		mosaic, err := j.opticalTile(ctx, tile, selected, mosaicBands)
		if err != nil {
			return nil, err
		}
		return mosaic.Select(exportBands...)
	})
	if err != nil {
		return err
	}

	if out.ValidPixels() == 0 {
		return fmt.Errorf("%s: %w", OpticalExportName, domain.ErrEmptyComposite)
	}
	q, err := domain.Quantize(out, domain.OpticalScale)
	if err != nil {
		return err
	}
	return j.export(ctx, OpticalExportName, q)
}

// opticalTile masks clouds and shadows in every scene covering the tile and
// selects the greenest observation per pixel.
func (j *Job) opticalTile(ctx context.Context, tile domain.Tile, refs []domain.SceneRef, bands []string) (*domain.Composite, error) {
	var images []*domain.Image
	for _, ref := range refs {
		if !intersects(ref, tile.Grid) {
			continue
		}
		img, err := j.scenes.ReadTile(ctx, ref, tile.Grid, ref.Bands...)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ref.ID, err)
		}
		masked, err := domain.MaskCloudsAndShadows(img)
		if err != nil {
			return nil, fmt.Errorf("mask %s: %w", ref.ID, err)
		}
		images = append(images, masked)
	}

	mosaic, err := domain.QualityMosaic("s2", tile.Grid, domain.NewCollection(images...), domain.BandNDVI, bands)
	if err != nil {
		return nil, err
	}
	domain.ClipToRegion(mosaic, j.cfg.Region)
	return mosaic, nil
}

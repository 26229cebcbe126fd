package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/adriadescals/oil-palm-global/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// Export names.
const (
	RadarExportName   = "Sentinel-1_composite_VV_VH"
	OpticalExportName = "Sentinel-2_composite"
)

const (
	branchRadar   = "radar"
	branchOptical = "optical"
)

// Exponential tile backoff: start at 200ms, double each retry, cap at 5s.
const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Config holds the job parameters.
type Config struct {
	S1Start, S1End  time.Time
	S2Start, S2End  time.Time
	Timestamp       time.Time
	Region          orb.Polygon
	Scale           float64
	CRS             string
	MaxPixels       int
	NoData          int
	S2Bands         []string
	TileSize        int
	Workers         int
	TileMaxAttempts int
}

// Job builds and exports the radar and optical composites.
type Job struct {
	scenes    domain.CollectionSource
	elevation domain.ElevationSource
	sink      domain.ExportSink
	notifier  domain.ExportNotifier
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	cfg       Config

	resolved atomic.Int32
	mu       sync.Mutex
	results  []domain.ExportResult
}

// New creates a Job. Pass a nil notifier to disable export notifications.
func New(scenes domain.CollectionSource, elevation domain.ElevationSource, sink domain.ExportSink,
	notifier domain.ExportNotifier, logger *slog.Logger, metrics *observability.Metrics, cfg Config) *Job {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TileMaxAttempts <= 0 {
		cfg.TileMaxAttempts = 1
	}
	return &Job{
		scenes:    scenes,
		elevation: elevation,
		sink:      sink,
		notifier:  notifier,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
		cfg:       cfg,
	}
}

// SetClock replaces the clock used for retry backoff.
func (j *Job) SetClock(c clockwork.Clock) {
	j.clock = c
}

// CheckReadiness returns nil once both scene collections have been resolved.
func (j *Job) CheckReadiness(_ context.Context) error {
	if j.resolved.Load() < 2 {
		return errors.New("scene collections not resolved yet")
	}
	return nil
}

// Results returns the exports written so far.
func (j *Job) Results() []domain.ExportResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.ExportResult, len(j.results))
	copy(out, j.results)
	return out
}

// Run builds both composites concurrently and exports them. A failure in one
// branch does not stop the other; the returned error joins both outcomes.
func (j *Job) Run(ctx context.Context) error {
	j.metrics.JobRunning.Set(1)
	defer j.metrics.JobRunning.Set(0)

	grid, err := domain.GridForRegion(j.cfg.Region, j.cfg.Scale)
	if err != nil {
		return err
	}
	if j.cfg.MaxPixels > 0 && grid.Pixels() > j.cfg.MaxPixels {
		return fmt.Errorf("%w: export grid needs %d pixels, budget %d",
			domain.ErrPixelBudgetExceeded, grid.Pixels(), j.cfg.MaxPixels)
	}
	j.logger.Info("composite job started",
		"width", grid.Width,
		"height", grid.Height,
		"scale", grid.PixelSize,
		"tiles", len(domain.Tiles(grid, j.cfg.TileSize)),
		"workers", j.cfg.Workers,
	)

	var radarErr, opticalErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		radarErr = j.runRadar(ctx, grid)
		if radarErr != nil {
			j.logger.Error("radar composite failed", "error", radarErr)
		}
	}()
	go func() {
		defer wg.Done()
		opticalErr = j.runOptical(ctx, grid)
		if opticalErr != nil {
			j.logger.Error("optical composite failed", "error", opticalErr)
		}
	}()
	wg.Wait()

	if err := errors.Join(radarErr, opticalErr); err != nil {
		return err
	}
	j.logger.Info("composite job finished", "exports", len(j.Results()))
	return nil
}

// tileFunc computes the composite of one tile.
type tileFunc func(ctx context.Context, tile domain.Tile) (*domain.Composite, error)

// processTiles runs fn over every tile of out's grid on a bounded worker pool
// and pastes each result into out. Tiles write disjoint regions of out.
func (j *Job) processTiles(ctx context.Context, branch string, out *domain.Composite, fn tileFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Workers)
	for _, tile := range domain.Tiles(out.Grid, j.cfg.TileSize) {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c, err := j.processTile(gctx, branch, tile, fn)
			if err != nil {
				return err
			}
			return out.Paste(c)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// processTile computes one tile, retrying transient failures.
func (j *Job) processTile(ctx context.Context, branch string, tile domain.Tile, fn tileFunc) (*domain.Composite, error) {
	start := j.clock.Now()
	var c *domain.Composite
	err := j.retry(ctx, branch, fmt.Sprintf("tile %d", tile.Index), func(ctx context.Context) error {
		var err error
		c, err = fn(ctx, tile)
		return err
	})
	if err != nil {
		j.metrics.TilesProcessed.WithLabelValues(branch, "error").Inc()
		return nil, err
	}
	j.metrics.TilesProcessed.WithLabelValues(branch, "success").Inc()
	j.metrics.TileDuration.WithLabelValues(branch).Observe(j.clock.Since(start).Seconds())
	return c, nil
}

// retry runs fn up to TileMaxAttempts times with capped exponential backoff.
// Permanent errors and cancellation end the attempts immediately.
func (j *Job) retry(ctx context.Context, branch, unit string, fn func(context.Context) error) error {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if domain.IsPermanent(err) || attempt >= j.cfg.TileMaxAttempts {
			return fmt.Errorf("%s %s after %d attempt(s): %w", branch, unit, attempt, err)
		}

		j.logger.Warn("attempt failed, retrying",
			"branch", branch,
			"unit", unit,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		j.metrics.TileRetries.WithLabelValues(branch).Inc()
		if !sleepWithContext(ctx, j.clock, backoff) {
			return ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// export writes a quantized composite and announces it.
func (j *Job) export(ctx context.Context, name string, q *domain.QuantizedComposite) error {
	req := domain.ExportRequest{
		Composite: q,
		Name:      name,
		Scale:     j.cfg.Scale,
		Region:    j.cfg.Region,
		MaxPixels: j.cfg.MaxPixels,
		CRS:       j.cfg.CRS,
		NoData:    j.cfg.NoData,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	start := time.Now()
	res, err := j.sink.Export(ctx, req)
	if err != nil {
		return fmt.Errorf("export %s: %w", name, err)
	}
	j.metrics.ExportDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	j.metrics.ExportedPixels.WithLabelValues(name).Set(float64(res.ValidPixels))
	j.logger.Info("export written",
		"export", name,
		"bands", res.Bands,
		"valid_pixels", res.ValidPixels,
		"files", len(res.Files),
	)

	j.mu.Lock()
	j.results = append(j.results, res)
	j.mu.Unlock()

	if j.notifier != nil {
		if err := j.notifier.Notify(ctx, res); err != nil {
			j.metrics.NotificationErrors.Inc()
			j.logger.Warn("export notification failed", "export", name, "error", err)
		}
	}
	return nil
}

func (j *Job) markResolved() {
	j.resolved.Add(1)
}

// intersects reports whether a scene footprint may cover any pixel of g.
func intersects(ref domain.SceneRef, g domain.Grid) bool {
	if len(ref.Footprint) == 0 {
		return true
	}
	return ref.Footprint.Bound().Intersects(g.Bound())
}

// sleepWithContext sleeps for d on clock, returning false if ctx ends first.
func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/adriadescals/oil-palm-global/internal/adapter/dem"
	"github.com/adriadescals/oil-palm-global/internal/adapter/geotiff"
	httpadapter "github.com/adriadescals/oil-palm-global/internal/adapter/http"
	kafkaadapter "github.com/adriadescals/oil-palm-global/internal/adapter/kafka"
	"github.com/adriadescals/oil-palm-global/internal/adapter/netcdf"
	"github.com/adriadescals/oil-palm-global/internal/config"
	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/adriadescals/oil-palm-global/internal/observability"
	"github.com/adriadescals/oil-palm-global/internal/pipeline"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	scenes := netcdf.NewArchive(cfg.SceneDir, logger)
	elevation := dem.NewCachedSource(newElevationSource(cfg, metrics, logger), cfg.DEMCacheSize, metrics)

	var sink domain.ExportSink
	switch cfg.ExportFormat {
	case config.FormatNetCDF:
		sink = netcdf.NewSink(cfg.OutputDir, logger)
	default:
		sink = geotiff.NewSink(cfg.OutputDir, logger)
	}

	// Export notifications are feature-flagged via KAFKA_BROKERS.
	var notifier domain.ExportNotifier
	var kafkaNotifier *kafkaadapter.Notifier
	if cfg.NotifierEnabled() {
		kafkaNotifier = kafkaadapter.NewNotifier(cfg, logger)
		notifier = kafkaNotifier
		logger.Info("kafka export notifications enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka export notifications disabled")
	}

	s1Start, s1End := cfg.S1Window()
	s2Start, s2End := cfg.S2Window()
	job := pipeline.New(scenes, elevation, sink, notifier, logger, metrics, pipeline.Config{
		S1Start:         s1Start,
		S1End:           s1End,
		S2Start:         s2Start,
		S2End:           s2End,
		Timestamp:       cfg.EndDate,
		Region:          cfg.Region,
		Scale:           cfg.ExportScale,
		CRS:             cfg.ExportCRS,
		MaxPixels:       cfg.MaxPixels,
		NoData:          cfg.ExportNoData,
		S2Bands:         cfg.S2Bands,
		TileSize:        cfg.TileSize,
		Workers:         cfg.Workers,
		TileMaxAttempts: cfg.TileMaxAttempts,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the ops server while the job runs.
	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, job, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	jobErr := job.Run(ctx)
	if jobErr != nil {
		logger.Error("composite job failed", "error", jobErr)
	} else {
		logger.Info("composite job finished", "exports", len(job.Results()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}
	if cfg.PushgatewayURL != "" {
		if err := push.New(cfg.PushgatewayURL, "composite").Gatherer(prometheus.DefaultGatherer).PushContext(shutdownCtx); err != nil {
			logger.Error("metrics push error", "error", err)
		}
	}

	if jobErr != nil {
		return 1
	}
	return 0
}

// newElevationSource prefers DEM_URL over DEM_PATH. A DEM that cannot be
// opened fails only the radar branch.
func newElevationSource(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.ElevationSource {
	if cfg.DEMURL != "" {
		client, err := dem.NewClient(cfg.DEMURL, cfg.DEMTimeout, metrics, logger)
		if err != nil {
			logger.Error("invalid DEM_URL", "error", err)
			return unavailable{err: err}
		}
		logger.Info("remote dem enabled", "url", cfg.DEMURL, "timeout", cfg.DEMTimeout)
		return client
	}
	d, err := geotiff.OpenDEM(cfg.DEMPath)
	if err != nil {
		logger.Error("dem unavailable", "path", cfg.DEMPath, "error", err)
		return unavailable{err: err}
	}
	return d
}

type unavailable struct {
	err error
}

func (u unavailable) Elevation(context.Context, orb.Bound) (*domain.ElevationModel, error) {
	return nil, fmt.Errorf("%w: %w", domain.ErrElevationUnavailable, u.err)
}

package config

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"time"

	"github.com/adriadescals/oil-palm-global/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/paulmach/orb"
)

// Export formats.
const (
	FormatGeoTIFF = "geotiff"
	FormatNetCDF  = "netcdf"
)

// DefaultRegion is a 20 km square in UTM zone 18N around the study point.
const DefaultRegion = "POLYGON((671000 419600, 691000 419600, 691000 439600, 671000 439600, 671000 419600))"

// Config holds all job settings, populated from environment variables.
type Config struct {
	EndDate time.Time
	SpanS1  int // months
	SpanS2  int // months

	Region       orb.Polygon
	ExportCRS    string
	ExportScale  float64
	MaxPixels    int
	ExportFormat string
	ExportNoData int
	S2Bands      []string

	SceneDir     string
	DEMPath      string
	DEMURL       string
	DEMTimeout   time.Duration
	DEMCacheSize int
	OutputDir    string

	TileSize        int
	Workers         int
	TileMaxAttempts int

	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr        string
	PushgatewayURL  string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	endDate, err := time.Parse(time.DateOnly, sharedcfg.EnvOrDefault("END_DATE", "2020-01-01"))
	if err != nil {
		return nil, errors.New("invalid END_DATE: want YYYY-MM-DD")
	}

	spanS1, err := parseIntInRange("SPAN_S1", 6, 1, 60)
	if err != nil {
		return nil, err
	}
	spanS2, err := parseIntInRange("SPAN_S2", 6, 1, 60)
	if err != nil {
		return nil, err
	}

	region, err := domain.ParseRegion(sharedcfg.EnvOrDefault("EXPORT_REGION", DefaultRegion))
	if err != nil {
		return nil, fmt.Errorf("EXPORT_REGION: %w", err)
	}

	scale, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("EXPORT_SCALE", "10"), 64)
	if err != nil || !(scale > 0) || math.IsInf(scale, 0) {
		return nil, errors.New("invalid EXPORT_SCALE")
	}

	maxPixels, err := parseIntInRange("MAX_PIXELS", 527496940, 1, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	noData, err := parseIntInRange("EXPORT_NODATA", 0, 0, 255)
	if err != nil {
		return nil, err
	}

	demTimeout, err := parseDuration("DEM_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	demCacheSize, err := parseIntInRange("DEM_CACHE_SIZE", 64, 1, 1<<20)
	if err != nil {
		return nil, err
	}

	tileSize, err := parseIntInRange("TILE_SIZE", 256, 16, 8192)
	if err != nil {
		return nil, err
	}
	workers, err := parseIntInRange("WORKERS", runtime.NumCPU(), 1, 1024)
	if err != nil {
		return nil, err
	}
	attempts, err := parseIntInRange("TILE_MAX_ATTEMPTS", 3, 1, 20)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		EndDate:         endDate,
		SpanS1:          spanS1,
		SpanS2:          spanS2,
		Region:          region,
		ExportCRS:       sharedcfg.EnvOrDefault("EXPORT_CRS", "EPSG:32618"),
		ExportScale:     scale,
		MaxPixels:       maxPixels,
		ExportFormat:    sharedcfg.EnvOrDefault("EXPORT_FORMAT", FormatGeoTIFF),
		ExportNoData:    noData,
		S2Bands:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("S2_EXPORT_BANDS", "")),
		SceneDir:        sharedcfg.EnvOrDefault("SCENE_DIR", "data/scenes"),
		DEMPath:         sharedcfg.EnvOrDefault("DEM_PATH", "data/dem/srtm.tif"),
		DEMURL:          sharedcfg.EnvOrDefault("DEM_URL", ""),
		DEMTimeout:      demTimeout,
		DEMCacheSize:    demCacheSize,
		OutputDir:       sharedcfg.EnvOrDefault("OUTPUT_DIR", "out"),
		TileSize:        tileSize,
		Workers:         workers,
		TileMaxAttempts: attempts,
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "")),
		KafkaTopic:      sharedcfg.EnvOrDefault("KAFKA_TOPIC", "composite-exports"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ""),
		PushgatewayURL:  sharedcfg.EnvOrDefault("PUSHGATEWAY_URL", ""),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.ExportFormat != FormatGeoTIFF && cfg.ExportFormat != FormatNetCDF {
		return nil, fmt.Errorf("invalid EXPORT_FORMAT %q: want %s or %s", cfg.ExportFormat, FormatGeoTIFF, FormatNetCDF)
	}
	for _, b := range cfg.S2Bands {
		if b[0] != 'B' {
			return nil, fmt.Errorf("invalid S2_EXPORT_BANDS entry %q: reflectance bands start with B", b)
		}
	}
	if cfg.SceneDir == "" {
		return nil, errors.New("SCENE_DIR is required")
	}

	return cfg, nil
}

// S1Window returns the Sentinel-1 acquisition window [start, end).
func (c *Config) S1Window() (time.Time, time.Time) {
	return c.EndDate.AddDate(0, -c.SpanS1, 0), c.EndDate
}

// S2Window returns the Sentinel-2 acquisition window [start, end).
func (c *Config) S2Window() (time.Time, time.Time) {
	return c.EndDate.AddDate(0, -c.SpanS2, 0), c.EndDate
}

// NotifierEnabled reports whether export notifications go to Kafka.
func (c *Config) NotifierEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

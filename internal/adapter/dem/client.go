package dem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/adriadescals/oil-palm-global/internal/adapter/geotiff"
	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/adriadescals/oil-palm-global/internal/observability"
	"github.com/paulmach/orb"
)

// Client implements domain.ElevationSource over HTTP. The DEM TIFF and its
// world file are downloaded on first use and windowed locally afterwards.
// A failed download is retried on the next call.
type Client struct {
	httpClient *http.Client
	tiffURL    string
	worldURL   string
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu    sync.Mutex
	model *domain.ElevationModel
}

// NewClient creates a DEM client for the TIFF at rawURL. The world file is
// expected at the same path with a .tfw extension.
func NewClient(rawURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse dem url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("dem url %q: want http or https", rawURL)
	}
	world := *u
	world.Path = geotiff.WorldFilePath(u.Path)

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tiffURL:  u.String(),
		worldURL: world.String(),
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Elevation returns the window of the remote DEM covering bound.
func (c *Client) Elevation(ctx context.Context, bound orb.Bound) (*domain.ElevationModel, error) {
	model, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return geotiff.Window(model, bound)
}

func (c *Client) load(ctx context.Context) (*domain.ElevationModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.model != nil {
		return c.model, nil
	}

	start := time.Now()
	tiffData, err := c.doRequest(ctx, c.tiffURL)
	if err != nil {
		return nil, err
	}
	worldData, err := c.doRequest(ctx, c.worldURL)
	if err != nil {
		return nil, err
	}
	c.metrics.DEMFetchDuration.Observe(time.Since(start).Seconds())

	model, err := geotiff.DecodeDEM(bytes.NewReader(tiffData), bytes.NewReader(worldData))
	if err != nil {
		return nil, fmt.Errorf("decode remote dem: %w", err)
	}
	c.logger.Info("dem downloaded",
		"url", c.tiffURL,
		"width", model.Grid.Width,
		"height", model.Grid.Height,
		"bytes", len(tiffData),
	)
	c.model = model
	return model, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: dem request: %w", domain.ErrElevationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: dem server error: status %d: %s", domain.ErrElevationUnavailable, resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read dem response: %w", err)
	}
	return data, nil
}

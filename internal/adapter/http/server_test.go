package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/adriadescals/oil-palm-global/internal/adapter/http"
	"github.com/adriadescals/oil-palm-global/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockJob struct {
	err     error
	results []domain.ExportResult
}

func (m *mockJob) CheckReadiness(_ context.Context) error { return m.err }

func (m *mockJob) Results() []domain.ExportResult { return m.results }

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockJob{err: readyErr}, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("scene collections not resolved yet"))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "scene collections not resolved yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestExportsListsResults(t *testing.T) {
	job := &mockJob{results: []domain.ExportResult{
		{Name: "Sentinel-2_composite", Format: "geotiff", Bands: []string{"B4"}, ValidPixels: 12},
	}}
	srv := httpadapter.NewServer(":0", job, slog.Default())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/exports", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Exports []domain.ExportResult `json:"exports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Exports, 1)
	assert.Equal(t, "Sentinel-2_composite", body.Exports[0].Name)
	assert.Equal(t, 12, body.Exports[0].ValidPixels)
}

func TestExportsEmptyBeforeFirstExport(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/exports", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"exports":[]}`, rec.Body.String())
}

func TestExportByName(t *testing.T) {
	job := &mockJob{results: []domain.ExportResult{
		{Name: "Sentinel-1_composite_VV_VH", Format: "netcdf", Bands: []string{"t0_vh", "t0_vv"}, ValidPixels: 24},
	}}
	srv := httpadapter.NewServer(":0", job, slog.Default())

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/exports/Sentinel-1_composite_VV_VH", http.StatusOK},
		{"/exports/Sentinel-2_composite", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantCode != http.StatusOK {
				return
			}
			var res domain.ExportResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, "netcdf", res.Format)
			assert.Equal(t, 24, res.ValidPixels)
		})
	}
}

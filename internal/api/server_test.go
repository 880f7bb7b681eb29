// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image/gif"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticelabs/znsim/internal/cache"
	"github.com/latticelabs/znsim/internal/config"
	"github.com/latticelabs/znsim/internal/model"
	"github.com/latticelabs/znsim/internal/results"
	"github.com/latticelabs/znsim/internal/sim"
	"github.com/latticelabs/znsim/internal/store"
)

type testEnv struct {
	server  *Server
	manager *sim.Manager
	router  http.Handler
}

func testAppConfig() config.AppConfig {
	return config.AppConfig{
		Version:     "test",
		Listen:      ":0",
		LogLevel:    "info",
		Cache:       config.CacheConfig{Backend: "memory", TTL: time.Minute},
		RateLimit:   config.RateLimitConfig{Enabled: false},
		Simulation:  config.SimulationConfig{Workers: 1, QueueSize: 8},
		Telemetry:   config.TelemetryConfig{},
		DataDir:     "/tmp",
		ResultsPath: "/tmp/results.db",
	}
}

func newTestEnv(t *testing.T, cfg config.AppConfig, startWorkers bool) *testEnv {
	t.Helper()

	st := store.NewMemory()
	res, err := results.NewStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	c := cache.NewMemory(time.Minute)

	manager := sim.NewManager(sim.Config{
		Workers:              cfg.Simulation.Workers,
		QueueSize:            cfg.Simulation.QueueSize,
		MeasurementBatchSize: 50,
		SnapshotsPerSecond:   1000,
		IdempotencyTTL:       time.Hour,
	}, st, res)

	if startWorkers {
		ctx, cancel := context.WithCancel(context.Background())
		manager.Start(ctx)
		t.Cleanup(func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = manager.Shutdown(shutdownCtx)
			cancel()
		})
	}

	t.Cleanup(func() {
		_ = st.Close()
		_ = res.Close()
		_ = c.Close()
	})

	srv := NewServer(cfg, manager, st, res, c, nil)
	return &testEnv{server: srv, manager: manager, router: srv.Router()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func smallRunBody() map[string]any {
	return map[string]any{
		"lattice_size":   6,
		"states":         2,
		"sweeps":         30,
		"seed":           11,
		"schedule":       map[string]any{"kind": "constant", "t": 2.0},
		"measure_every":  1,
		"snapshot_every": 5,
	}
}

func (e *testEnv) createCompletedRun(t *testing.T, body map[string]any) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/runs/", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))

	require.Eventually(t, func() bool {
		got := e.do(t, http.MethodGet, "/api/v1/runs/"+run.ID+"/", nil, nil)
		if got.Code != http.StatusOK {
			return false
		}
		var current model.Run
		if err := json.Unmarshal(got.Body.Bytes(), &current); err != nil {
			return false
		}
		return current.State == model.StateCompleted
	}, 10*time.Second, 20*time.Millisecond)

	return run.ID
}

func TestCreateAndGetRun(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), true)

	id := e.createCompletedRun(t, smallRunBody())

	rec := e.do(t, http.MethodGet, "/api/v1/runs/"+id+"/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 30, run.Sweep)
	assert.Equal(t, 6, run.Params.LatticeSize)
}

func TestCreateRunDefaultsApply(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), false)

	rec := e.do(t, http.MethodPost, "/api/v1/runs/", map[string]any{"sweeps": 10}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 50, run.Params.LatticeSize)
	assert.Equal(t, 2, run.Params.States)
	assert.Equal(t, 10, run.Params.Sweeps)
	assert.Equal(t, model.ScheduleLinear, run.Params.Schedule.Kind)
}

func TestCreateRunRejectsUnknownFields(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), false)

	rec := e.do(t, http.MethodPost, "/api/v1/runs/", map[string]any{"latice_size": 10}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRunRejectsInvalidParams(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), false)

	body := smallRunBody()
	body["states"] = 1
	rec := e.do(t, http.MethodPost, "/api/v1/runs/", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRunIdempotency(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), false)
	headers := map[string]string{"Idempotency-Key": "abc"}

	first := e.do(t, http.MethodPost, "/api/v1/runs/", smallRunBody(), headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := e.do(t, http.MethodPost, "/api/v1/runs/", smallRunBody(), headers)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b model.Run
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ID, b.ID)
}

func TestListRuns(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), false)

	rec := e.do(t, http.MethodGet, "/api/v1/runs/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)

	e.do(t, http.MethodPost, "/api/v1/runs/", smallRunBody(), nil)

	rec = e.do(t, http.MethodGet, "/api/v1/runs/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestGetRunNotFound(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), false)

	rec := e.do(t, http.MethodGet, "/api/v1/runs/ghost/", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRun(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), false)

	created := e.do(t, http.MethodPost, "/api/v1/runs/", smallRunBody(), nil)
	require.Equal(t, http.StatusCreated, created.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &run))

	rec := e.do(t, http.MethodPost, "/api/v1/runs/"+run.ID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// A second cancel hits the terminal state.
	rec = e.do(t, http.MethodPost, "/api/v1/runs/"+run.ID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/runs/ghost/cancel", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRun(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), true)

	id := e.createCompletedRun(t, smallRunBody())

	rec := e.do(t, http.MethodDelete, "/api/v1/runs/"+id+"/", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/runs/"+id+"/", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteActiveRunConflicts(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), false)

	created := e.do(t, http.MethodPost, "/api/v1/runs/", smallRunBody(), nil)
	var run model.Run
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &run))

	rec := e.do(t, http.MethodDelete, "/api/v1/runs/"+run.ID+"/", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMeasurementsPagination(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), true)
	id := e.createCompletedRun(t, smallRunBody())

	rec := e.do(t, http.MethodGet, "/api/v1/runs/"+id+"/measurements?limit=10&offset=5", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Total        int               `json:"total"`
		Measurements []json.RawMessage `json:"measurements"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 30, resp.Total)
	assert.Len(t, resp.Measurements, 10)

	rec = e.do(t, http.MethodGet, "/api/v1/runs/"+id+"/measurements?limit=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaryCaching(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), true)
	id := e.createCompletedRun(t, smallRunBody())

	first := e.do(t, http.MethodGet, "/api/v1/runs/"+id+"/summary", nil, nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))
	assert.Contains(t, first.Body.String(), `"specific_heat"`)

	second := e.do(t, http.MethodGet, "/api/v1/runs/"+id+"/summary", nil, nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestFitEndpoint(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), true)

	body := smallRunBody()
	body["lattice_size"] = 8
	body["sweeps"] = 300
	body["schedule"] = map[string]any{"kind": "linear", "from": 4.0, "to": 1.0}
	id := e.createCompletedRun(t, body)

	rec := e.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/runs/%s/fit?observable=susceptibility&tc=1.1&window=20", id), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Fit struct {
			Points int `json:"points"`
		} `json:"fit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Greater(t, resp.Fit.Points, 10)

	// Missing tc is a client error.
	rec = e.do(t, http.MethodGet, "/api/v1/runs/"+id+"/fit", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown observable is a client error.
	rec = e.do(t, http.MethodGet, "/api/v1/runs/"+id+"/fit?observable=entropy&tc=1.1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCSV(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), true)
	id := e.createCompletedRun(t, smallRunBody())

	rec := e.do(t, http.MethodGet, "/api/v1/runs/"+id+"/export.csv", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, []string{"sweep", "temperature", "energy", "magnetization", "acceptance"}, records[0])
	assert.Len(t, records, 31) // header + 30 sweeps
}

func TestAnimationGIF(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), true)
	id := e.createCompletedRun(t, smallRunBody())

	rec := e.do(t, http.MethodGet, "/api/v1/runs/"+id+"/animation.gif?scale=2&fps=10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))

	decoded, err := gif.DecodeAll(rec.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, decoded.Image)
	assert.Equal(t, 12, decoded.Image[0].Bounds().Dx()) // 6 sites × scale 2
}

func TestAnimationWithoutSnapshots(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), true)

	body := smallRunBody()
	body["snapshot_every"] = 0
	id := e.createCompletedRun(t, body)

	rec := e.do(t, http.MethodGet, "/api/v1/runs/"+id+"/animation.gif", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiting(t *testing.T) {
	cfg := testAppConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, SubmitPerMinute: 2}
	e := newTestEnv(t, cfg, false)

	for i := 0; i < 2; i++ {
		rec := e.do(t, http.MethodGet, "/api/v1/runs/", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := e.do(t, http.MethodGet, "/api/v1/runs/", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestSubmitRateLimitTighter(t *testing.T) {
	cfg := testAppConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, SubmitPerMinute: 1}
	e := newTestEnv(t, cfg, false)

	rec := e.do(t, http.MethodPost, "/api/v1/runs/", smallRunBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The submit budget is exhausted while reads stay within the global one.
	rec = e.do(t, http.MethodPost, "/api/v1/runs/", smallRunBody(), nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/runs/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateRunQueueBackpressure(t *testing.T) {
	cfg := testAppConfig()
	cfg.Simulation.QueueSize = 1
	e := newTestEnv(t, cfg, false)

	// No workers running, so the first submission fills the only queue slot.
	rec := e.do(t, http.MethodPost, "/api/v1/runs/", smallRunBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/v1/runs/", smallRunBody(), nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), false)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := e.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	e := newTestEnv(t, testAppConfig(), false)

	rec := e.do(t, http.MethodGet, "/api/v1/runs/", nil, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = e.do(t, http.MethodGet, "/api/v1/runs/", nil, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestTrustedProxyClientIP(t *testing.T) {
	cfg := testAppConfig()
	cfg.TrustedProxies = []string{"192.0.2.0/24"}
	e := newTestEnv(t, cfg, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/", strings.NewReader(""))
	req.RemoteAddr = "192.0.2.10:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 192.0.2.10")
	assert.Equal(t, "203.0.113.7", e.server.clientIP(req))

	// Untrusted peers cannot spoof via forwarding headers.
	req.RemoteAddr = "198.51.100.1:1234"
	assert.Equal(t, "198.51.100.1", e.server.clientIP(req))
}

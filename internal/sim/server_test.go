package sim

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsroom/internal/config"
	"github.com/fyrsmithlabs/newsroom/internal/logging"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/telemetry"
)

func newTestServer(t *testing.T, cfg config.SimConfig, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithRunIDs(func() string { return "run-1" })}, opts...)
	s, err := NewServer(cfg, logging.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(config.SimConfig{}, nil)
	assert.Error(t, err)

	_, err = NewServer(config.SimConfig{Outcome: "explode"}, logging.Nop())
	assert.Error(t, err)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, config.SimConfig{})
	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, HealthResponse{Status: "active", System: "Newsroom v1.0"}, got)
}

func TestServer_StartCycle_Validation(t *testing.T) {
	s := newTestServer(t, config.SimConfig{})
	tests := []struct {
		name string
		body string
	}{
		{"missing topic", `{"max_iterations": 2}`},
		{"blank topic", `{"topic": "   "}`},
		{"zero iterations", `{"topic": "AI", "max_iterations": 0}`},
		{"too many iterations", `{"topic": "AI", "max_iterations": 50}`},
		{"unknown scenario", `{"topic": "AI", "scenario": "explode"}`},
		{"malformed body", `{"topic":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/start-cycle", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}
	assert.Nil(t, s.LastResult())
}

func TestServer_CycleLifecycle(t *testing.T) {
	s := newTestServer(t, config.SimConfig{})

	rec := do(t, s, http.MethodGet, "/last-result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"no_result"}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/start-cycle", `{"topic": "AI"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var ack newsroom.StartAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "AI", ack.Topic)
	assert.Equal(t, "processing", ack.Status)
	assert.Equal(t, DefaultMaxIterations, ack.MaxIterations)
	assert.Equal(t, "run-1", ack.RunID)

	s.Wait()

	rec = do(t, s, http.MethodGet, "/logs?lines=1000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	logs := rec.Body.String()
	assert.Contains(t, logs, "Otrzymano zlecenie: AI")
	assert.Contains(t, logs, "START-OF-CYCLE: 'run-1'")
	assert.Contains(t, logs, "ORCHESTRATOR START: 'AI'")
	assert.Contains(t, logs, ">>> ARTICLE APPROVED! <<<")

	rec = do(t, s, http.MethodGet, "/last-result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res newsroom.PipelineResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, newsroom.StatusSuccess, res.Status)
	assert.Equal(t, "AI", res.Topic)
	assert.Equal(t, "run-1", res.RunID)
	assert.False(t, res.StartedAt.IsZero())
	assert.False(t, res.FinishedAt.Before(res.StartedAt.Time))
	require.NotNil(t, res.Article)
	assert.Equal(t, "AI: what changes next", res.Article.Title)
}

func TestServer_ScenarioOverridesOutcome(t *testing.T) {
	s := newTestServer(t, config.SimConfig{Outcome: "approve"})
	rec := do(t, s, http.MethodPost, "/start-cycle", `{"topic": "AI", "max_iterations": 2, "scenario": "reject"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	s.Wait()

	res := s.LastResult()
	require.NotNil(t, res)
	assert.Equal(t, newsroom.StatusRejected, res.Status)
	require.NotNil(t, res.Iterations)
	assert.Equal(t, 2, *res.Iterations)
}

func TestServer_Logs(t *testing.T) {
	s := newTestServer(t, config.SimConfig{})
	s.Journal().Log(levelInfo, "one")
	s.Journal().Log(levelInfo, "two")

	rec := do(t, s, http.MethodGet, "/logs?lines=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "\n"))
	assert.Contains(t, rec.Body.String(), "| two")

	rec = do(t, s, http.MethodGet, "/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "System Newsroom uruchomiony.")

	for _, bad := range []string{"0", "-4", "many"} {
		rec = do(t, s, http.MethodGet, "/logs?lines="+bad, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, bad)
	}
}

func TestServer_Metrics(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	hm, err := NewHTTPMetrics(tel.Meter("test"))
	require.NoError(t, err)
	s := newTestServer(t, config.SimConfig{}, WithHTTPMetrics(hm))

	do(t, s, http.MethodPost, "/start-cycle", `{"topic": "AI", "max_iterations": 1}`)
	s.Wait()
	do(t, s, http.MethodGet, "/health", "")

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "newsroom_sim_cycles_started_total 1")
	assert.Contains(t, body, `newsroom_sim_cycles_finished_total{status="success"} 1`)
	assert.Contains(t, body, "newsroom_sim_cycles_active 0")

	assert.Equal(t, int64(3), tel.CounterValue(t, "newsroom.sim.http.requests"),
		"the scrape itself is counted once it returns")
}

func TestServer_LogFileMirror(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "newsroom.log")
	s, err := NewServer(config.SimConfig{LogFile: path}, logging.Nop(), WithRunIDs(func() string { return "run-9" }))
	require.NoError(t, err)

	do(t, s, http.MethodPost, "/start-cycle", `{"topic": "AI", "max_iterations": 1}`)
	s.Wait()
	require.NoError(t, s.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "START-OF-CYCLE: 'run-9'")
	assert.Contains(t, string(data), "System Newsroom zatrzymany.")
}

func TestServer_ShutdownAbandonsCycles(t *testing.T) {
	s := newTestServer(t, config.SimConfig{StepDelay: config.Duration(time.Hour)})
	rec := do(t, s, http.MethodPost, "/start-cycle", `{"topic": "AI"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Nil(t, s.LastResult())
}

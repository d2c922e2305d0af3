package newsroom

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsroom/internal/config"
)

func TestClient_StartCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/start-cycle", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req StartRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AI in newsrooms", req.Topic)
		assert.Equal(t, 2, req.MaxIterations)

		_, _ = io.WriteString(w, `{"message":"accepted","topic":"AI in newsrooms","status":"processing","max_iterations":2,"run_id":"r-1"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken(config.Secret("tok")))
	ack, err := c.StartCycle(context.Background(), StartRequest{Topic: "AI in newsrooms", MaxIterations: 2})
	require.NoError(t, err)
	assert.Equal(t, "r-1", ack.RunID)
	assert.Equal(t, "processing", ack.Status)
}

func TestClient_StartCycle_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":[{"loc":["body","topic"],"msg":"field required"}]}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).StartCycle(context.Background(), StartRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "/start-cycle", apiErr.Path)
	assert.Contains(t, apiErr.Detail, "field required")
}

func TestClient_StartCycle_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).StartCycle(context.Background(), StartRequest{Topic: "x", MaxIterations: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "perform request")
}

func TestClient_Logs_PlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logs", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("lines"))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "2024-05-01 10:00:00 | INFO | a\n2024-05-01 10:00:01 | INFO | b\n")
	}))
	defer srv.Close()

	text, err := New(srv.URL).Logs(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01 10:00:00 | INFO | a\n2024-05-01 10:00:01 | INFO | b\n", text)
}

func TestClient_Logs_JSONEnvelope(t *testing.T) {
	for name, body := range map[string]string{
		"string": `{"logs":"a\nb"}`,
		"list":   `{"logs":["a","b"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			text, err := New(srv.URL).Logs(context.Background(), 10)
			require.NoError(t, err)
			assert.Equal(t, "a\nb", text)
		})
	}
}

func TestClient_LastResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{
			"status": "success",
			"topic": "AI",
			"iterations": 2,
			"started_at": "2024-05-01T10:00:00.123456",
			"finished_at": null,
			"article": {"title": "T", "lead": "L", "body": "B", "tags": ["ai"], "word_count": 420},
			"review": {"decision": "approve", "score": 8.5, "strengths": ["clear"], "weaknesses": []}
		}`)
	}))
	defer srv.Close()

	res, err := New(srv.URL).LastResult(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.NotNil(t, res.Iterations)
	assert.Equal(t, 2, *res.Iterations)
	require.NotNil(t, res.Article)
	require.NotNil(t, res.Article.WordCount)
	assert.Equal(t, 420, *res.Article.WordCount)
	assert.Equal(t, 8.5, res.Review.Score)
	assert.Equal(t, 2024, res.StartedAt.Year())
	assert.True(t, res.FinishedAt.IsZero())
	assert.NotEmpty(t, res.Raw)
}

func TestClient_LastResult_NoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"no_result"}`)
	}))
	defer srv.Close()

	res, err := New(srv.URL).LastResult(context.Background())
	assert.ErrorIs(t, err, ErrNoResult)
	require.NotNil(t, res)
	assert.Equal(t, StatusNoResult, res.Status)
}

func TestStatus_UnknownValues(t *testing.T) {
	var res PipelineResult
	require.NoError(t, json.Unmarshal([]byte(`{"status":"published"}`), &res))
	assert.Equal(t, StatusUnknown, res.Status)
	assert.False(t, res.Status.Terminal())

	assert.True(t, StatusMaxIterations.Terminal())
	assert.True(t, StatusError.Failed())
	assert.False(t, StatusRejected.Failed())
}

func TestTimestamp(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-05-01T10:00:00Z"`), &ts))
	assert.True(t, ts.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))

	b, err := json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"active","system":"Newsroom v1.0"}`)
	}))
	defer srv.Close()

	hs := New(srv.URL).Health(context.Background())
	assert.True(t, hs.Reachable)
	assert.Equal(t, "active", hs.Status)
	assert.Equal(t, "Newsroom v1.0", hs.Service)
	assert.NoError(t, hs.Err)
}

func TestClient_Health_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hs := New(srv.URL).Health(context.Background())
	assert.False(t, hs.Reachable)
	assert.Error(t, hs.Err)
}

func TestClient_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "")
	}))
	defer srv.Close()

	c := New(srv.URL, WithRateLimit(0.001))
	_, err := c.Logs(context.Background(), 1)
	require.NoError(t, err, "first request uses the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Logs(ctx, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

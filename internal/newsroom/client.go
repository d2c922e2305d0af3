package newsroom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/newsroom/internal/config"
	"github.com/fyrsmithlabs/newsroom/internal/logging"
)

// ErrNoResult is returned by LastResult while the server has no result.
var ErrNoResult = errors.New("no result available yet")

// maxLogBytes bounds a single /logs response.
const maxLogBytes = 8 << 20

// APIError is a non-2xx response from the server.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api %s %s failed with status %d", e.Method, e.Path, e.StatusCode)
}

// Client talks to the newsroom HTTP API.
type Client struct {
	baseURL string
	token   config.Secret
	http    *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer credential.
func WithToken(token config.Secret) Option {
	return func(c *Client) { c.token = token }
}

// WithRateLimit caps requests per second. rps <= 0 disables the limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logging.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a client from the server section.
func NewFromConfig(cfg config.ServerConfig, logger *logging.Logger) *Client {
	return New(cfg.URL,
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout.Duration()}),
		WithToken(cfg.Token),
		WithRateLimit(cfg.MaxRPS),
		WithLogger(logger.Named("client")),
	)
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartCycle asks the server to run a pipeline cycle for req.Topic.
func (c *Client) StartCycle(ctx context.Context, req StartRequest) (*StartAck, error) {
	var ack StartAck
	if err := c.doJSON(ctx, http.MethodPost, "/start-cycle", req, &ack); err != nil {
		return nil, err
	}
	c.logger.Debug(ctx, "cycle started",
		zap.String("topic", req.Topic),
		zap.String("run_id", ack.RunID),
		zap.String("status", ack.Status))
	return &ack, nil
}

// Logs returns the last n lines of the server log.
//
// The body is plain text; a JSON body of the form {"logs": "..."} or
// {"logs": ["...", ...]} is also accepted.
func (c *Client) Logs(ctx context.Context, lines int) (string, error) {
	path := "/logs?lines=" + strconv.Itoa(lines)
	resp, err := c.do(ctx, http.MethodGet, path, nil, "text/plain, application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLogBytes))
	if err != nil {
		return "", fmt.Errorf("read logs: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return string(body), nil
	}

	var envelope struct {
		Logs json.RawMessage `json:"logs"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode logs: %w", err)
	}
	var text string
	if err := json.Unmarshal(envelope.Logs, &text); err == nil {
		return text, nil
	}
	var list []string
	if err := json.Unmarshal(envelope.Logs, &list); err != nil {
		return "", fmt.Errorf("decode logs: %w", err)
	}
	return strings.Join(list, "\n"), nil
}

// LastResult returns the most recent cycle result. While none exists it
// returns the placeholder result together with ErrNoResult.
func (c *Client) LastResult(ctx context.Context) (*PipelineResult, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/last-result", nil, &raw); err != nil {
		return nil, err
	}
	var res PipelineResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	res.Raw = raw
	if res.Status == StatusNoResult {
		return &res, ErrNoResult
	}
	return &res, nil
}

// Health probes GET /health. Transport and HTTP errors are reported in
// the returned status rather than as an error.
func (c *Client) Health(ctx context.Context) HealthStatus {
	start := c.now()
	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
		System  string `json:"system"`
	}
	resp, err := c.do(ctx, http.MethodGet, "/health", nil, "application/json")
	if err == nil {
		// Any 2xx counts as reachable; the body is informational.
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
		resp.Body.Close()
	}

	hs := HealthStatus{
		Reachable: err == nil,
		Status:    body.Status,
		Service:   body.Service,
		Latency:   c.now().Sub(start),
		CheckedAt: start,
		Err:       err,
	}
	if hs.Service == "" {
		hs.Service = body.System
	}
	return hs
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		blob, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request payload: %w", err)
		}
		body = bytes.NewReader(blob)
	}

	resp, err := c.do(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends a request and converts non-2xx responses into *APIError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, accept string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token.IsSet() {
		req.Header.Set("Authorization", "Bearer "+c.token.Value())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		blob, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &APIError{
			Method:     method,
			Path:       stripQuery(path),
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(blob),
		}
	}
	return resp, nil
}

// errorDetail extracts FastAPI-style {"detail": ...} or {"error": ...} bodies.
func errorDetail(blob []byte) string {
	var e struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(blob, &e) != nil {
		return strings.TrimSpace(string(blob))
	}
	if len(e.Detail) > 0 {
		var s string
		if json.Unmarshal(e.Detail, &s) == nil {
			return s
		}
		var compact bytes.Buffer
		if json.Compact(&compact, e.Detail) == nil {
			return compact.String()
		}
	}
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

func stripQuery(path string) string {
	if u, err := url.Parse(path); err == nil {
		return u.Path
	}
	return path
}

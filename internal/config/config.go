// Package config provides configuration for the newsroom client and simulator.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
)

// Simulator outcomes accepted by sim.outcome.
var validOutcomes = map[string]bool{
	"approve":        true,
	"revise_approve": true,
	"reject":         true,
	"reject_retry":   true,
	"max_iterations": true,
	"error":          true,
}

// Config holds the client and simulator configuration.
//
// The logging and telemetry sections are decoded by their own packages
// through Section, since both packages depend on this one.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Poll    PollConfig    `koanf:"poll"`
	Result  ResultConfig  `koanf:"result"`
	Health  HealthConfig  `koanf:"health"`
	Detect  DetectConfig  `koanf:"detect"`
	History HistoryConfig `koanf:"history"`
	Notify  NotifyConfig  `koanf:"notify"`
	Sim     SimConfig     `koanf:"sim"`

	k *koanf.Koanf
}

// ServerConfig describes the newsroom HTTP server.
type ServerConfig struct {
	URL     string   `koanf:"url"`
	Token   Secret   `koanf:"token"`
	Timeout Duration `koanf:"timeout"`
	// MaxRPS caps outgoing requests per second. Zero disables the limiter.
	MaxRPS float64 `koanf:"max_rps"`
}

// PollConfig controls log polling.
type PollConfig struct {
	Interval      Duration `koanf:"interval"`
	Lines         int      `koanf:"lines"`
	MaxIterations int      `koanf:"max_iterations"`
}

// ResultConfig controls the final result fetch.
type ResultConfig struct {
	Retries int      `koanf:"retries"`
	Delay   Duration `koanf:"delay"`
}

// HealthConfig controls the liveness monitor.
type HealthConfig struct {
	Interval Duration `koanf:"interval"`
	Timeout  Duration `koanf:"timeout"`
}

// DetectConfig controls completion detection.
type DetectConfig struct {
	StartMarkers []string `koanf:"start_markers"`
}

// HistoryConfig controls the local run archive.
type HistoryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// NotifyConfig controls NATS lifecycle notifications.
// An empty NATSURL disables notifications.
type NotifyConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// SimConfig configures newsroom-sim.
type SimConfig struct {
	Host        string   `koanf:"host"`
	Port        int      `koanf:"port"`
	StepDelay   Duration `koanf:"step_delay"`
	Outcome     string   `koanf:"outcome"`
	LogFile     string   `koanf:"log_file"`
	JournalSize int      `koanf:"journal_size"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:     "http://localhost:8000",
			Timeout: Duration(10 * time.Second),
		},
		Poll: PollConfig{
			Interval:      Duration(time.Second),
			Lines:         100,
			MaxIterations: 3,
		},
		Result: ResultConfig{
			Retries: 5,
			Delay:   Duration(time.Second),
		},
		Health: HealthConfig{
			Interval: Duration(30 * time.Second),
			Timeout:  Duration(5 * time.Second),
		},
		Detect: DetectConfig{
			StartMarkers: []string{"START-OF-CYCLE", "ORCHESTRATOR START"},
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "~/.config/newsroom/history.db",
		},
		Notify: NotifyConfig{
			SubjectPrefix: "newsroom.runs",
		},
		Sim: SimConfig{
			Host:        "127.0.0.1",
			Port:        8000,
			StepDelay:   Duration(500 * time.Millisecond),
			Outcome:     "approve",
			JournalSize: 5000,
		},
	}
}

// Section decodes the raw configuration subtree at key into out.
// Fields of out absent from the source keep their current values.
func (c *Config) Section(key string, out any) error {
	if c.k == nil {
		return nil
	}
	if err := c.k.Unmarshal(key, out); err != nil {
		return fmt.Errorf("decoding %s config: %w", key, err)
	}
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("server.url must be an absolute http(s) URL, got %q", c.Server.URL))
	}
	if c.Server.MaxRPS < 0 {
		errs = append(errs, errors.New("server.max_rps cannot be negative"))
	}
	if c.Poll.Interval.Duration() <= 0 {
		errs = append(errs, errors.New("poll.interval must be positive"))
	}
	if c.Poll.Lines < 1 {
		errs = append(errs, errors.New("poll.lines must be at least 1"))
	}
	if c.Poll.MaxIterations < 1 {
		errs = append(errs, errors.New("poll.max_iterations must be at least 1"))
	}
	if c.Result.Retries < 1 {
		errs = append(errs, errors.New("result.retries must be at least 1"))
	}
	if c.Health.Interval.Duration() <= 0 {
		errs = append(errs, errors.New("health.interval must be positive"))
	}
	if len(c.Detect.StartMarkers) == 0 {
		errs = append(errs, errors.New("detect.start_markers cannot be empty"))
	}
	for _, m := range c.Detect.StartMarkers {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, errors.New("detect.start_markers cannot contain blank entries"))
			break
		}
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, errors.New("history.path is required when history is enabled"))
	}
	if c.Notify.NATSURL != "" && c.Notify.SubjectPrefix == "" {
		errs = append(errs, errors.New("notify.subject_prefix is required when notify.nats_url is set"))
	}
	if c.Sim.Port < 0 || c.Sim.Port > 65535 {
		errs = append(errs, fmt.Errorf("sim.port out of range: %d", c.Sim.Port))
	}
	if !validOutcomes[c.Sim.Outcome] {
		errs = append(errs, fmt.Errorf("sim.outcome %q is not one of approve, revise_approve, reject, reject_retry, max_iterations, error", c.Sim.Outcome))
	}

	return errors.Join(errs...)
}

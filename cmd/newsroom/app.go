package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsroom/internal/config"
	"github.com/fyrsmithlabs/newsroom/internal/health"
	"github.com/fyrsmithlabs/newsroom/internal/history"
	"github.com/fyrsmithlabs/newsroom/internal/logging"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
	"github.com/fyrsmithlabs/newsroom/internal/notify"
	"github.com/fyrsmithlabs/newsroom/internal/poller"
	"github.com/fyrsmithlabs/newsroom/internal/render"
	"github.com/fyrsmithlabs/newsroom/internal/result"
	"github.com/fyrsmithlabs/newsroom/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/newsroom"

// app holds the services shared by every command.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	tel     *telemetry.Telemetry
	client  *newsroom.Client
	metrics *poller.Metrics

	closers []func() error
}

// loadApp reads configuration and builds the logger, telemetry and API client.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.Server.URL = strings.TrimRight(serverURL, "/")
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logCfg := logging.NewDefaultConfig()
	if err := cfg.Section("logging", logCfg); err != nil {
		return nil, err
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	telCfg := telemetry.NewDefaultConfig()
	telCfg.ServiceVersion = version
	if err := cfg.Section("telemetry", telCfg); err != nil {
		return nil, err
	}
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return nil, err
	}
	if derr := tel.Degraded(); derr != nil {
		logger.Warn(ctx, "telemetry degraded", zap.Error(derr))
	}

	metrics, err := poller.NewMetrics(tel.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		tel:     tel,
		client:  newsroom.NewFromConfig(cfg.Server, logger),
		metrics: metrics,
	}, nil
}

// close releases everything the app opened, flushing telemetry last.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn(context.Background(), "close failed", zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Result.Delay.Duration()+5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *app) fetcher() *result.Fetcher {
	return result.New(a.client,
		result.WithAttempts(a.cfg.Result.Retries),
		result.WithDelay(a.cfg.Result.Delay.Duration()),
		result.WithLogger(a.logger),
		result.WithAttemptHook(a.metrics.ResultAttempt),
	)
}

func (a *app) poller(surface render.Surface, observers ...poller.Observer) *poller.Poller {
	return poller.New(a.client, a.fetcher(), render.New(surface),
		poller.WithInterval(a.cfg.Poll.Interval.Duration()),
		poller.WithLines(a.cfg.Poll.Lines),
		poller.WithStartMarkers(a.cfg.Detect.StartMarkers...),
		poller.WithObserver(poller.MultiObserver(observers)),
		poller.WithLogger(a.logger),
		poller.WithTracer(a.tel.Tracer(instrumentationName)),
		poller.WithMetrics(a.metrics),
	)
}

// notifier connects to NATS when notify.nats_url is set. It returns nil
// otherwise. A failed connection only disables notifications.
func (a *app) notifier(ctx context.Context) poller.Observer {
	if a.cfg.Notify.NATSURL == "" {
		return nil
	}
	n, nc, err := notify.Connect(a.cfg.Notify.NATSURL, a.cfg.Notify.SubjectPrefix, a.logger)
	if err != nil {
		a.logger.Warn(ctx, "notifications disabled", zap.Error(err))
		return nil
	}
	a.closers = append(a.closers, func() error {
		if err := nc.Flush(); err != nil {
			nc.Close()
			return err
		}
		nc.Close()
		return nil
	})
	return n
}

// history opens the run archive. It returns nil when history is disabled.
func (a *app) history() (*history.Store, error) {
	if !a.cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(a.cfg.History.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *app) healthMonitor() *health.Monitor {
	return health.NewMonitor(a.client,
		health.WithInterval(a.cfg.Health.Interval.Duration()),
		health.WithTimeout(a.cfg.Health.Timeout.Duration()),
		health.WithLogger(a.logger),
	)
}

// interactive reports whether f is a terminal.
func interactive(f any) bool {
	file, ok := f.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

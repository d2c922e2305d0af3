// Newsroom-sim is a scripted stand-in for the Autonomous Newsroom server.
//
// It serves the same HTTP API and writes the same log lines as the real
// orchestrator, so the newsroom client can be exercised end to end.
//
// Usage:
//
//	# Start on 127.0.0.1:8000, approving every article
//	newsroom-sim
//
//	# Every cycle ends at the iteration limit, one step per second
//	newsroom-sim -outcome max_iterations -step-delay 1s
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsroom/internal/config"
	"github.com/fyrsmithlabs/newsroom/internal/logging"
	"github.com/fyrsmithlabs/newsroom/internal/sim"
	"github.com/fyrsmithlabs/newsroom/internal/telemetry"
)

// Version information (set via ldflags during build)
var version = "dev"

const shutdownTimeout = 10 * time.Second

var (
	configPath = flag.String("config", "", "config file (default ~/.config/newsroom/config.yaml)")
	host       = flag.String("host", "", "listen host (overrides sim.host)")
	port       = flag.Int("port", 0, "listen port (overrides sim.port)")
	outcome    = flag.String("outcome", "", "cycle outcome: approve, revise_approve, reject, reject_retry, max_iterations, error")
	stepDelay  = flag.Duration("step-delay", -1, "pause before each pipeline step (overrides sim.step_delay)")
	logFile    = flag.String("log-file", "", "also append the journal to this file")
	logLevel   = flag.String("log-level", "info", "log level")
)

func main() {
	flag.Parse()
	if flag.NArg() > 0 && flag.Arg(0) == "version" {
		fmt.Printf("newsroom-sim %s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "newsroom-sim: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// run starts the simulator and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg.Sim)

	logCfg := logging.NewDefaultConfig()
	if err := cfg.Section("logging", logCfg); err != nil {
		return err
	}
	logCfg.Level = *logLevel
	logCfg.Fields = map[string]string{"service": "newsroom-sim"}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	telCfg := telemetry.NewDefaultConfig()
	telCfg.ServiceName = "newsroom-sim"
	telCfg.ServiceVersion = version
	if err := cfg.Section("telemetry", telCfg); err != nil {
		return err
	}
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), telCfg.Shutdown.Timeout.Duration())
		defer cancel()
		_ = tel.Shutdown(sctx)
	}()

	httpMetrics, err := sim.NewHTTPMetrics(tel.Meter("github.com/fyrsmithlabs/newsroom/internal/sim"))
	if err != nil {
		return fmt.Errorf("failed to create http metrics: %w", err)
	}
	srv, err := sim.NewServer(cfg.Sim, logger, sim.WithHTTPMetrics(httpMetrics))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info(ctx, "simulator ready",
		zap.String("health_endpoint", fmt.Sprintf("http://%s/health", srv.Addr())),
		zap.String("metrics_endpoint", "/metrics"),
		zap.Duration("step_delay", cfg.Sim.StepDelay.Duration()))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func applyFlags(c *config.SimConfig) {
	if *host != "" {
		c.Host = *host
	}
	if *port != 0 {
		c.Port = *port
	}
	if *outcome != "" {
		c.Outcome = *outcome
	}
	if *stepDelay >= 0 {
		c.StepDelay = config.Duration(*stepDelay)
	}
	if *logFile != "" {
		c.LogFile = *logFile
	}
}

// Package main implements the newsroom CLI, a log-driven client for the
// Autonomous Newsroom server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides ~/.config/newsroom/config.yaml
	configPath string
	// serverURL overrides server.url
	serverURL string
	// logLevel overrides logging.level
	logLevel string

	// version information (set via ldflags during build)
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "newsroom",
	Short: "Client for the Autonomous Newsroom server",
	Long: `newsroom submits topics to an Autonomous Newsroom server and follows the
pipeline through its log stream until the article is approved, rejected or
the iteration limit is reached.

Configuration is read from ~/.config/newsroom/config.yaml and NEWSROOM_*
environment variables.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/newsroom/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "newsroom server URL (overrides server.url)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "newsroom %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", gitCommit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", buildDate)
	},
}

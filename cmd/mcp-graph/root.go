package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/config"
	"github.com/jrojas-pena/Arquitectura-software-Actividad-3/internal/logging"
)

var (
	envFiles []string
	logLevel string

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mcp-graph",
	Short: "Bounded Cypher query gateway",
	Long: `mcp-graph executes Cypher queries against a pooled graph database
connection with bounded acquisition and query time, and reports every
failure as one of ValidationError, AcquisitionTimeout, StoreError or
SerializationError.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(seedCmd)
}

// Execute runs the root command, cancelling its context on SIGINT or SIGTERM.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}

	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}

	cfg = loaded
	logger = logging.New(cfg.Logging).With("command", cmd.Name())
	return nil
}

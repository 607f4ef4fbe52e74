package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexd/nexd/internal/config"
	"github.com/nexd/nexd/internal/telemetry"
)

var (
	version = "dev"

	cfg config.Config
)

// Execute runs the nexd command line.
func Execute() error {
	root := &cobra.Command{
		Use:           "nexd",
		Short:         "Neighbourhood help requests in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
	root.AddCommand(tuiCmd(), devserverCmd(), tokenCmd(), versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skips config loading so a broken config file still reports a version.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "nexd", version)
		},
	}
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Store the bearer token used against the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.API.Token = args[0]
			if err := config.Save(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved. Requests now run as %s.\n", args[0])
			return nil
		},
	}
}

// startTracing installs the OTLP exporter when telemetry.endpoint is set.
// The returned func flushes it and is safe to call when tracing is off.
func startTracing(ctx context.Context, logger *slog.Logger, service string) (func(), error) {
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, service)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Telemetry.Endpoint)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}, nil
}

package commands

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/nexd/nexd/internal/api"
	"github.com/nexd/nexd/internal/config"
	"github.com/nexd/nexd/internal/flow"
	"github.com/nexd/nexd/internal/loop"
	"github.com/nexd/nexd/internal/metrics"
	"github.com/nexd/nexd/internal/tui"
)

func tuiCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal client",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch tui.Role(role) {
			case tui.RoleNone, tui.RoleHelper, tui.RoleSeeker:
			default:
				return fmt.Errorf("--role must be helper or seeker, got %q", role)
			}

			// The terminal belongs to the UI, so logs only go to log.file.
			logger, closeLog, err := config.NewLogger(cfg.Log, io.Discard)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := cmd.Context()
			stopTracing, err := startTracing(ctx, logger, "nexd-tui")
			if err != nil {
				return err
			}
			defer stopTracing()

			client, err := api.New(cfg.API.BaseURL, cfg.API.Token,
				api.WithLogger(logger),
				api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
			)
			if err != nil {
				return err
			}

			l := loop.New(logger)
			l.Start(ctx)
			defer func() {
				l.Stop()
				<-l.Done()
			}()

			opts := flow.Options{
				Debounce:       cfg.Search.Debounce,
				Limit:          cfg.Search.Limit,
				Language:       cfg.Search.Language,
				Timeout:        cfg.API.Timeout,
				Logger:         logger,
				Metrics:        metrics.NewPipelines(nil),
				MatchLateUnits: cfg.Search.MatchLateUnits,
			}
			logger.Info("starting tui", "role", role, "backend", cfg.API.BaseURL)
			return tui.Run(ctx, l, client.Services(), opts, tui.Role(role))
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "open straight into the helper or seeker screen")
	return cmd
}

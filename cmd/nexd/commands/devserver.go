package commands

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nexd/nexd/internal/config"
	"github.com/nexd/nexd/internal/database"
	"github.com/nexd/nexd/internal/devserver"
)

func devserverCmd() *cobra.Command {
	var (
		addr, dbPath string
		reset        bool
	)
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run the development backend on a local SQLite file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.Devserver.Addr
			}
			if dbPath == "" {
				dbPath = cfg.Devserver.DatabasePath
			}
			logger, closeLog, err := config.NewLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := cmd.Context()
			stopTracing, err := startTracing(ctx, logger, "nexd-devserver")
			if err != nil {
				return err
			}
			defer stopTracing()

			db, err := database.Open(dbPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()
			if err := database.RunMigrations(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if reset {
				if err := database.Reset(ctx, db); err != nil {
					return fmt.Errorf("reset: %w", err)
				}
				logger.Warn("devserver data wiped", "db", dbPath)
			}
			if cfg.Devserver.Seed {
				if err := database.SeedFromYAML(ctx, db, database.DefaultSeed); err != nil {
					return fmt.Errorf("seed: %w", err)
				}
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			srv := devserver.New(db, devserver.Options{
				Logger:    logger,
				RateLimit: cfg.Devserver.RateLimit,
				RateBurst: cfg.Devserver.RateBurst,
				Registry:  reg,
			})
			logger.Info("devserver ready", "db", dbPath, "seeded", cfg.Devserver.Seed)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default devserver.addr)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file (default devserver.database_path)")
	cmd.Flags().BoolVar(&reset, "reset", false, "wipe all data before starting")
	return cmd
}

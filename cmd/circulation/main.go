// cmd/circulation/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"libraledger/internal/audit"
	"libraledger/internal/config"
	"libraledger/internal/server"
	"libraledger/internal/store"
	"libraledger/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.Config

	root := &cobra.Command{
		Use:           "circulation",
		Short:         "Library loan and fine service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			overrideFromFlags(cmd, &loaded)
			if err := loaded.Validate(); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().String("db-driver", "", "database driver: postgres, pgx or sqlite3")
	root.PersistentFlags().String("db-url", "", "database connection string")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newServeCmd(&cfg), newMigrateCmd(&cfg), newAuditCmd(&cfg))
	return root
}

func overrideFromFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if v, _ := flags.GetString("db-driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v, _ := flags.GetString("db-url"); v != "" {
		cfg.Database.URL = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if flags.Lookup("addr") != nil {
		if v, _ := flags.GetString("addr"); v != "" {
			cfg.HTTPAddr = v
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*store.DB, error) {
	logger := telemetry.NewLogger(os.Stderr, cfg.LogLevel)
	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URL,
		store.WithLogger(logger), store.WithMaxOpenConns(cfg.Database.MaxOpenConns))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := telemetry.NewLogger(os.Stderr, cfg.LogLevel)

			shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Warn("flush traces", "error", err)
				}
			}()

			db, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(ctx); err != nil {
				return err
			}

			srv, err := server.New(*cfg, db, logger)
			if err != nil {
				return err
			}
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default $HTTP_ADDR or :8082)")
	return cmd
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the schema and seed fine types",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Migrate(cmd.Context())
		},
	}
}

func newAuditCmd(cfg *config.Config) *cobra.Command {
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check ledger invariants against the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			auditor := audit.NewAuditor(telemetry.NewLogger(os.Stderr, cfg.LogLevel))
			auditor.Register(audit.LedgerChecks(db)...)

			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if every > 0 {
				auditor.Watch(ctx, every, func(r audit.Report) { _ = enc.Encode(r) })
				return nil
			}

			report := auditor.Run(ctx)
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Healthy {
				return fmt.Errorf("%d invariant violation(s)", len(report.Violations()))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "watch", 0, "rerun the checks at this interval until interrupted")
	return cmd
}

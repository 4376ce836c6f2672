// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/embermud/embermud/internal/auth"
	"github.com/embermud/embermud/internal/combat"
	"github.com/embermud/embermud/internal/logging"
	"github.com/embermud/embermud/internal/observability"
	"github.com/embermud/embermud/internal/persist"
	"github.com/embermud/embermud/internal/persist/postgres"
	"github.com/embermud/embermud/internal/player"
	"github.com/embermud/embermud/internal/session"
	"github.com/embermud/embermud/internal/telnet"
)

// serveConfig holds configuration for the serve command.
type serveConfig struct {
	telnetAddr  string
	metricsAddr string
	storage     string
	dataFile    string
	logFormat   string
	graceDelay  time.Duration
}

// Validate checks that the configuration is valid.
func (cfg *serveConfig) Validate() error {
	if cfg.telnetAddr == "" {
		return fmt.Errorf("telnet-addr is required")
	}
	if _, err := persist.ParseMode(cfg.storage); err != nil {
		return err
	}
	if cfg.logFormat != "json" && cfg.logFormat != "text" {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", cfg.logFormat)
	}
	return nil
}

// Default values for serve command flags.
const (
	defaultTelnetAddr  = ":4000"
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultStorage     = "file"
	defaultDataFile    = "data/players.json"
	defaultLogFormat   = "json"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the game server",
		Long: `Start the game server: load player records from the configured
backends, then accept telnet connections.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.telnetAddr, "telnet-addr", defaultTelnetAddr, "telnet listen address")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().StringVar(&cfg.storage, "storage", defaultStorage, "storage mode (file, database or auto)")
	cmd.Flags().StringVar(&cfg.dataFile, "data-file", defaultDataFile, "flat save file path")
	cmd.Flags().StringVar(&cfg.logFormat, "log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().DurationVar(&cfg.graceDelay, "grace-delay", session.DefaultGraceDelay, "delay before a superseded connection is closed")

	return cmd
}

func runServe(ctx context.Context, cfg *serveConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.SetDefault("embermud", version, cfg.logFormat)

	mode, err := persist.ParseMode(cfg.storage)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting server",
		"telnet_addr", cfg.telnetAddr,
		"storage", mode,
		"log_format", cfg.logFormat,
	)

	opts := persist.Options{Mode: mode}
	if mode != persist.ModeDatabase {
		opts.File = persist.NewFlatFile(cfg.dataFile)
	}

	var pool *pgxpool.Pool
	if mode != persist.ModeFile {
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required for storage mode %q", mode)
		}
		pool, err = connectDatabase(ctx, databaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		opts.DB = postgres.NewPlayerRepository(pool)
		slog.Info("connected to database")
	}

	gateway, err := persist.NewGateway(opts)
	if err != nil {
		return err
	}
	defer gateway.Close()

	hasher := auth.NewHasher()
	store := player.NewStore(gateway, hasher)
	if err := store.LoadAll(gateway.Load(ctx)); err != nil {
		return fmt.Errorf("failed to load player records: %w", err)
	}

	authenticator, err := auth.NewAuthenticator(store, hasher)
	if err != nil {
		return err
	}

	registry := session.NewRegistry()
	tracker := combat.NewTracker()
	transfers, err := session.NewCoordinator(registry, store, tracker, cfg.graceDelay)
	if err != nil {
		return err
	}

	if cfg.metricsAddr != "" {
		obs := observability.NewServer(cfg.metricsAddr, func() bool { return true })
		session.RegisterMetrics(obs.Registry())
		persist.RegisterMetrics(obs.Registry())
		if _, err := obs.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				slog.Error("observability shutdown failed", "error", err)
			}
		}()
	}

	server := telnet.NewServer(cfg.telnetAddr, telnet.Deps{
		Store:     store,
		Auth:      authenticator,
		Registry:  registry,
		Transfers: transfers,
	})

	err = server.Run(ctx)

	// Give queued database writes a chance to land before exit.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if flushErr := gateway.Flush(flushCtx); flushErr != nil {
		slog.Error("final persistence flush failed", "error", flushErr)
	}

	return err
}

// connectDatabase opens a pgx pool and pings it with bounded backoff, so a
// database that is still coming up does not fail the whole boot.
func connectDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

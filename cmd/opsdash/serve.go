package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/scamwatch-ops/internal/config"
	"github.com/rickgao/scamwatch-ops/internal/dashboard"
	"github.com/rickgao/scamwatch-ops/internal/database"
	"github.com/rickgao/scamwatch-ops/internal/version"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the live data service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAndValidate(*configPath)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.Logging, os.Stdout)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting opsdash",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"origin", cfg.Backend.Origin,
	)

	deps := dashboard.Deps{Logger: logger}

	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Archive.Database.Host,
			"port", cfg.Archive.Database.Port,
			"database", cfg.Archive.Database.Name,
		)
		pool, err := openArchive(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		deps.ArchiveDB = pool
		logger.Info("archive database connected")
	}

	dash, err := dashboard.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("build dashboard: %w", err)
	}
	if err := dash.Start(ctx); err != nil {
		return fmt.Errorf("start dashboard: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           dash.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return errors.Join(
			server.Shutdown(shutdownCtx),
			dash.Stop(shutdownCtx),
		)
	})

	err = g.Wait()
	logger.Info("opsdash stopped")
	return err
}

func openArchive(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := database.Connect(connectCtx, cfg.Archive.Database, "opsdash-"+cfg.Instance.ID)
	if err != nil {
		return nil, fmt.Errorf("connect archive database: %w", err)
	}
	if err := database.EnsureSchema(connectCtx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prepare archive schema: %w", err)
	}
	return pool, nil
}

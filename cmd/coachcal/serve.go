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

	"github.com/spf13/cobra"

	web "coachcal/internal/adapters/http"
	"coachcal/internal/adapters/http/middleware"
	"coachcal/internal/adapters/http/perf"
	"coachcal/internal/adapters/storage"
	"coachcal/internal/adapters/storage/calendaritem"
	"coachcal/internal/config"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API and the board pages.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, o.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	db, err := openDB(cfg.Server.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// Performance instrumentation: wrap DB with timing, create collector
	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector).WithThreshold(cfg.Server.SlowQueryMs)
	middleware.SetSlowRequestThreshold(cfg.Server.SlowRequestMs)
	web.RateLimitPerSecond = cfg.Server.RateLimitPerSecond

	key, err := cfg.CSRFKeyBytes()
	if err != nil {
		return err
	}
	handler := web.NewMux(cfg.Server.StaticDir, &web.Stores{
		ItemStore: calendaritem.NewSQLiteStore(timedDB),
	}, collector, web.Options{
		CSRFKey: key,
		Secure:  cfg.Production(),
		Window:  cfg.Window(),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("server_started",
		"version", version,
		"addr", cfg.Server.Listen,
		"env", cfg.Server.Env,
		"schema", storage.LatestSchemaVersion(),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/avatargate/avatargate/internal/account"
	"github.com/avatargate/avatargate/internal/api"
	"github.com/avatargate/avatargate/internal/artifact"
	"github.com/avatargate/avatargate/internal/config"
	"github.com/avatargate/avatargate/internal/job"
	"github.com/avatargate/avatargate/internal/queue"
	"github.com/avatargate/avatargate/internal/store"
	"github.com/spf13/cobra"
)

const (
	sessionSweepInterval = time.Hour
	shutdownTimeout      = 10 * time.Second
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the synthesis workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx.configValue())
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	arts, err := artifact.Open(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}
	defer arts.Close()

	preflight(cfg.Synthesis)

	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	registry := job.NewRegistry()
	q := queue.New(cfg, registry, st, arts)
	q.Start(ctx)
	go sweepSessions(ctx, st, sessionSweepInterval)

	accounts := account.New(st, cfg.SessionTTL)
	h := api.NewHandler(cfg, accounts, st, registry, q, arts)

	// No write timeout: event streams stay open for the length of a job.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h.Routes(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("avatargate listening", "addr", cfg.ListenAddr, "upload_dir", arts.Root(), "concurrency", cfg.Concurrency)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case serveErr = <-errCh:
		slog.Error("server error", "error", serveErr)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	q.Wait()
	return serveErr
}

// sweepSessions deletes expired sessions every interval until ctx is done.
func sweepSessions(ctx context.Context, st store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := st.DeleteExpiredSessions(ctx, now)
			if err != nil {
				slog.Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired sessions removed", "count", n)
			}
		}
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-revamp/internal/bootstrap"
	"resume-revamp/internal/shared/config"
	"resume-revamp/internal/shared/server"
	"resume-revamp/internal/shared/storage/db"
	"resume-revamp/internal/shared/telemetry"
)

func main() {
	defer telemetry.Sync()
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		telemetry.Error("api.bootstrap_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if app.DB != nil {
		if err := db.RunMigrations(ctx, app.DB); err != nil {
			telemetry.Error("api.migrations_failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}

	addr := server.Addr(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	telemetry.Info("api.listening", map[string]any{"addr": addr, "env": cfg.Env, "llm_provider": cfg.LLMProvider})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		telemetry.Error("api.server_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

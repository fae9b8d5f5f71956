package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dms-backend/internal/bootstrap"
	"dms-backend/internal/shared/config"
	"dms-backend/internal/shared/server"
	"dms-backend/internal/shared/telemetry"
)

const shutdownGrace = 15 * time.Second

func main() {
	if err := run(config.Load()); err != nil {
		telemetry.Error("server.failed", map[string]any{"err": err})
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	app, err := bootstrap.Build(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		telemetry.Info("server.listening", map[string]any{"addr": srv.Addr, "env": cfg.Env})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		telemetry.Info("server.shutting_down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

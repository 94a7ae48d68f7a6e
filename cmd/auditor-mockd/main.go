// Command auditor-mockd runs the in-memory mock AUDITOR server standalone,
// for local smoke testing and for driving scenarios that need a real
// socket (e.g. a connection-refused test against a stopped listener).
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"auditor/internal/mockserver"
	"auditor/internal/platform/config"
	"auditor/internal/platform/logger"
)

func main() {
	logger.Init(logger.FromEnv())
	l := logger.Named("auditor-mockd")

	cfg := config.New().Prefix("MOCKD_")
	addr := cfg.MayString("ADDR", ":8089")

	srv := &http.Server{
		Addr:              addr,
		Handler:           mockserver.New(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		l.Info().Str("addr", addr).Msg("auditor-mockd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("auditor-mockd failed")
		}
	}()

	<-ctx.Done()
	l.Info().Msg("auditor-mockd shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("error during shutdown")
	}
}

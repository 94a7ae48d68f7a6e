// Command auditor-agent is a long-running daemon that starts the AUDITOR
// client facade and keeps it running until signalled to stop.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auditor/internal/client"
	"auditor/internal/platform/config"
	"auditor/internal/platform/logger"
)

func main() {
	logger.Init(logger.FromEnv())
	l := logger.Named("auditor-agent")

	cfg := config.New().Prefix("AUDITOR_")

	var (
		fHost = flag.String("host", cfg.MustString("HOST"), "AUDITOR server host")
		fPort = flag.Int("port", cfg.MustInt("PORT"), "AUDITOR server port")
	)
	flag.Parse()

	useTLS := cfg.MayBool("USE_TLS", false)

	c, err := client.New(client.Config{
		Host:             *fHost,
		Port:             *fPort,
		Timeout:          cfg.MayDuration("TIMEOUT", 0),
		Retries:          cfg.MayInt("RETRIES", 0),
		NumWorkers:       cfg.MayInt("NUM_WORKERS", 0),
		DelayBeforeRetry: cfg.MayDuration("DELAY_BEFORE_RETRY", 0),
		DBPath:           cfg.MayString("DB_PATH", ""),
		TLS: client.TLSOptions{
			Enabled:        useTLS,
			CACertPath:     cfg.MayString("CA_CERT_PATH", ""),
			ClientCertPath: cfg.MayString("CLIENT_CERT_PATH", ""),
			ClientKeyPath:  cfg.MayString("CLIENT_KEY_PATH", ""),
		},
	})
	if err != nil {
		l.Fatal().Err(err).Msg("failed to construct client")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		l.Fatal().Err(err).Msg("failed to start client")
	}
	l.Info().Str("host", *fHost).Int("port", *fPort).Msg("auditor-agent started")

	<-ctx.Done()
	l.Info().Msg("auditor-agent shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.MayDuration("SHUTDOWN_TIMEOUT", 10*time.Second))
	defer stopCancel()
	if err := c.Stop(stopCtx); err != nil {
		l.Error().Err(err).Msg("error during shutdown")
	}
}

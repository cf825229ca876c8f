package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/api"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/app"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/config"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/pkg/version"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	l := log.WithFields(log.Fields{
		"package": "main",
		"func":    "main",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, cleanup, err := app.Build(ctx, cfg)
	if err != nil {
		l.Fatal(err)
	}
	defer cleanup()

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewServer(ledger, api.Options{
			JWTSecret:      cfg.JWTSecret,
			AllowedOrigins: cfg.CORSAllowedOrigins,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Warnf("shutdown: %v", err)
		}
	}()

	l.Infof("teneo-tax-ledger %s listening on port %s", version.GetVersionString(), cfg.Port)
	if cfg.JWTSecret == "" {
		l.Warn("JWT_SECRET is not set, the API is unauthenticated")
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Fatal(err)
	}
}

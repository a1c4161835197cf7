package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Cypherspark/reminder-bot/internal/config"
	"github.com/Cypherspark/reminder-bot/internal/core"
	dbpkg "github.com/Cypherspark/reminder-bot/internal/db"
	httpapi "github.com/Cypherspark/reminder-bot/internal/http"
	"github.com/Cypherspark/reminder-bot/internal/logging"
	"github.com/Cypherspark/reminder-bot/internal/metrics"
)

func main() {
	var exitCode int
	defer func() {
		os.Exit(exitCode)
	}()

	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Error().Err(err).Msg("config")
		exitCode = 1
		return
	}
	log := logging.New(cfg.LogLevel, cfg.LogConsole, os.Stdout).With().Str("component", "api").Logger()
	if len(cfg.DiscordPublicKey) == 0 {
		log.Warn().Msg("discord_public_key not set; every interaction will be refused")
	}

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---- Store ----
	store, pool, closeStore, err := dbpkg.Open(rootCtx, cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
		exitCode = 1
		return
	}
	defer closeStore()

	if pool != nil {
		stop := make(chan struct{})
		defer close(stop)
		metrics.MustRegister()
		go metrics.NewPGXPoolStats(pool).Start(15*time.Second, stop)
	}

	// ---- HTTP server ----
	server := newHTTPServer(cfg, store, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("driver", cfg.StoreDriver).Msg("HTTP listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ---- Graceful shutdown ----
	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("server")
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown")
	}
}

// newHTTPServer wires the lifecycle service and interaction router onto store.
func newHTTPServer(cfg config.Config, store core.Store, log zerolog.Logger) *http.Server {
	svc := core.NewService(store, core.Options{
		MaxPendingPerUser: cfg.MaxPendingPerUser,
		ListLimit:         cfg.ListLimit,
		StoreTimeout:      cfg.StoreTimeout,
	})
	srv := httpapi.NewServer(svc, store, cfg.DiscordPublicKey, log)
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Cypherspark/reminder-bot/internal/config"
	"github.com/Cypherspark/reminder-bot/internal/core"
	dbpkg "github.com/Cypherspark/reminder-bot/internal/db"
	httpapi "github.com/Cypherspark/reminder-bot/internal/http"
	"github.com/Cypherspark/reminder-bot/internal/logging"
	"github.com/Cypherspark/reminder-bot/internal/metrics"
	"github.com/Cypherspark/reminder-bot/internal/notifier"
	wpkg "github.com/Cypherspark/reminder-bot/internal/worker"
)

func main() {
	var exitCode int
	defer func() {
		os.Exit(exitCode)
	}()

	once := flag.Bool("once", false, "run a single dispatch and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Error().Err(err).Msg("config")
		exitCode = 1
		return
	}
	log := logging.New(cfg.LogLevel, cfg.LogConsole, os.Stdout).With().Str("component", "worker").Logger()

	// ---- Context / signals ----
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

	// ---- Notifier ----
	var n notifier.Notifier
	if cfg.DiscordToken != "" {
		d, err := notifier.NewDiscord(cfg.DiscordToken, cfg.NotifyTimeout)
		if err != nil {
			log.Error().Err(err).Msg("discord notifier")
			exitCode = 1
			return
		}
		n = d
	} else {
		log.Warn().Msg("discord_token not set; reminders are logged, not sent")
		n = notifier.NewDummy(log)
	}

	d := wpkg.New(store, n, log, wpkg.Options{
		BatchSize:    cfg.DispatchBatch,
		Concurrency:  cfg.DispatchConcurrency,
		Lookback:     cfg.DispatchLookback,
		NotifyQPS:    cfg.NotifyQPS,
		NotifyBurst:  cfg.NotifyBurst,
		SendTimeout:  cfg.NotifyTimeout,
		StoreTimeout: cfg.StoreTimeout,
	})

	if *once {
		if err := dispatch(rootCtx, d, log); err != nil {
			exitCode = 1
		}
		return
	}

	// ---- Healthz / metrics ----
	health := &http.Server{Addr: cfg.HealthAddr, Handler: healthRouter(store), ReadTimeout: 5 * time.Second}
	go func() {
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server")
		}
	}()
	defer func() {
		ctx, c := context.WithTimeout(context.Background(), 2*time.Second)
		defer c()
		_ = health.Shutdown(ctx)
	}()

	if pool != nil {
		stop := make(chan struct{})
		defer close(stop)
		go metrics.NewPGXPoolStats(pool).Start(15*time.Second, stop)
	}

	// ---- Schedule ----
	c, err := newScheduler(rootCtx, cfg.DispatchSchedule, d, log)
	if err != nil {
		log.Error().Err(err).Str("schedule", cfg.DispatchSchedule).Msg("invalid dispatch schedule")
		exitCode = 1
		return
	}
	c.Start()
	log.Info().Str("schedule", cfg.DispatchSchedule).Str("health_addr", cfg.HealthAddr).Msg("dispatcher started")

	<-rootCtx.Done()
	// Wait for an in-flight run; its sends observe the cancelled context.
	<-c.Stop().Done()
	log.Info().Msg("dispatcher stopped")
}

func healthRouter(store core.Store) http.Handler {
	r := chi.NewRouter()
	httpapi.MountHealth(r, store)
	httpapi.MountMetrics(r)
	return r
}

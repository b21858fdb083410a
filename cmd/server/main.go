package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/thabo-nyembe/collabsync/internal/adapters/http"
	wssignal "github.com/thabo-nyembe/collabsync/internal/adapters/signal"
	"github.com/thabo-nyembe/collabsync/internal/app"
	"github.com/thabo-nyembe/collabsync/internal/auth"
	"github.com/thabo-nyembe/collabsync/internal/config"
	"github.com/thabo-nyembe/collabsync/internal/core"
	"github.com/thabo-nyembe/collabsync/internal/metrics"
	"github.com/thabo-nyembe/collabsync/internal/snapshot"
)

func main() {
	ctx, cancel := signalContext()
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return
	}

	obs := metrics.NewObserver()
	snapshots := snapshot.New(cfg.RedisAddress)
	rooms := core.NewRoomManager(core.Observers{obs, snapshots})
	registry := app.NewRegistry()
	orch := app.NewOrchestrator(registry, rooms, snapshots, cfg.TypingTTL)

	var verifier *auth.Verifier
	if cfg.Secret != "" {
		verifier = auth.NewVerifier(cfg.Secret)
	} else {
		log.Warn().Msg("no secret configured, accepting inline identities")
	}

	ctl := wssignal.NewController(orch, verifier, cfg.ReadLimit, cfg.PingPeriod)

	go orch.RunTypingSweeper(ctx, time.Second)
	go snapshots.Run(ctx, cfg.SnapshotInterval, rooms)

	r := router.SetupRouter(ctx, cfg, ctl, rooms)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("collabsync server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

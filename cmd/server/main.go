package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Tetris/internal/adapters/http"
	"github.com/dkeye/Tetris/internal/adapters/leaderboard"
	wssignal "github.com/dkeye/Tetris/internal/adapters/signal"
	"github.com/dkeye/Tetris/internal/app"
	"github.com/dkeye/Tetris/internal/app/orch"
	"github.com/dkeye/Tetris/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.ApplyLogging()

	store, err := leaderboard.Open(cfg.Leaderboard.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open leaderboard")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("close leaderboard")
		}
	}()

	tracker := app.NewReconnectionTracker(cfg.Reconnect.Window)
	manager := app.NewRoomManager(app.ManagerConfig{
		MaxPlayers:     cfg.Room.MaxPlayers,
		SequenceLength: cfg.Game.SequenceLength,
		SinkTimeout:    cfg.Leaderboard.Timeout,
	}, tracker, store)

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    manager,
		Policy:   app.NewDropPolicy(cfg.Room.MaxDrops),
	}
	loop := app.NewGameLoop(manager, o, cfg.Game.TickInterval, cfg.Game.SweepInterval)

	ctrl := wssignal.NewSignalWSController(o, wssignal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		SendBuffer:   cfg.Room.SendBuffer,
		MaxChatRunes: cfg.Chat.MaxLength,
		ChatLimit:    cfg.Chat.Limit,
		ChatInterval: cfg.Chat.Interval,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Rooms:       manager,
		Signal:      ctrl,
		Leaderboard: store,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Tetris server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return loop.RunSweep(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("Server exited gracefully")
}

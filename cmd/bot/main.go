// Package main is the entry point for the Crimson City bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"crimson-city-bot/internal/bot"
	"crimson-city-bot/internal/config"
	"crimson-city-bot/internal/handler"
	"crimson-city-bot/internal/i18n"
	"crimson-city-bot/internal/pkg/db"
	"crimson-city-bot/internal/repository"
	"crimson-city-bot/internal/service"
	"crimson-city-bot/internal/session"
	"crimson-city-bot/internal/world"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(&cfg.Log)

	log.Info().Str("storage", cfg.Storage.Driver).Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Bot exited with error")
	}
	log.Info().Msg("Bot stopped gracefully")
}

func setupLogging(cfg *config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	graph, err := world.LoadFile(cfg.World.Path)
	if err != nil {
		return fmt.Errorf("failed to load world: %w", err)
	}
	log.Info().Strs("locations", graph.LocationIDs()).Str("start", graph.Start()).Msg("World loaded")

	tr, err := i18n.New()
	if err != nil {
		return fmt.Errorf("failed to load locales: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg, graph.Start())
	if err != nil {
		return err
	}
	defer closeStore()

	sessions := session.NewStore()
	sweeper, err := session.NewSweeper(sessions, cfg.Session.SweepSchedule, cfg.Session.IdleTTL)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	telegramBot, err := bot.New(cfg)
	if err != nil {
		return err
	}

	router := handler.NewRouter(
		service.NewPlayerService(store, graph, cfg.Admin.ID),
		service.NewAdminService(store, graph, cfg.Admin.ID, cfg.Broadcast.Concurrency),
		sessions,
		tr,
		telegramBot,
	)
	telegramBot.Register(router)

	log.Info().
		Int64("admin_id", cfg.Admin.ID).
		Strs("admin_commands", router.AdminCommands()).
		Msg("Handlers registered")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return telegramBot.Run(gctx)
	})
	return g.Wait()
}

// openStore builds the configured player store and returns its cleanup.
func openStore(ctx context.Context, cfg *config.Config, start string) (repository.PlayerStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx, pool.Pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		return repository.NewPostgresPlayerStore(pool.Pool, start), pool.Close, nil

	case config.DriverSQLite:
		conn, err := db.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLitePlayerStore(conn, start), func() { db.CloseSQLite(conn) }, nil

	case config.DriverMemory:
		log.Warn().Msg("Using in-memory player store; players are lost on restart")
		return repository.NewMemoryPlayerStore(start), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

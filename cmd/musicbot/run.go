package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sonroyaalmerol/kumaswarm/internal/config"
	"github.com/sonroyaalmerol/kumaswarm/internal/handlers"
	"github.com/sonroyaalmerol/kumaswarm/internal/logging"
	"github.com/sonroyaalmerol/kumaswarm/internal/registry"
	"github.com/sonroyaalmerol/kumaswarm/internal/repository"
	"github.com/sonroyaalmerol/kumaswarm/internal/status"
)

func newRunCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Log in the local identities and serve commands until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(g)
		},
	}
}

func loadConfig(g *globalOpts) (*config.Config, error) {
	var files []string
	if g.envFile != "" {
		files = append(files, g.envFile)
	}
	cfg, err := config.LoadConfig(files...)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, nil
}

func openRegistry(cfg *config.Config) (registry.Registry, error) {
	if cfg.RedisURL == "" {
		return registry.NewMemory(), nil
	}
	return registry.NewRedis(cfg.RedisURL, cfg.RedisPrefix, cfg.SessionTTL)
}

func runBot(g *globalOpts) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	log, closer, err := logging.New(cfg.LogLevel, g.logFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	db, err := repository.OpenDB(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	repo := repository.NewRepo(db)
	defer repo.Close()

	reg, err := openRegistry(cfg)
	if err != nil {
		return fmt.Errorf("session registry: %w", err)
	}
	defer reg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := handlers.NewBot(ctx, cfg, repo, reg, log)
	if err != nil {
		return err
	}
	if cfg.StatusAddr != "" {
		go serveStatus(ctx, cfg.StatusAddr, bot, reg, log)
	}

	log.Info().Int("pool", len(cfg.BotTokens)).Ints("local", cfg.Local()).
		Bool("shared_registry", cfg.RedisURL != "").Msg("starting")
	if err := bot.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("shut down")
	return nil
}

func serveStatus(ctx context.Context, addr string, bot *handlers.Bot, reg registry.Registry, log zerolog.Logger) {
	err := status.Start(ctx, status.StartOpts{
		Addr:     addr,
		Pool:     bot.Pool(),
		Sessions: reg,
		Log:      log,
	})
	if err != nil {
		log.Error().Err(err).Msg("status server stopped")
	}
}

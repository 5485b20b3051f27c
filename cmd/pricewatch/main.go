package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	appcontainer "pricewatch/internal/application/container"
	"pricewatch/internal/application/usecase/monitor"
	"pricewatch/internal/domain"
	"pricewatch/internal/infrastructure/config"
	infracontainer "pricewatch/internal/infrastructure/container"
	"pricewatch/internal/infrastructure/logger"
	"pricewatch/internal/interfaces/console"
)

func main() {
	logger.Setup("info")

	configPath := flag.String("config", "configs/config.toml", "path to config.toml or config.yaml")
	noInput := flag.Bool("no-input", false, "do not read commands from stdin")
	var alertFlags alertList
	flag.Var(&alertFlags, "alert-on", "alert to add, for example BTCUSDT>51000[,persistent][,sound][,flash]")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	infra, err := infracontainer.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init infrastructure failed")
	}
	defer infra.Close()

	sink := console.NewSink()

	seed := make([]domain.Instrument, 0, len(cfg.Instruments.List))
	for _, s := range cfg.Instruments.List {
		seed = append(seed, domain.NewInstrument(s))
	}

	app, err := appcontainer.New(ctx, appcontainer.Deps{
		Repo:       infra.Repository(),
		Feed:       infra.Feed(),
		Snapshots:  infra.Snapshots(),
		Notifier:   infra.Notifier(),
		Recorder:   infra.Recorder(),
		History:    infra.History(),
		Sink:       sink,
		Seed:       seed,
		SeedActive: domain.NewInstrument(cfg.Instruments.Active),
		Options: monitor.Options{
			ThrottleInterval: cfg.ThrottleInterval(),
			PollInterval:     cfg.PollInterval(),
			ChangeInterval:   cfg.ChangeRefresh(),
			ClosesInterval:   cfg.ClosesRefresh(),
			ClosesTimeframe:  cfg.Feed.ClosesInterval,
			ClosesCount:      cfg.Feed.ClosesCount,
			EventBuffer:      cfg.App.EventBuffer,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("restore state failed")
	}

	if err := alertFlags.register(ctx, app.AlertEngine()); err != nil {
		log.Fatal().Err(err).Msg("register -alert-on alerts failed")
	}

	sup := app.Supervisor()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Monitor().Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.Close()
	})
	if !*noInput {
		g.Go(func() error {
			err := console.NewCommands(sup, sink).Run(gctx, os.Stdin)
			if errors.Is(err, console.ErrQuit) {
				cancel()
				return nil
			}
			return err
		})
	}

	if err := sup.Start(ctx, ""); err != nil {
		log.Fatal().Err(err).Msg("start supervisor failed")
	}

	log.Info().
		Str("config", *configPath).
		Strs("instruments", toStrings(sup.Session().Items())).
		Int("alerts", len(app.AlertEngine().List())).
		Str("storage", cfg.Storage.Driver).
		Bool("redis", cfg.Storage.Redis.Enabled).
		Dur("poll_interval", cfg.PollInterval()).
		Msg("pricewatch started")

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("pricewatch exited")
		return
	}
	log.Info().Msg("pricewatch stopped")
}

func toStrings(items []domain.Instrument) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.String()
	}
	return out
}

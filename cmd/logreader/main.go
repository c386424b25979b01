package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/akave-ai/logreader/internal/clock"
	"github.com/akave-ai/logreader/internal/config"
	"github.com/akave-ai/logreader/internal/discovery"
	"github.com/akave-ai/logreader/internal/infrastructure/sinks"
	"github.com/akave-ai/logreader/internal/logger"
	"github.com/akave-ai/logreader/internal/normalize"
	"github.com/akave-ai/logreader/internal/reader"
	"github.com/akave-ai/logreader/internal/registry"
	"github.com/akave-ai/logreader/internal/scheduler"
	"github.com/akave-ai/logreader/internal/server"
	"github.com/akave-ai/logreader/internal/tablestore"
	_ "github.com/akave-ai/logreader/internal/tablestore/azure"
	"github.com/akave-ai/logreader/internal/tablestore/postgres"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is fine outside local development.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	loggerService := logger.NewLoggerService(cfg.Observability)
	defer loggerService.Shutdown()
	logg := logger.New(cfg.Observability).With().Str("version", version).Logger()

	tablestore.GlobalRegistry.Register(postgres.NewOpener(
		cfg.Database.Schema,
		cfg.Database.MaxConns,
		logger.NewPgxTracer(logg, cfg.Database.LogLevel, loggerService),
	))

	clk := clock.Real()
	out, err := sinks.GlobalRegistry.Build(cfg.Sink, sinks.Deps{Logger: logg, Clock: clk})
	if err != nil {
		logg.Fatal().Err(err).Strs("kinds", cfg.Sink.Kinds).Msg("failed to build sink")
	}
	defer func() {
		if err := out.Close(); err != nil {
			logg.Warn().Err(err).Msg("sink close")
		}
	}()

	accounts := cfg.Reader.Accounts()
	if len(accounts) == 0 {
		logg.Warn().Msg("no storage accounts configured; the job will idle")
	}

	reg := registry.New()
	rdr := reader.New(out, normalize.Normalizer{ParseContext: cfg.Reader.ParseContextAsJSON}, reader.Options{
		BatchSize:     cfg.Reader.BatchSize,
		MaxIterations: cfg.Reader.MaxIterations,
		SlowCount:     cfg.Reader.SlowCount,
		SlowElapsed:   cfg.Reader.SlowElapsed,
		Clock:         clk,
		Logger:        logg,
	})
	disc := discovery.New(tablestore.GlobalRegistry, reg, cfg.Reader.ExcludeTables, clk, logg)
	defer func() {
		if err := disc.Close(); err != nil {
			logg.Warn().Err(err).Msg("close storage accounts")
		}
	}()

	sched := scheduler.New(reg, rdr, disc, scheduler.Options{
		Interval:         cfg.Reader.ScanInterval,
		Concurrency:      cfg.Reader.Concurrency,
		HealthStaleAfter: cfg.Reader.HealthStaleAfter,
		Accounts:         accounts,
		Clock:            clk,
		Logger:           logg,
		NewRelic:         loggerService.Application(),
	})

	srv := server.New(cfg, server.Deps{
		Registry: reg,
		Replayer: rdr,
		Health:   sched,
		Sinks:    sinks.GlobalRegistry,
		Logger:   logg,
		Version:  version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logg.Info().
		Str("env", cfg.Primary.Env).
		Strs("sinks", cfg.Sink.Kinds).
		Int("accounts", len(accounts)).
		Dur("interval", cfg.Reader.ScanInterval).
		Msg("logreader starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(srv.Start)

	<-gctx.Done()
	logg.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Warn().Err(err).Msg("http shutdown")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error().Err(err).Msg("logreader exited with error")
	}
}

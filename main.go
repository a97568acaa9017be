package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Evan-Kim2028/duckdb-pipe/config"
	"github.com/Evan-Kim2028/duckdb-pipe/dataset"
	"github.com/Evan-Kim2028/duckdb-pipe/logging"
	"github.com/Evan-Kim2028/duckdb-pipe/metrics"
	"github.com/Evan-Kim2028/duckdb-pipe/orchestrator"
	"github.com/Evan-Kim2028/duckdb-pipe/pipeline"
	"github.com/Evan-Kim2028/duckdb-pipe/server"
	"github.com/Evan-Kim2028/duckdb-pipe/source"
	"github.com/Evan-Kim2028/duckdb-pipe/source/evm"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	once := flag.Bool("once", false, "Run a single cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting data pipeline",
		zap.String("service", cfg.Service.Name),
		zap.String("pipeline", cfg.Pipeline.Name),
		zap.String("db_path", cfg.Pipeline.DBPath),
		zap.String("dataset", cfg.Pipeline.Dataset()),
		zap.Duration("interval", cfg.Service.Interval()))

	ctx, released := shutdownContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-released
		logger.Info("shutdown requested, finishing current cycle; signal again to exit immediately")
	}()

	var fetcher source.Fetcher = source.Static{}
	if len(cfg.Source.Contracts) == 0 {
		logger.Warn("no contract events configured, cycles will load nothing")
	} else {
		src, err := evm.Dial(ctx, cfg.Source, evm.CursorPath(cfg.Pipeline.PipelinesDir, cfg.Pipeline.Name), logger)
		if err != nil {
			logger.Fatal("failed to create event source", zap.Error(err))
		}
		defer src.Close()
		logger.Info("event source ready", zap.Strings("events", src.Events()))
		fetcher = src
	}

	m := metrics.New(metrics.Config{Enabled: true})
	mapping := dataset.DefaultColumnMapping.With(cfg.Pipeline.ColumnMapping)

	cycle := &orchestrator.Cycle{
		DBPath:   cfg.Pipeline.DBPath,
		Fetcher:  fetcher,
		Channels: pipeline.NewFactory(cfg.Pipeline, logger),
		Loader:   pipeline.NewLoader(mapping, logger),
		Metrics:  m,
		Logger:   logger,
	}
	scheduler := &orchestrator.Scheduler{
		Cycle:    cycle,
		Interval: cfg.Service.Interval(),
		Logger:   logger,
	}

	if cfg.Service.HealthAddr != "" {
		health := server.NewHealthServer(cfg.Service.HealthAddr, cfg.Service.Name, m.Handler(), logger)
		scheduler.OnCycle = health.UpdateStats
		go func() {
			if err := health.Start(); err != nil {
				logger.Error("health server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := health.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown failed", zap.Error(err))
			}
		}()
	}

	if *once {
		if _, err := scheduler.RunOnce(ctx); err != nil {
			logger.Fatal("pipeline cycle failed", zap.Error(err))
		}
		return
	}

	if err := scheduler.Run(ctx); err != nil {
		logger.Fatal("pipeline stopped", zap.Error(err))
	}
	logger.Info("shutting down gracefully")
}

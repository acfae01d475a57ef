package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/daybook-dev/daybook/internal/classify"
	"github.com/daybook-dev/daybook/internal/commands"
	"github.com/daybook-dev/daybook/internal/config"
	"github.com/daybook-dev/daybook/internal/engine"
	"github.com/daybook-dev/daybook/internal/importer"
	"github.com/daybook-dev/daybook/internal/logger"
	"github.com/daybook-dev/daybook/internal/match"
	"github.com/daybook-dev/daybook/internal/normalize"
	"github.com/daybook-dev/daybook/internal/providers"
	"github.com/daybook-dev/daybook/internal/scheduler"
	"github.com/daybook-dev/daybook/internal/server"
	"github.com/daybook-dev/daybook/internal/store"
)

func main() {
	// .env is optional; explicit environment always wins.
	_ = godotenv.Load()

	configPath := flag.String("config", envOr("DAYBOOK_CONFIG", "daybook.yaml"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log.Info().Str("config", *configPath).Msg("Starting daybookd")

	st, err := store.Open(filepath.Join(cfg.DataDir, cfg.Database.Path), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()

	catalogue, err := providers.Load(cfg.DataDir)
	if err != nil {
		log.Warn().Err(err).Msg("Provider catalogue not found, using defaults")
		catalogue = providers.NewService(providers.Defaults())
	}

	feeds := &commands.CSVFeedSource{DataDir: cfg.DataDir, Registry: importer.DefaultRegistry()}
	eng := engine.New(st, catalogue, feeds, engine.Config{
		Match: match.Config{
			Window:           time.Duration(cfg.Matching.WindowHours) * time.Hour,
			SettlementWindow: time.Duration(cfg.Matching.SettlementWindowHours) * time.Hour,
		},
		Classify: classify.Config{
			HighVariancePct:  cfg.Exception.HighVariancePct,
			PendingMediumAge: time.Duration(cfg.Exception.PendingMediumAge) * time.Hour,
		},
		NormalizePolicy: normalize.Policy(cfg.Normalize.Policy),
		DataDir:         cfg.DataDir,
	}, log)

	sched := scheduler.New(log)
	if cfg.Schedule.Nightly != "off" {
		job := &engine.NightlyJob{Engine: eng, Log: log}
		if err := sched.AddJob(cfg.Schedule.Nightly, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Schedule.Nightly).Msg("Failed to register nightly job")
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:   cfg.Server.Port,
		Log:    log,
		Engine: eng,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().Int("port", cfg.Server.Port).Msg("daybookd started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("daybookd stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

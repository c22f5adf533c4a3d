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

	"github.com/joho/godotenv"

	"mixsim/adapters/modeljson"
	"mixsim/adapters/postgres"
	"mixsim/adapters/rng"
	"mixsim/api"
	"mixsim/app"
	"mixsim/internal/config"
	"mixsim/internal/engine"
	"mixsim/internal/logger"
	"mixsim/ports"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("MIXSIM_CONFIG"), "path to config file (yaml or json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.Logging, "api")

	source := modeljson.NewFileSource(cfg.Model.SnapshotPath)
	eng := engine.New(rng.NewPCGStreams())

	var repo *postgres.IntervalRepository
	if cfg.Database.Enabled {
		db, err := postgres.Connect(cfg.Database.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer db.Close()
		repo = postgres.NewIntervalRepository(db)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("schema setup failed")
		}
	}

	service := app.NewIntervalService(eng, source, repoOrNil(repo), log)
	server := api.NewServer(service, cfg.Simulation, log)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

// repoOrNil keeps the service's optional dependency a clean nil interface
// when persistence is disabled.
func repoOrNil(repo *postgres.IntervalRepository) ports.IntervalRepository {
	if repo == nil {
		return nil
	}
	return repo
}

// Package main implements oracled, the fair-pricing oracle daemon. It wires
// the chain gateway client, storage, registry and HTTP API together and runs
// them until interrupted.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/nebula-network/oracle_layer/internal/app"
	"github.com/nebula-network/oracle_layer/internal/app/chainclient"
	"github.com/nebula-network/oracle_layer/internal/app/domain/market"
	"github.com/nebula-network/oracle_layer/internal/app/httpapi"
	"github.com/nebula-network/oracle_layer/internal/app/metrics"
	"github.com/nebula-network/oracle_layer/internal/app/storage/postgres"
	"github.com/nebula-network/oracle_layer/internal/config"
	"github.com/nebula-network/oracle_layer/internal/platform/migrations"
	"github.com/nebula-network/oracle_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/oracle.yaml", "Path to configuration file")
	envFile := flag.String("env", "", "Optional .env file to load before reading configuration")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			logger.NewDefault("oracled").WithError(err).Warnf("load env file %s", *envFile)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("oracled").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	log := logger.New(cfg.Logging).WithField("component", "oracled")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores := app.Stores{}
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.WithError(err).Error("open database")
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.WithError(err).Error("ping database")
			os.Exit(1)
		}
		if err := migrations.Apply(ctx, db); err != nil {
			log.WithError(err).Error("apply migrations")
			os.Exit(1)
		}
		stores.Oracle = postgres.New(db)
		log.Info("postgres mirror enabled")
	}

	source, err := chainclient.New(nil, cfg.Gateway.Endpoint, cfg.Gateway.APIKey, log.WithField("component", "chainclient"))
	if err != nil {
		log.WithError(err).Error("configure chain gateway")
		os.Exit(1)
	}

	application, err := app.New(cfg, source, stores, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	tokens := map[string]market.Address{}
	if cfg.Registry.AdminToken != "" {
		tokens[cfg.Registry.AdminToken] = market.NewAddress(cfg.Registry.Admin)
	}

	apiHandler := httpapi.NewHandler(httpapi.Config{App: application, Tokens: tokens})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", metrics.InstrumentHandler(apiHandler))

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("oracle API listening on %s", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	log.Info("oracled stopped")
}

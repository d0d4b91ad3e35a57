package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/events"
	"telemetry-pipeline/internal/handlers"
	"telemetry-pipeline/internal/logging"
	"telemetry-pipeline/internal/pipeline"
	"telemetry-pipeline/internal/runlog"
	"telemetry-pipeline/internal/scheduler"
	"telemetry-pipeline/internal/warehouse"
)

type closableDestination interface {
	warehouse.Destination
	Close() error
}

func newDestination(ctx context.Context, cfg config.WarehouseConfig, logger logrus.FieldLogger) (closableDestination, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		return warehouse.OpenPostgres(cfg.DSN, logger)
	default:
		return warehouse.NewBigQueryDestination(ctx, cfg.Project, logger)
	}
}

func main() {
	cfg, err := config.Load(config.GetConfigPath())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Logging)
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	dest, err := newDestination(ctx, cfg.Warehouse, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize %s destination: %v", cfg.Warehouse.Driver, err)
	}
	defer dest.Close()

	var observers []pipeline.Observer
	var runs handlers.RunLister

	if cfg.RunLog.Enabled {
		store, err := runlog.Open(cfg.RunLog.Driver, cfg.RunLog.DSN, logger)
		if err != nil {
			logger.Fatalf("Failed to open run log: %v", err)
		}
		defer store.Close()
		observers = append(observers, store)
		runs = store
		logger.WithField("driver", cfg.RunLog.Driver).Info("Run log enabled")
	}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Timeout(10*time.Second),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			logger.Fatalf("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)
		}
		defer nc.Drain()

		js, err := nc.JetStream()
		if err != nil {
			logger.Fatalf("Failed to create JetStream context: %v", err)
		}
		observers = append(observers, events.NewPublisher(js, cfg.NATS.Stream, cfg.NATS.Subject, logger))
		logger.WithField("url", cfg.NATS.URL).Info("Run events enabled")
	}

	settings := pipeline.SettingsFromConfig(cfg)
	p := pipeline.NewFromSettings(settings, dest, logger, observers...)

	if cfg.Scheduler.Cron != "" {
		sched, err := scheduler.New(cfg.Scheduler.Cron, p, logger)
		if err != nil {
			logger.Fatalf("Failed to create scheduler: %v", err)
		}
		sched.Start()
		defer func() {
			<-sched.Stop().Done()
		}()
	}

	if strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	handlers.NewAPI(p, runs, logger).RegisterRoutes(router)
	handlers.RegisterDocs(router)

	srv := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     router,
		ReadTimeout: 5 * time.Second,
		// A run may take as long as the API call plus the warehouse insert.
		WriteTimeout: 2*cfg.Tracking.Timeout + time.Minute,
		IdleTimeout:  15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":      srv.Addr,
			"warehouse": cfg.Warehouse.Driver,
			"table":     settings.Table.String(),
		}).Info("Starting pipeline trigger server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down server")
	case err := <-errCh:
		logger.WithError(err).Error("Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server exited")
}

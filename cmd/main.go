package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stockline/stockline_service/internal/api/routes"
	"github.com/stockline/stockline_service/internal/infrastructure/config"
	"github.com/stockline/stockline_service/internal/infrastructure/di"
	"github.com/stockline/stockline_service/pkg/graceful"
	"github.com/stockline/stockline_service/pkg/logger"
	"github.com/stockline/stockline_service/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry tracing
	tracingShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		Version:      di.Version,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Build dependency injection container
	container, err := di.NewContainer(cfg, log)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}

	if err := container.Start(ctx); err != nil {
		log.Fatal("Failed to start background services", "error", err)
	}

	router := routes.SetupRoutes(container)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := graceful.NewShutdownManager(server, graceful.DefaultTimeout, log)
	shutdown.Register("container", graceful.ShutdownFunc(container.Shutdown))
	shutdown.Register("tracing", graceful.ShutdownFunc(tracingShutdown))

	go func() {
		log.Info("Starting server", "addr", server.Addr, "environment", cfg.Environment, "version", di.Version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			stop()
		}
	}()

	shutdown.WaitForShutdown(ctx)
}

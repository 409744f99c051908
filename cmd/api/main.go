package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pkgvalidator "github.com/johnquangdev/timeline-assistant/pkg/validator"

	"github.com/johnquangdev/timeline-assistant/internal/adapter/handler"
	"github.com/johnquangdev/timeline-assistant/internal/app"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// @title           Timeline Assistant API
// @version         1.0
// @description     Records screen activity chunks, analyzes them in batches and serves the resulting daily timeline
// @BasePath        /v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the API token. Only required when SERVER_API_TOKEN is set.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize dependencies
	logger.Info("🔧 Initializing dependencies...")
	container, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer container.Close()

	// Initialize Echo instance
	e := echo.New()

	// Register validator for request validation
	e.Validator = pkgvalidator.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = false

	// Custom logger format
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))

	// Recover from panics
	e.Use(middleware.Recover())

	// CORS middleware
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	if cfg.Server.APIToken == "" {
		logger.Warn("⚠️ SERVER_API_TOKEN is not set; /v1 is open to anyone who can reach the server")
	}

	// Initialize handlers
	logger.Info("🚀 Initializing handlers...")
	chunkHandler := handler.NewChunkHandler(container.Chunks, logger)
	timelineHandler := handler.NewTimelineHandler(container.Timeline, container.Media, logger)
	analysisHandler := handler.NewAnalysisHandler(
		container.Scheduler,
		container.Reprocessor,
		container.Runs,
		container.Settings,
		container.Provider,
		container.Location,
		logger,
	)

	// Setup router with handlers
	logger.Info("🛣️ Setting up routes...")
	router := handler.NewRouter(cfg, chunkHandler, timelineHandler, analysisHandler)
	router.Setup(e)

	// Start the analysis loop
	if err := container.Scheduler.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	logger.Info("⏱️ Scheduler started", zap.Duration("interval", cfg.Analysis.Interval))

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		logger.Info("🚀 Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
		)
		logger.Info(fmt.Sprintf("🔗 Health check: http://%s/health", addr))

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("❌ Server forced to shutdown", zap.Error(err))
	}
	if err := container.Scheduler.Stop(ctx); err != nil {
		logger.Error("❌ Scheduler did not stop cleanly", zap.Error(err))
	}

	logger.Info("✅ Server stopped gracefully")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Server.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

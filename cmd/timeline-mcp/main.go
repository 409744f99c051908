package main

import (
	"log"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/internal/adapter/mcpserver"
	"github.com/johnquangdev/timeline-assistant/internal/app"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

const version = "1.0.0"

// Serves the timeline tools over stdio. The analysis loop is not started
// here; the API process owns it.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// zap production logs go to stderr, leaving stdout to the protocol
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	container, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer container.Close()

	tools := mcpserver.New(container.Timeline, container.Reprocessor, container.Provider, logger.Named("mcp"))

	logger.Info("🚀 Serving MCP tools over stdio", zap.String("version", version))
	if err := server.ServeStdio(tools.MCPServer(version)); err != nil {
		logger.Error("❌ MCP server stopped", zap.Error(err))
	}
}

package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/johnquangdev/timeline-assistant/pkg/config"
	"github.com/johnquangdev/timeline-assistant/pkg/middleware"
)

// Router holds all handlers
type Router struct {
	cfg             *config.Config
	chunkHandler    *Chunk
	timelineHandler *Timeline
	analysisHandler *Analysis
}

// NewRouter creates a new router with all handlers
func NewRouter(cfg *config.Config, chunkHandler *Chunk, timelineHandler *Timeline, analysisHandler *Analysis) *Router {
	return &Router{
		cfg:             cfg,
		chunkHandler:    chunkHandler,
		timelineHandler: timelineHandler,
		analysisHandler: analysisHandler,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", rt.healthCheck)

	// API v1 group, guarded by the optional API token
	token := ""
	if rt.cfg != nil {
		token = rt.cfg.Server.APIToken
	}
	v1 := e.Group("/v1", middleware.RequireToken(token))

	rt.setupChunkRoutes(v1)
	rt.setupTimelineRoutes(v1)
	rt.setupAnalysisRoutes(v1)
}

// setupChunkRoutes configures capture event routes
func (rt *Router) setupChunkRoutes(g *echo.Group) {
	chunks := g.Group("/chunks")
	if rt.chunkHandler == nil {
		chunks.Any("/*", rt.notImplemented)
		return
	}
	chunks.POST("", rt.chunkHandler.StartChunk)
	chunks.POST("/completed", rt.chunkHandler.RecordChunk)
	chunks.POST("/:id/complete", rt.chunkHandler.CompleteChunk)
	chunks.POST("/:id/fail", rt.chunkHandler.FailChunk)
}

// setupTimelineRoutes configures read routes
func (rt *Router) setupTimelineRoutes(g *echo.Group) {
	if rt.timelineHandler == nil {
		g.Any("/timeline*", rt.notImplemented)
		g.Any("/batches", rt.notImplemented)
		return
	}
	g.GET("/timeline", rt.timelineHandler.GetRange)
	g.GET("/timeline/days/:day", rt.timelineHandler.GetDay)
	g.GET("/timeline/cards/:id/video", rt.timelineHandler.GetCardVideo)
	g.GET("/batches", rt.timelineHandler.ListBatches)
}

// setupAnalysisRoutes configures imperative routes
func (rt *Router) setupAnalysisRoutes(g *echo.Group) {
	if rt.analysisHandler == nil {
		g.Any("/analysis/*", rt.notImplemented)
		g.Any("/reprocess/*", rt.notImplemented)
		g.Any("/settings/*", rt.notImplemented)
		return
	}
	g.POST("/analysis/trigger", rt.analysisHandler.TriggerAnalysis)

	reprocess := g.Group("/reprocess")
	reprocess.POST("/days/:day", rt.analysisHandler.ReprocessDay)
	reprocess.POST("/batches", rt.analysisHandler.ReprocessBatches)
	reprocess.GET("/runs/:id", rt.analysisHandler.GetRun)

	settings := g.Group("/settings")
	settings.GET("/provider", rt.analysisHandler.GetProvider)
	settings.PUT("/provider", rt.analysisHandler.SetProvider)
}

// notImplemented returns 501 Not Implemented response
func (rt *Router) notImplemented(c echo.Context) error {
	return c.JSON(http.StatusNotImplemented, map[string]interface{}{
		"error":   "This endpoint is not yet implemented",
		"path":    c.Request().URL.Path,
		"method":  c.Request().Method,
		"message": "Please initialize the required handler in main.go",
	})
}

// healthCheck returns health status
func (rt *Router) healthCheck(c echo.Context) error {
	env := "development"
	if rt.cfg != nil {
		env = rt.cfg.Server.Environment
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"time":        time.Now().UTC().Format(time.RFC3339),
		"environment": env,
	})
}

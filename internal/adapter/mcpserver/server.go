// Package mcpserver exposes timeline reads and reprocessing as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/internal/adapter/presenter"
	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/domain/repositories"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/reprocess"
	timelineUsecase "github.com/johnquangdev/timeline-assistant/internal/usecase/timeline"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
)

const (
	serverName      = "timeline-assistant"
	maxBatchResults = 200
)

// ProviderReader reports the provider the next batch will use
type ProviderReader interface {
	Active(ctx context.Context) (string, error)
}

// Server holds the services behind the MCP tools
type Server struct {
	timeline    timelineUsecase.Service
	reprocessor reprocess.Service
	providers   ProviderReader
	logger      *zap.Logger
}

// New creates the tool set
func New(timelineService timelineUsecase.Service, reprocessor reprocess.Service, providers ProviderReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		timeline:    timelineService,
		reprocessor: reprocessor,
		providers:   providers,
		logger:      logger,
	}
}

// MCPServer builds an MCP server with every tool registered
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.Register(srv)
	return srv
}

// Register adds the tools to srv
func (s *Server) Register(srv *server.MCPServer) {
	srv.AddTool(mcp.NewTool("timeline_for_day",
		mcp.WithDescription("List the timeline cards of one logical day. Days start at 04:00 local time."),
		mcp.WithString("day", mcp.Required(), mcp.Description("Day as YYYY-MM-DD")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.timelineForDay)

	srv.AddTool(mcp.NewTool("timeline_in_range",
		mcp.WithDescription("List the timeline cards overlapping a time range"),
		mcp.WithString("from", mcp.Required(), mcp.Description("Range start, RFC3339")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Range end, RFC3339")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.timelineInRange)

	srv.AddTool(mcp.NewTool("list_batches",
		mcp.WithDescription("List analysis batches, newest first"),
		mcp.WithString("status",
			mcp.Description("Only batches in this status"),
			mcp.Enum(
				string(entities.BatchStatusPending),
				string(entities.BatchStatusProcessing),
				string(entities.BatchStatusAnalyzed),
				string(entities.BatchStatusFailed),
				string(entities.BatchStatusFailedEmpty),
				string(entities.BatchStatusSkippedShort),
			),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum batches to return"), mcp.Min(1), mcp.Max(maxBatchResults)),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.listBatches)

	srv.AddTool(mcp.NewTool("reprocess_day",
		mcp.WithDescription("Discard the cards of a logical day and analyze its batches again. Blocks until done."),
		mcp.WithString("day", mcp.Required(), mcp.Description("Day as YYYY-MM-DD")),
		mcp.WithDestructiveHintAnnotation(true),
	), s.reprocessDay)

	srv.AddTool(mcp.NewTool("reprocess_batches",
		mcp.WithDescription("Discard the cards covering the given batches and analyze them again. Blocks until done."),
		mcp.WithArray("batch_ids",
			mcp.Required(),
			mcp.Description("Batch IDs"),
			mcp.Items(map[string]any{"type": "string", "format": "uuid"}),
		),
		mcp.WithDestructiveHintAnnotation(true),
	), s.reprocessBatches)

	srv.AddTool(mcp.NewTool("active_provider",
		mcp.WithDescription("Name the analysis provider the next batch will use"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.activeProvider)
}

func (s *Server) timelineForDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	day, err := req.RequireString("day")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cards, err := s.timeline.ForDay(ctx, day)
	if err != nil {
		return s.toolError("timeline_for_day", err), nil
	}
	return jsonResult(map[string]any{
		"day":   day,
		"cards": presenter.ToCardResponses(cards),
	})
}

func (s *Server) timelineInRange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := requireTime(req, "from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := requireTime(req, "to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cards, err := s.timeline.InRange(ctx, from, to)
	if err != nil {
		return s.toolError("timeline_in_range", err), nil
	}
	return jsonResult(map[string]any{
		"from":  from,
		"to":    to,
		"cards": presenter.ToCardResponses(cards),
	})
}

func (s *Server) listBatches(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filters := repositories.BatchFilters{Limit: req.GetInt("limit", 50)}
	if filters.Limit < 1 || filters.Limit > maxBatchResults {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxBatchResults)), nil
	}
	if status := req.GetString("status", ""); status != "" {
		st := entities.BatchStatus(status)
		filters.Status = &st
	}

	batches, total, err := s.timeline.ListBatches(ctx, filters)
	if err != nil {
		return s.toolError("list_batches", err), nil
	}
	return jsonResult(map[string]any{
		"total":   total,
		"batches": presenter.ToBatchResponses(batches),
	})
}

func (s *Server) reprocessDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	day, err := req.RequireString("day")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	progress, messages := s.collect("reprocess_day")
	summary, err := s.reprocessor.ReprocessDay(ctx, day, progress)
	return s.reprocessResult("reprocess_day", summary, *messages, err)
}

func (s *Server) reprocessBatches(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireStringSlice("batch_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(raw) == 0 {
		return mcp.NewToolResultError("batch_ids must not be empty"), nil
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(strings.TrimSpace(r))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid batch id %q", r)), nil
		}
		ids = append(ids, id)
	}

	progress, messages := s.collect("reprocess_batches")
	summary, err := s.reprocessor.ReprocessBatches(ctx, ids, progress)
	return s.reprocessResult("reprocess_batches", summary, *messages, err)
}

func (s *Server) activeProvider(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := s.providers.Active(ctx)
	if err != nil {
		return s.toolError("active_provider", err), nil
	}
	return jsonResult(map[string]string{"provider": name})
}

// collect records progress messages for the tool result and the log
func (s *Server) collect(tool string) (reprocess.ProgressFunc, *[]string) {
	messages := []string{}
	return func(msg string) {
		messages = append(messages, msg)
		s.logger.Info("🔁 "+msg, zap.String("tool", tool))
	}, &messages
}

// reprocessResult reports partial progress alongside a failure
func (s *Server) reprocessResult(tool string, summary *reprocess.Summary, messages []string, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		res := s.toolError(tool, err)
		if len(messages) > 0 {
			res.Content = append(res.Content, mcp.NewTextContent(strings.Join(messages, "\n")))
		}
		return res, nil
	}
	return jsonResult(map[string]any{
		"summary":  summary,
		"progress": messages,
	})
}

// toolError turns a use case error into a tool-level error the model can read
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	var msg string
	switch {
	case stdErrors.Is(err, entities.ErrInvalidDay):
		msg = "day must be formatted as YYYY-MM-DD"
	case stdErrors.Is(err, entities.ErrInvalidTimeRange):
		msg = "to must be after from"
	case stdErrors.Is(err, entities.ErrBatchNotFound):
		msg = err.Error()
	case stdErrors.Is(err, reprocess.ErrNoBatches):
		msg = err.Error()
	case stdErrors.Is(err, ai.ErrNoProvider):
		msg = "no analysis provider is configured: " + err.Error()
	default:
		s.logger.Error("❌ MCP tool failed", zap.String("tool", tool), zap.Error(err))
		msg = "internal error: " + err.Error()
	}
	return mcp.NewToolResultError(msg)
}

func requireTime(req mcp.CallToolRequest, key string) (time.Time, error) {
	raw, err := req.RequireString(key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 timestamp", key)
	}
	return t, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

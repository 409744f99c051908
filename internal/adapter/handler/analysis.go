package handler

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/errors"
	"github.com/johnquangdev/timeline-assistant/internal/adapter/dto/timeline"
	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/domain/repositories"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/reprocess"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/scheduler"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
)

// ProviderSelection reports the provider the orchestrator would use now
type ProviderSelection interface {
	Active(ctx context.Context) (string, error)
}

// Analysis handles imperative operations: trigger, reprocess and provider selection
type Analysis struct {
	scheduler   scheduler.Service
	reprocessor reprocess.Service
	tracker     *reprocess.RunTracker
	settings    repositories.SettingsRepository
	providers   ProviderSelection
	loc         *time.Location
	logger      *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(
	sched scheduler.Service,
	reprocessor reprocess.Service,
	tracker *reprocess.RunTracker,
	settings repositories.SettingsRepository,
	providers ProviderSelection,
	loc *time.Location,
	logger *zap.Logger,
) *Analysis {
	if loc == nil {
		loc = time.Local
	}
	return &Analysis{
		scheduler:   sched,
		reprocessor: reprocessor,
		tracker:     tracker,
		settings:    settings,
		providers:   providers,
		loc:         loc,
		logger:      logger,
	}
}

// TriggerAnalysis handles POST /v1/analysis/trigger. The cycle runs in the background.
func (h *Analysis) TriggerAnalysis(c echo.Context) error {
	ctx := context.WithoutCancel(c.Request().Context())
	go func() {
		report, err := h.scheduler.TriggerNow(ctx)
		if err != nil {
			h.logger.Error("❌ Triggered analysis cycle failed", zap.Error(err))
			return
		}
		h.logger.Info("✅ Triggered analysis cycle finished",
			zap.Int("formed", report.Formed),
			zap.Int("dispatched", report.Dispatched),
			zap.Bool("skipped", report.Skipped),
		)
	}()
	return HandleAccepted(h.logger, c, &timeline.AcceptedResponse{Status: "accepted"})
}

// ReprocessDay handles POST /v1/reprocess/days/:day
func (h *Analysis) ReprocessDay(c echo.Context) error {
	day := c.Param("day")
	if _, _, err := entities.DayBounds(day, h.loc); err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidDay(day))
	}

	run, err := h.tracker.Launch(c.Request().Context(), "day "+day,
		func(ctx context.Context, progress reprocess.ProgressFunc) (*reprocess.Summary, error) {
			return h.reprocessor.ReprocessDay(ctx, day, progress)
		})
	if err != nil {
		return HandleError(h.logger, c, errors.ErrCacheFailed("store run", err))
	}
	return HandleAccepted(h.logger, c, acceptedRun(run))
}

// ReprocessBatches handles POST /v1/reprocess/batches
func (h *Analysis) ReprocessBatches(c echo.Context) error {
	var req timeline.ReprocessBatchesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return HandleError(h.logger, c, err)
	}
	ids := make([]uuid.UUID, 0, len(req.BatchIDs))
	for _, raw := range req.BatchIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return HandleError(h.logger, c, errors.ErrInvalidArgument("invalid batch id "+raw))
		}
		ids = append(ids, id)
	}

	run, err := h.tracker.Launch(c.Request().Context(), "batches",
		func(ctx context.Context, progress reprocess.ProgressFunc) (*reprocess.Summary, error) {
			return h.reprocessor.ReprocessBatches(ctx, ids, progress)
		})
	if err != nil {
		return HandleError(h.logger, c, errors.ErrCacheFailed("store run", err))
	}
	return HandleAccepted(h.logger, c, acceptedRun(run))
}

// GetRun handles GET /v1/reprocess/runs/:id
func (h *Analysis) GetRun(c echo.Context) error {
	id := c.Param("id")
	run, err := h.tracker.Get(c.Request().Context(), id)
	if err != nil {
		return HandleError(h.logger, c, errors.ErrCacheFailed("read run", err))
	}
	if run == nil {
		return HandleError(h.logger, c, errors.ErrRunNotFound(id))
	}
	return HandleSuccess(h.logger, c, run)
}

// GetProvider handles GET /v1/settings/provider
func (h *Analysis) GetProvider(c echo.Context) error {
	name, err := h.providers.Active(c.Request().Context())
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, &timeline.ProviderResponse{Provider: name})
}

// SetProvider handles PUT /v1/settings/provider. The choice applies to the next batch.
func (h *Analysis) SetProvider(c echo.Context) error {
	var req timeline.SetProviderRequest
	if err := bindAndValidate(c, &req); err != nil {
		return HandleError(h.logger, c, err)
	}
	name := strings.ToLower(strings.TrimSpace(req.Provider))
	if !ai.IsKnownProvider(name) {
		return HandleError(h.logger, c, errors.ErrProviderUnknown(req.Provider))
	}

	if err := h.settings.Set(c.Request().Context(), entities.SettingLLMProvider, name); err != nil {
		return HandleError(h.logger, c, errors.ErrDBQueryFailed("save provider", err))
	}
	h.logger.Info("🔧 Analysis provider changed", zap.String("provider", name))
	return HandleSuccess(h.logger, c, &timeline.ProviderResponse{Provider: name})
}

func acceptedRun(run *reprocess.Run) *timeline.AcceptedResponse {
	return &timeline.AcceptedResponse{
		Status:    string(run.State),
		RunID:     run.ID,
		StatusURL: "/v1/reprocess/runs/" + run.ID,
	}
}

package handler

import (
	stdErrors "errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/errors"
	"github.com/johnquangdev/timeline-assistant/internal/adapter/dto/common"
	"github.com/johnquangdev/timeline-assistant/internal/adapter/dto/timeline"
	"github.com/johnquangdev/timeline-assistant/internal/adapter/presenter"
	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/domain/repositories"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/storage"
	timelineUsecase "github.com/johnquangdev/timeline-assistant/internal/usecase/timeline"
)

// videoURLExpiry bounds presigned video summary links
const videoURLExpiry = time.Hour

// Timeline serves read access to cards, batches and video summaries
type Timeline struct {
	timelineService timelineUsecase.Service
	media           storage.MediaStore
	logger          *zap.Logger
}

// NewTimelineHandler creates a new timeline handler
func NewTimelineHandler(timelineService timelineUsecase.Service, media storage.MediaStore, logger *zap.Logger) *Timeline {
	return &Timeline{
		timelineService: timelineService,
		media:           media,
		logger:          logger,
	}
}

// GetDay handles GET /v1/timeline/days/:day
func (h *Timeline) GetDay(c echo.Context) error {
	day := c.Param("day")
	cards, err := h.timelineService.ForDay(c.Request().Context(), day)
	if err != nil {
		if stdErrors.Is(err, entities.ErrInvalidDay) {
			return HandleError(h.logger, c, errors.ErrInvalidDay(day))
		}
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, &timeline.DayResponse{
		Day:   day,
		Cards: presenter.ToCardResponses(cards),
	})
}

// GetRange handles GET /v1/timeline?from=&to=
func (h *Timeline) GetRange(c echo.Context) error {
	var req timeline.RangeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return HandleError(h.logger, c, err)
	}
	from, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidArgument("from must be an RFC3339 timestamp"))
	}
	to, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		return HandleError(h.logger, c, errors.ErrInvalidArgument("to must be an RFC3339 timestamp"))
	}
	if !to.After(from) {
		return HandleError(h.logger, c, errors.ErrInvalidArgument("to must be after from"))
	}

	cards, err := h.timelineService.InRange(c.Request().Context(), from, to)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, &timeline.RangeResponse{
		From:  from,
		To:    to,
		Cards: presenter.ToCardResponses(cards),
	})
}

// ListBatches handles GET /v1/batches
func (h *Timeline) ListBatches(c echo.Context) error {
	req := timeline.ListBatchesRequest{Page: 1, PageSize: 50}
	if err := bindAndValidate(c, &req); err != nil {
		return HandleError(h.logger, c, err)
	}

	filters := repositories.BatchFilters{
		Limit:  req.PageSize,
		Offset: (req.Page - 1) * req.PageSize,
	}
	if req.Status != "" {
		status := entities.BatchStatus(req.Status)
		filters.Status = &status
	}

	batches, total, err := h.timelineService.ListBatches(c.Request().Context(), filters)
	if err != nil {
		return HandleError(h.logger, c, errors.ErrDBQueryFailed("list batches", err))
	}
	return HandleSuccess(h.logger, c, &timeline.BatchListResponse{
		Batches:    presenter.ToBatchResponses(batches),
		Pagination: common.NewPagination(req.Page, req.PageSize, total),
	})
}

// GetCardVideo handles GET /v1/timeline/cards/:id/video. Object stores answer
// with a presigned link; the local store streams the file.
func (h *Timeline) GetCardVideo(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	card, err := h.timelineService.Card(ctx, id)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	if card == nil {
		return HandleError(h.logger, c, errors.ErrCardNotFound(id.String()))
	}
	if card.VideoSummaryRef == nil || *card.VideoSummaryRef == "" {
		return HandleError(h.logger, c, errors.ErrVideoNotAvailable(id.String()))
	}
	ref := *card.VideoSummaryRef

	if signer, ok := h.media.(storage.URLSigner); ok {
		url, err := signer.GetFileURL(ctx, ref, videoURLExpiry)
		if err != nil {
			return HandleError(h.logger, c, errors.ErrStorageFailed("presign video summary", err))
		}
		return HandleSuccess(h.logger, c, &timeline.VideoResponse{
			CardID:    id.String(),
			URL:       url,
			ExpiresAt: time.Now().Add(videoURLExpiry).UTC(),
		})
	}

	path, cleanup, err := h.media.Fetch(ctx, ref)
	if err != nil {
		h.logger.Warn("⚠️ Video summary missing from media store",
			zap.String("card_id", id.String()),
			zap.String("ref", ref),
			zap.Error(err),
		)
		return HandleError(h.logger, c, errors.ErrVideoNotAvailable(id.String()))
	}
	defer cleanup()
	return c.File(path)
}

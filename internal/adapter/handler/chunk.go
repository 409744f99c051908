package handler

import (
	stdErrors "errors"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/errors"
	"github.com/johnquangdev/timeline-assistant/internal/adapter/dto/timeline"
	"github.com/johnquangdev/timeline-assistant/internal/adapter/presenter"
	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	chunkUsecase "github.com/johnquangdev/timeline-assistant/internal/usecase/chunk"
)

// Chunk handles capture events for recording chunks
type Chunk struct {
	chunkService chunkUsecase.Service
	logger       *zap.Logger
}

// NewChunkHandler creates a new chunk handler
func NewChunkHandler(chunkService chunkUsecase.Service, logger *zap.Logger) *Chunk {
	return &Chunk{
		chunkService: chunkService,
		logger:       logger,
	}
}

// StartChunk handles POST /v1/chunks
func (h *Chunk) StartChunk(c echo.Context) error {
	var req timeline.StartChunkRequest
	if err := bindAndValidate(c, &req); err != nil {
		return HandleError(h.logger, c, err)
	}

	chunk, err := h.chunkService.StartChunk(c.Request().Context(), req.FileRef, req.StartTs)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleCreated(h.logger, c, presenter.ToChunkResponse(chunk))
}

// CompleteChunk handles POST /v1/chunks/:id/complete
func (h *Chunk) CompleteChunk(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	var req timeline.CompleteChunkRequest
	if err := bindAndValidate(c, &req); err != nil {
		return HandleError(h.logger, c, err)
	}

	chunk, err := h.chunkService.CompleteChunk(c.Request().Context(), id, req.EndTs)
	if err != nil {
		if stdErrors.Is(err, entities.ErrChunkNotFound) {
			return HandleError(h.logger, c, errors.ErrChunkNotFound(id.String()))
		}
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, presenter.ToChunkResponse(chunk))
}

// FailChunk handles POST /v1/chunks/:id/fail
func (h *Chunk) FailChunk(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return HandleError(h.logger, c, err)
	}

	if err := h.chunkService.FailChunk(c.Request().Context(), id); err != nil {
		if stdErrors.Is(err, entities.ErrChunkNotFound) {
			return HandleError(h.logger, c, errors.ErrChunkNotFound(id.String()))
		}
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, map[string]string{
		"id":     id.String(),
		"status": string(entities.ChunkStatusFailed),
	})
}

// RecordChunk handles POST /v1/chunks/completed
func (h *Chunk) RecordChunk(c echo.Context) error {
	var req timeline.RecordChunkRequest
	if err := bindAndValidate(c, &req); err != nil {
		return HandleError(h.logger, c, err)
	}

	chunk, err := h.chunkService.RecordCompleted(c.Request().Context(), req.FileRef, req.StartTs, req.EndTs)
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleCreated(h.logger, c, presenter.ToChunkResponse(chunk))
}

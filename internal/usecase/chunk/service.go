package chunk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/domain/repositories"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/storage"
)

// Service defines chunk lifecycle methods used by the capture subsystem
type Service interface {
	StartChunk(ctx context.Context, fileRef string, start time.Time) (*entities.RecordingChunk, error)
	CompleteChunk(ctx context.Context, id uuid.UUID, end time.Time) (*entities.RecordingChunk, error)
	FailChunk(ctx context.Context, id uuid.UUID) error
	// RecordCompleted registers a chunk delivered already finished
	RecordCompleted(ctx context.Context, fileRef string, start, end time.Time) (*entities.RecordingChunk, error)
	// CleanupAbandoned fails chunks still recording that started before the cutoff
	CleanupAbandoned(ctx context.Context, before time.Time) (int, error)
}

type chunkService struct {
	chunkRepo repositories.ChunkRepository
	media     storage.MediaStore
	logger    *zap.Logger
}

// NewService creates a chunk lifecycle service
func NewService(chunkRepo repositories.ChunkRepository, media storage.MediaStore, logger *zap.Logger) Service {
	return &chunkService{
		chunkRepo: chunkRepo,
		media:     media,
		logger:    logger,
	}
}

func (s *chunkService) StartChunk(ctx context.Context, fileRef string, start time.Time) (*entities.RecordingChunk, error) {
	if fileRef == "" || start.IsZero() {
		return nil, fmt.Errorf("%w: file reference and start time are required", entities.ErrInvalidRequest)
	}
	chunk := entities.NewRecordingChunk(fileRef, start)
	if err := s.chunkRepo.Create(ctx, chunk); err != nil {
		return nil, fmt.Errorf("failed to create chunk: %w", err)
	}
	s.logger.Debug("🎬 Chunk recording started",
		zap.String("chunk_id", chunk.ID.String()),
		zap.String("file_ref", fileRef),
	)
	return chunk, nil
}

func (s *chunkService) CompleteChunk(ctx context.Context, id uuid.UUID, end time.Time) (*entities.RecordingChunk, error) {
	chunk, err := s.chunkRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, entities.ErrChunkNotFound
	}
	// validates state and range before touching the store
	if err := chunk.MarkCompleted(end); err != nil {
		return nil, err
	}
	if err := s.chunkRepo.Complete(ctx, id, end); err != nil {
		return nil, err
	}

	s.logger.Debug("✅ Chunk completed",
		zap.String("chunk_id", id.String()),
		zap.Duration("duration", chunk.Duration()),
	)
	return chunk, nil
}

func (s *chunkService) FailChunk(ctx context.Context, id uuid.UUID) error {
	chunk, err := s.chunkRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if chunk == nil {
		return entities.ErrChunkNotFound
	}
	// completed chunks are immutable and may already be batched
	if chunk.Status != entities.ChunkStatusRecording {
		return entities.ErrChunkNotRecording
	}
	return s.discard(ctx, chunk)
}

func (s *chunkService) RecordCompleted(ctx context.Context, fileRef string, start, end time.Time) (*entities.RecordingChunk, error) {
	chunk, err := s.StartChunk(ctx, fileRef, start)
	if err != nil {
		return nil, err
	}
	completed, err := s.CompleteChunk(ctx, chunk.ID, end)
	if err != nil {
		// never leave a half-registered chunk behind
		if delErr := s.chunkRepo.DeleteRecording(ctx, chunk.ID); delErr != nil {
			s.logger.Warn("⚠️ Failed to remove rejected chunk",
				zap.String("chunk_id", chunk.ID.String()),
				zap.Error(delErr),
			)
		}
		return nil, err
	}
	return completed, nil
}

func (s *chunkService) CleanupAbandoned(ctx context.Context, before time.Time) (int, error) {
	chunks, err := s.chunkRepo.ListStaleRecording(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to list abandoned chunks: %w", err)
	}

	cleaned := 0
	for i := range chunks {
		if err := s.discard(ctx, &chunks[i]); err != nil {
			s.logger.Error("❌ Failed to clean up abandoned chunk",
				zap.String("chunk_id", chunks[i].ID.String()),
				zap.Error(err),
			)
			continue
		}
		cleaned++
	}
	if cleaned > 0 {
		s.logger.Warn("🧹 Cleaned up abandoned recording chunks", zap.Int("count", cleaned))
	}
	return cleaned, nil
}

// discard removes a recording chunk and its media file. The file is kept when
// the chunk completed in the meantime.
func (s *chunkService) discard(ctx context.Context, chunk *entities.RecordingChunk) error {
	if err := s.chunkRepo.DeleteRecording(ctx, chunk.ID); err != nil {
		if errors.Is(err, entities.ErrChunkNotRecording) || errors.Is(err, entities.ErrChunkNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete chunk: %w", err)
	}
	if s.media != nil {
		if err := s.media.Remove(ctx, chunk.FileRef); err != nil {
			// the row is gone, so the chunk is already out of the pipeline
			s.logger.Warn("⚠️ Failed to remove chunk file",
				zap.String("chunk_id", chunk.ID.String()),
				zap.String("file_ref", chunk.FileRef),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("🗑️ Chunk discarded",
		zap.String("chunk_id", chunk.ID.String()),
		zap.String("file_ref", chunk.FileRef),
	)
	return nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
)

// ChunkRepository handles recording chunk data operations
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Create inserts a new chunk
func (r *ChunkRepository) Create(ctx context.Context, chunk *entities.RecordingChunk) error {
	if chunk == nil {
		return errors.New("chunk cannot be nil")
	}
	return r.db.WithContext(ctx).Create(chunk).Error
}

// FindByID retrieves a chunk by ID
func (r *ChunkRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.RecordingChunk, error) {
	var chunk entities.RecordingChunk
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&chunk).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chunk, nil
}

// Complete marks a recording chunk as completed with its final end time
func (r *ChunkRepository) Complete(ctx context.Context, id uuid.UUID, end time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&entities.RecordingChunk{}).
		Where("id = ? AND status = ?", id, entities.ChunkStatusRecording).
		Updates(map[string]interface{}{
			"end_ts":     end.UTC(),
			"status":     entities.ChunkStatusCompleted,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		existing, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return entities.ErrChunkNotFound
		}
		return entities.ErrChunkNotRecording
	}
	return nil
}

// DeleteRecording removes a chunk that is still recording. Completed chunks are
// immutable and may already belong to a batch.
func (r *ChunkRepository) DeleteRecording(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, entities.ChunkStatusRecording).
		Delete(&entities.RecordingChunk{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		existing, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return entities.ErrChunkNotFound
		}
		return entities.ErrChunkNotRecording
	}
	return nil
}

// ListUnbatchedCompleted returns completed chunks starting at or after since that
// belong to no batch, ordered by start time
func (r *ChunkRepository) ListUnbatchedCompleted(ctx context.Context, since time.Time) ([]entities.RecordingChunk, error) {
	var chunks []entities.RecordingChunk
	if err := r.db.WithContext(ctx).
		Where("status = ? AND start_ts >= ?", entities.ChunkStatusCompleted, since.UTC()).
		Where("NOT EXISTS (SELECT 1 FROM batch_chunks bc WHERE bc.chunk_id = recording_chunks.id)").
		Order("start_ts ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// ListStaleRecording returns chunks still recording that started before the cutoff
func (r *ChunkRepository) ListStaleRecording(ctx context.Context, before time.Time) ([]entities.RecordingChunk, error) {
	var chunks []entities.RecordingChunk
	if err := r.db.WithContext(ctx).
		Where("status = ? AND start_ts < ?", entities.ChunkStatusRecording, before.UTC()).
		Order("start_ts ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

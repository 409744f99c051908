package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/domain/repositories"
)

// BatchRepository handles analysis batch data operations
type BatchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// CreateWithChunks inserts the batch row and its membership rows in one transaction
func (r *BatchRepository) CreateWithChunks(ctx context.Context, batch *entities.AnalysisBatch, chunkIDs []uuid.UUID) error {
	if batch == nil {
		return errors.New("batch cannot be nil")
	}
	if len(chunkIDs) == 0 {
		return entities.ErrEmptyBatch
	}

	links := make([]entities.BatchChunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		links = append(links, entities.BatchChunk{BatchID: batch.ID, ChunkID: id})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
		if err := tx.CreateInBatches(links, 200).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return entities.ErrChunkBatched
			}
			return fmt.Errorf("failed to insert batch membership: %w", err)
		}
		return nil
	})
}

// FindByID retrieves a batch by ID
func (r *BatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.AnalysisBatch, error) {
	var batch entities.AnalysisBatch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// ChunksForBatch returns the chunks linked to a batch ordered by start time
func (r *BatchRepository) ChunksForBatch(ctx context.Context, id uuid.UUID) ([]entities.RecordingChunk, error) {
	var chunks []entities.RecordingChunk
	if err := r.db.WithContext(ctx).
		Joins("JOIN batch_chunks bc ON bc.chunk_id = recording_chunks.id").
		Where("bc.batch_id = ?", id).
		Order("recording_chunks.start_ts ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// ListByStatus retrieves batches with a specific status, oldest first
func (r *BatchRepository) ListByStatus(ctx context.Context, status entities.BatchStatus, limit int) ([]entities.AnalysisBatch, error) {
	var batches []entities.AnalysisBatch
	if limit == 0 {
		limit = 100
	}
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("start_ts ASC").
		Limit(limit).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// ListInRange returns batches overlapping [from, to) ordered by start time
func (r *BatchRepository) ListInRange(ctx context.Context, from, to time.Time) ([]entities.AnalysisBatch, error) {
	var batches []entities.AnalysisBatch
	if err := r.db.WithContext(ctx).
		Where("start_ts < ? AND end_ts > ?", to.UTC(), from.UTC()).
		Order("start_ts ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// List returns a filtered page of batches, newest first, with the total count
func (r *BatchRepository) List(ctx context.Context, filters repositories.BatchFilters) ([]entities.AnalysisBatch, int64, error) {
	query := r.db.WithContext(ctx).Model(&entities.AnalysisBatch{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.From != nil {
		query = query.Where("end_ts > ?", filters.From.UTC())
	}
	if filters.To != nil {
		query = query.Where("start_ts < ?", filters.To.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	var batches []entities.AnalysisBatch
	if err := query.Order("start_ts DESC").Limit(limit).Offset(filters.Offset).Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

// ClaimPending atomically moves a batch from pending to processing.
// Only one caller succeeds if several see the same pending batch.
func (r *BatchRepository) ClaimPending(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&entities.AnalysisBatch{}).
		Where("id = ? AND status = ?", id, entities.BatchStatusPending).
		Updates(map[string]interface{}{
			"status":     entities.BatchStatusProcessing,
			"started_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkTerminal records the outcome of a run. It only applies to a processing batch,
// so each run writes its terminal state exactly once.
func (r *BatchRepository) MarkTerminal(ctx context.Context, id uuid.UUID, outcome entities.BatchOutcome) error {
	if !outcome.Status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal", outcome.Status)
	}

	var reason interface{}
	if outcome.FailureReason != "" {
		reason = outcome.FailureReason
	}

	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&entities.AnalysisBatch{}).
		Where("id = ? AND status = ?", id, entities.BatchStatusProcessing).
		Updates(map[string]interface{}{
			"status":         outcome.Status,
			"failure_reason": reason,
			"call_log":       datatypes.NewJSONSlice(outcome.CallLog),
			"unvalidated":    outcome.Unvalidated,
			"completed_at":   now,
			"updated_at":     now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return entities.ErrBatchNotProcessing
	}
	return nil
}

// ResetToPending returns batches to pending for reprocessing. Batches currently
// processing are left alone.
func (r *BatchRepository) ResetToPending(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&entities.AnalysisBatch{}).
		Where("id IN ? AND status <> ?", ids, entities.BatchStatusProcessing).
		Updates(map[string]interface{}{
			"status":         entities.BatchStatusPending,
			"failure_reason": nil,
			"unvalidated":    false,
			"started_at":     nil,
			"completed_at":   nil,
			"updated_at":     time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

// ResetStaleProcessing returns batches stuck in processing since before the cutoff to pending
func (r *BatchRepository) ResetStaleProcessing(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&entities.AnalysisBatch{}).
		Where("status = ? AND updated_at < ?", entities.BatchStatusProcessing, before.UTC()).
		Updates(map[string]interface{}{
			"status":     entities.BatchStatusPending,
			"started_at": nil,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
)

// ChunkRepository persists recorded segments
type ChunkRepository interface {
	Create(ctx context.Context, chunk *entities.RecordingChunk) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.RecordingChunk, error)
	Complete(ctx context.Context, id uuid.UUID, end time.Time) error
	// DeleteRecording fails with ErrChunkNotRecording once the chunk is completed
	DeleteRecording(ctx context.Context, id uuid.UUID) error
	ListUnbatchedCompleted(ctx context.Context, since time.Time) ([]entities.RecordingChunk, error)
	ListStaleRecording(ctx context.Context, before time.Time) ([]entities.RecordingChunk, error)
}

// BatchFilters narrows batch listings
type BatchFilters struct {
	Status *entities.BatchStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// BatchRepository persists analysis batches and chunk membership
type BatchRepository interface {
	CreateWithChunks(ctx context.Context, batch *entities.AnalysisBatch, chunkIDs []uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.AnalysisBatch, error)
	ChunksForBatch(ctx context.Context, id uuid.UUID) ([]entities.RecordingChunk, error)
	ListByStatus(ctx context.Context, status entities.BatchStatus, limit int) ([]entities.AnalysisBatch, error)
	ListInRange(ctx context.Context, from, to time.Time) ([]entities.AnalysisBatch, error)
	List(ctx context.Context, filters BatchFilters) ([]entities.AnalysisBatch, int64, error)
	// ClaimPending moves a batch from pending to processing. It returns false when
	// another run already owns it.
	ClaimPending(ctx context.Context, id uuid.UUID) (bool, error)
	MarkTerminal(ctx context.Context, id uuid.UUID, outcome entities.BatchOutcome) error
	ResetToPending(ctx context.Context, ids []uuid.UUID) (int64, error)
	ResetStaleProcessing(ctx context.Context, before time.Time) (int64, error)
}

// ObservationRepository persists transcription output
type ObservationRepository interface {
	SaveAll(ctx context.Context, observations []*entities.Observation) error
	ListForBatch(ctx context.Context, batchID uuid.UUID) ([]entities.Observation, error)
	ListInRange(ctx context.Context, from, to time.Time) ([]entities.Observation, error)
	DeleteForBatches(ctx context.Context, batchIDs []uuid.UUID) (int64, error)
}

// TimelineCardRepository persists synthesized cards
type TimelineCardRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entities.TimelineCard, error)
	ListForDay(ctx context.Context, day string) ([]entities.TimelineCard, error)
	ListInRange(ctx context.Context, from, to time.Time) ([]entities.TimelineCard, error)
	// ReplaceInRange deletes the cards inside [from, to), trims cards straddling either
	// boundary and inserts cards, all in one transaction. It returns the video summary
	// references of the deleted cards.
	ReplaceInRange(ctx context.Context, from, to time.Time, cards []*entities.TimelineCard) ([]string, error)
	// DeleteForDay removes all cards of a logical day and returns their video summary references.
	DeleteForDay(ctx context.Context, day string) ([]string, error)
	SetVideoSummary(ctx context.Context, id uuid.UUID, ref string) error
	DistinctCategories(ctx context.Context) ([]string, error)
}

// SettingsRepository persists runtime configuration
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

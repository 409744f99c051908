package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BatchStatus represents the lifecycle status of an analysis batch
type BatchStatus string

const (
	BatchStatusPending      BatchStatus = "pending"       // Waiting for dispatch
	BatchStatusProcessing   BatchStatus = "processing"    // Claimed by an orchestrator run
	BatchStatusAnalyzed     BatchStatus = "analyzed"      // Observations and cards persisted
	BatchStatusFailed       BatchStatus = "failed"        // Run failed, reason recorded
	BatchStatusFailedEmpty  BatchStatus = "failed_empty"  // No linked chunks
	BatchStatusSkippedShort BatchStatus = "skipped_short" // Total duration below minimum
)

// IsTerminal reports whether a run has finished with this status
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusAnalyzed, BatchStatusFailed, BatchStatusFailedEmpty, BatchStatusSkippedShort:
		return true
	}
	return false
}

// CallLogEntry records one provider call made while processing a batch
type CallLogEntry struct {
	Operation string    `json:"operation"` // transcribe | synthesize | video_summary
	Provider  string    `json:"provider"`
	Model     string    `json:"model,omitempty"`
	Attempt   int       `json:"attempt"`
	StartedAt time.Time `json:"started_at"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
}

// AnalysisBatch is a time-bounded group of chunks queued for one analysis pass
type AnalysisBatch struct {
	ID            uuid.UUID                         `json:"id" gorm:"type:uuid;primaryKey"`
	StartTs       time.Time                         `json:"start_ts" gorm:"not null;index"`
	EndTs         time.Time                         `json:"end_ts" gorm:"not null"`
	Status        BatchStatus                       `json:"status" gorm:"type:varchar(20);not null;index;default:'pending'"`
	FailureReason *string                           `json:"failure_reason,omitempty" gorm:"type:text"`
	CallLog       datatypes.JSONSlice[CallLogEntry] `json:"call_log,omitempty"`
	Unvalidated   bool                              `json:"unvalidated" gorm:"not null;default:false"`
	StartedAt     *time.Time                        `json:"started_at,omitempty"`
	CompletedAt   *time.Time                        `json:"completed_at,omitempty"`
	CreatedAt     time.Time                         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time                         `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (AnalysisBatch) TableName() string {
	return "analysis_batches"
}

// NewAnalysisBatch creates a pending batch spanning [start, end)
func NewAnalysisBatch(start, end time.Time) *AnalysisBatch {
	now := time.Now().UTC()
	return &AnalysisBatch{
		ID:        uuid.New(),
		StartTs:   start.UTC(),
		EndTs:     end.UTC(),
		Status:    BatchStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Duration returns the wall-clock span of the batch
func (b *AnalysisBatch) Duration() time.Duration {
	return b.EndTs.Sub(b.StartTs)
}

// BatchChunk links a chunk to the batch that owns it. A chunk belongs to at most one batch.
type BatchChunk struct {
	BatchID uuid.UUID `json:"batch_id" gorm:"type:uuid;not null;index"`
	ChunkID uuid.UUID `json:"chunk_id" gorm:"type:uuid;primaryKey"`
}

// TableName specifies the table name for GORM
func (BatchChunk) TableName() string {
	return "batch_chunks"
}

// BatchOutcome is the single terminal write made at the end of a run
type BatchOutcome struct {
	Status        BatchStatus
	FailureReason string
	CallLog       []CallLogEntry
	Unvalidated   bool
}

package entities

import (
	"time"

	"github.com/google/uuid"
)

// ChunkStatus represents the lifecycle status of a recorded segment
type ChunkStatus string

const (
	ChunkStatusRecording ChunkStatus = "recording" // Capture in progress
	ChunkStatusCompleted ChunkStatus = "completed" // File finalized, eligible for batching
	ChunkStatusFailed    ChunkStatus = "failed"    // Capture failed, row is removed
)

// RecordingChunk is a short fixed-length recorded segment delivered by capture
type RecordingChunk struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	StartTs   time.Time   `json:"start_ts" gorm:"not null;index"`
	EndTs     time.Time   `json:"end_ts" gorm:"not null"`
	FileRef   string      `json:"file_ref" gorm:"type:text;not null"`
	Status    ChunkStatus `json:"status" gorm:"type:varchar(20);not null;index;default:'recording'"`
	CreatedAt time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (RecordingChunk) TableName() string {
	return "recording_chunks"
}

// NewRecordingChunk creates a chunk in recording state
func NewRecordingChunk(fileRef string, start time.Time) *RecordingChunk {
	now := time.Now().UTC()
	return &RecordingChunk{
		ID:        uuid.New(),
		StartTs:   start.UTC(),
		EndTs:     start.UTC(),
		FileRef:   fileRef,
		Status:    ChunkStatusRecording,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Duration returns the recorded span of the chunk
func (c *RecordingChunk) Duration() time.Duration {
	if c.EndTs.Before(c.StartTs) {
		return 0
	}
	return c.EndTs.Sub(c.StartTs)
}

// MarkCompleted finalizes the chunk
func (c *RecordingChunk) MarkCompleted(end time.Time) error {
	if c.Status != ChunkStatusRecording {
		return ErrChunkNotRecording
	}
	if !end.After(c.StartTs) {
		return ErrInvalidTimeRange
	}
	c.EndTs = end.UTC()
	c.Status = ChunkStatusCompleted
	c.UpdatedAt = time.Now().UTC()
	return nil
}

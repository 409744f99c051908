package timeline

import (
	"time"
)

// StartChunkRequest registers a chunk whose capture has begun
type StartChunkRequest struct {
	FileRef string    `json:"file_ref" validate:"required,max=1024"`
	StartTs time.Time `json:"start_ts" validate:"required"`
}

// CompleteChunkRequest finalizes a recording chunk
type CompleteChunkRequest struct {
	EndTs time.Time `json:"end_ts" validate:"required"`
}

// RecordChunkRequest registers a chunk delivered already finished
type RecordChunkRequest struct {
	FileRef string    `json:"file_ref" validate:"required,max=1024"`
	StartTs time.Time `json:"start_ts" validate:"required"`
	EndTs   time.Time `json:"end_ts" validate:"required,gtfield=StartTs"`
}

// RangeRequest represents query parameters for a timeline range (RFC3339)
type RangeRequest struct {
	From string `query:"from" validate:"required"`
	To   string `query:"to" validate:"required"`
}

// ListBatchesRequest represents query parameters for listing batches
type ListBatchesRequest struct {
	Status   string `query:"status" validate:"omitempty,oneof=pending processing analyzed failed failed_empty skipped_short"`
	Page     int    `query:"page" validate:"min=1"`
	PageSize int    `query:"page_size" validate:"min=1,max=200"`
}

// ReprocessBatchesRequest selects batches to re-run
type ReprocessBatchesRequest struct {
	BatchIDs []string `json:"batch_ids" validate:"required,min=1,max=500,dive,uuid"`
}

// SetProviderRequest selects the analysis provider
type SetProviderRequest struct {
	Provider string `json:"provider" validate:"required"`
}

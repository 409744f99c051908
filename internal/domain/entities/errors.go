package entities

import "errors"

// Domain errors
var (
	// Chunk errors
	ErrChunkNotFound     = errors.New("chunk not found")
	ErrChunkNotRecording = errors.New("chunk is not recording")
	ErrInvalidTimeRange  = errors.New("end must be after start")

	// Batch errors
	ErrBatchNotFound      = errors.New("batch not found")
	ErrBatchNotPending    = errors.New("batch is not pending")
	ErrBatchNotProcessing = errors.New("batch is not processing")
	ErrEmptyBatch         = errors.New("batch has no chunks")
	ErrChunkBatched       = errors.New("chunk already belongs to a batch")

	// Timeline errors
	ErrInvalidDay = errors.New("invalid logical day")

	// Generic errors
	ErrInvalidRequest = errors.New("invalid request")
)

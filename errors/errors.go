package errors

import (
	"fmt"
	"net/http"
	"time"
)

// AppError is the error type surfaced by the HTTP adapters
type AppError struct {
	Raw       error
	HTTPCode  int
	Code      ErrorCode
	Message   string
	Details   map[string]string
	Timestamp time.Time
}

// Error implements error interface
func (e AppError) Error() string {
	if e.Raw != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code.String(), e.Message, e.Raw)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// Unwrap exposes the underlying error to errors.Is and errors.As
func (e AppError) Unwrap() error {
	return e.Raw
}

// WithDetail adds a detail to the error
func (e AppError) WithDetail(key, value string) AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// General Errors
func ErrInternal(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTERNAL,
		Message:  "Internal server error",
	}
}

func ErrInvalidArgument(message string) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_ARGUMENT,
		Message:  message,
	}
}

func ErrNotFound(resource string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  fmt.Sprintf("%s not found", resource),
	}
}

func ErrConflict(message string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_CONFLICT,
		Message:  message,
	}
}

func ErrInvalidPayload(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_PAYLOAD,
		Message:  "Invalid payload",
	}
}

// Chunk Errors
func ErrChunkNotFound(chunkID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_CHUNK_NOT_FOUND,
		Message:  "Chunk not found",
	}.WithDetail("chunk_id", chunkID)
}

func ErrChunkInvalidState(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_CHUNK_INVALID_STATE,
		Message:  "Chunk is not in a state that allows this operation",
	}
}

func ErrChunkInvalidRange(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_CHUNK_INVALID_RANGE,
		Message:  "Chunk end must be after its start",
	}
}

// Batch and Timeline Errors
func ErrBatchNotFound(batchID string) AppError {
	e := AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_BATCH_NOT_FOUND,
		Message:  "Batch not found",
	}
	if batchID != "" {
		e = e.WithDetail("batch_id", batchID)
	}
	return e
}

func ErrBatchBusy(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusConflict,
		Code:     ErrorCode_BATCH_BUSY,
		Message:  "Batch is being processed",
	}
}

func ErrInvalidDay(day string) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_TIMELINE_INVALID_DAY,
		Message:  "Day must be formatted as YYYY-MM-DD",
	}.WithDetail("day", day)
}

func ErrCardNotFound(cardID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_CARD_NOT_FOUND,
		Message:  "Timeline card not found",
	}.WithDetail("card_id", cardID)
}

func ErrVideoNotAvailable(cardID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_VIDEO_NOT_AVAILABLE,
		Message:  "No video summary for this card",
	}.WithDetail("card_id", cardID)
}

// Provider and Analysis Errors
func ErrProviderNotConfigured(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusServiceUnavailable,
		Code:     ErrorCode_PROVIDER_NOT_CONFIGURED,
		Message:  "No analysis provider is configured",
	}
}

func ErrProviderUnknown(name string) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_PROVIDER_UNKNOWN,
		Message:  "Unknown analysis provider",
	}.WithDetail("provider", name)
}

func ErrAnalysisFailed(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_ANALYSIS_FAILED,
		Message:  "Analysis failed",
	}
}

// Reprocess Errors
func ErrNoBatchesToReprocess(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_REPROCESS_NO_BATCHES,
		Message:  "No batches to reprocess",
	}
}

func ErrRunNotFound(runID string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_REPROCESS_RUN_NOT_FOUND,
		Message:  "Reprocessing run not found",
	}.WithDetail("run_id", runID)
}

// Integration Errors
func ErrStorageFailed(operation string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTEGRATION_STORAGE_FAILED,
		Message:  fmt.Sprintf("Storage operation failed: %s", operation),
	}
}

func ErrCacheFailed(operation string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTEGRATION_CACHE_FAILED,
		Message:  fmt.Sprintf("Cache operation failed: %s", operation),
	}
}

// Database Errors
func ErrDBQueryFailed(query string, err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_DB_QUERY_FAILED,
		Message:  "Database query failed",
	}.WithDetail("query", query)
}

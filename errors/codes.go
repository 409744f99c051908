package errors

// ErrorCode identifies an application error independently of its HTTP status
type ErrorCode int32

const (
	ErrorCode_HTTP_OK          ErrorCode = 200
	ErrorCode_INTERNAL         ErrorCode = 1000
	ErrorCode_INVALID_ARGUMENT ErrorCode = 1001
	ErrorCode_NOT_FOUND        ErrorCode = 1002
	ErrorCode_ALREADY_EXISTS   ErrorCode = 1003
	ErrorCode_INVALID_PAYLOAD  ErrorCode = 1004
	ErrorCode_CONFLICT         ErrorCode = 1005

	ErrorCode_CHUNK_NOT_FOUND     ErrorCode = 2000
	ErrorCode_CHUNK_INVALID_STATE ErrorCode = 2001
	ErrorCode_CHUNK_INVALID_RANGE ErrorCode = 2002

	ErrorCode_BATCH_NOT_FOUND      ErrorCode = 3000
	ErrorCode_BATCH_BUSY           ErrorCode = 3001
	ErrorCode_TIMELINE_INVALID_DAY ErrorCode = 3002
	ErrorCode_CARD_NOT_FOUND       ErrorCode = 3003
	ErrorCode_VIDEO_NOT_AVAILABLE  ErrorCode = 3004

	ErrorCode_PROVIDER_NOT_CONFIGURED ErrorCode = 4000
	ErrorCode_PROVIDER_UNKNOWN        ErrorCode = 4001
	ErrorCode_ANALYSIS_FAILED         ErrorCode = 4002

	ErrorCode_REPROCESS_NO_BATCHES    ErrorCode = 5000
	ErrorCode_REPROCESS_RUN_NOT_FOUND ErrorCode = 5001

	ErrorCode_INTEGRATION_STORAGE_FAILED ErrorCode = 6000
	ErrorCode_INTEGRATION_CACHE_FAILED   ErrorCode = 6001
	ErrorCode_DB_QUERY_FAILED            ErrorCode = 6002
)

var codeNames = map[ErrorCode]string{
	ErrorCode_HTTP_OK:                    "HTTP_OK",
	ErrorCode_INTERNAL:                   "INTERNAL",
	ErrorCode_INVALID_ARGUMENT:           "INVALID_ARGUMENT",
	ErrorCode_NOT_FOUND:                  "NOT_FOUND",
	ErrorCode_ALREADY_EXISTS:             "ALREADY_EXISTS",
	ErrorCode_INVALID_PAYLOAD:            "INVALID_PAYLOAD",
	ErrorCode_CONFLICT:                   "CONFLICT",
	ErrorCode_CHUNK_NOT_FOUND:            "CHUNK_NOT_FOUND",
	ErrorCode_CHUNK_INVALID_STATE:        "CHUNK_INVALID_STATE",
	ErrorCode_CHUNK_INVALID_RANGE:        "CHUNK_INVALID_RANGE",
	ErrorCode_BATCH_NOT_FOUND:            "BATCH_NOT_FOUND",
	ErrorCode_BATCH_BUSY:                 "BATCH_BUSY",
	ErrorCode_TIMELINE_INVALID_DAY:       "TIMELINE_INVALID_DAY",
	ErrorCode_CARD_NOT_FOUND:             "CARD_NOT_FOUND",
	ErrorCode_VIDEO_NOT_AVAILABLE:        "VIDEO_NOT_AVAILABLE",
	ErrorCode_PROVIDER_NOT_CONFIGURED:    "PROVIDER_NOT_CONFIGURED",
	ErrorCode_PROVIDER_UNKNOWN:           "PROVIDER_UNKNOWN",
	ErrorCode_ANALYSIS_FAILED:            "ANALYSIS_FAILED",
	ErrorCode_REPROCESS_NO_BATCHES:       "REPROCESS_NO_BATCHES",
	ErrorCode_REPROCESS_RUN_NOT_FOUND:    "REPROCESS_RUN_NOT_FOUND",
	ErrorCode_INTEGRATION_STORAGE_FAILED: "INTEGRATION_STORAGE_FAILED",
	ErrorCode_INTEGRATION_CACHE_FAILED:   "INTEGRATION_CACHE_FAILED",
	ErrorCode_DB_QUERY_FAILED:            "DB_QUERY_FAILED",
}

// String returns the symbolic name of the code
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

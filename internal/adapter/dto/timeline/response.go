package timeline

import (
	"time"

	"github.com/johnquangdev/timeline-assistant/internal/adapter/dto/common"
)

// ChunkResponse represents a recording chunk in responses
type ChunkResponse struct {
	ID      string    `json:"id"`
	FileRef string    `json:"file_ref"`
	StartTs time.Time `json:"start_ts"`
	EndTs   time.Time `json:"end_ts"`
	Status  string    `json:"status"`
}

// DistractionResponse represents a distraction embedded in a card
type DistractionResponse struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
}

// CardResponse represents a timeline card in responses
type CardResponse struct {
	ID              string                `json:"id"`
	BatchID         string                `json:"batch_id"`
	StartTs         time.Time             `json:"start_ts"`
	EndTs           time.Time             `json:"end_ts"`
	Day             string                `json:"day"`
	Category        string                `json:"category"`
	Subcategory     string                `json:"subcategory,omitempty"`
	Title           string                `json:"title"`
	Summary         string                `json:"summary"`
	DetailedSummary string                `json:"detailed_summary,omitempty"`
	Distractions    []DistractionResponse `json:"distractions"`
	HasVideo        bool                  `json:"has_video"`
	Validated       bool                  `json:"validated"`
}

// DayResponse represents the timeline of one logical day
type DayResponse struct {
	Day   string          `json:"day"`
	Cards []*CardResponse `json:"cards"`
}

// RangeResponse represents the cards overlapping a time range
type RangeResponse struct {
	From  time.Time       `json:"from"`
	To    time.Time       `json:"to"`
	Cards []*CardResponse `json:"cards"`
}

// BatchResponse represents an analysis batch in responses
type BatchResponse struct {
	ID            string     `json:"id"`
	StartTs       time.Time  `json:"start_ts"`
	EndTs         time.Time  `json:"end_ts"`
	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	Unvalidated   bool       `json:"unvalidated"`
	Calls         int        `json:"calls"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// BatchListResponse represents a page of batches
type BatchListResponse struct {
	Batches    []*BatchResponse           `json:"batches"`
	Pagination *common.PaginationResponse `json:"pagination"`
}

// AcceptedResponse acknowledges work started in the background
type AcceptedResponse struct {
	Status    string `json:"status"`
	RunID     string `json:"run_id,omitempty"`
	StatusURL string `json:"status_url,omitempty"`
}

// ProviderResponse reports the selected analysis provider
type ProviderResponse struct {
	Provider string `json:"provider"`
}

// VideoResponse points at a card's video summary
type VideoResponse struct {
	CardID    string    `json:"card_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// Provider names
const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderLocal   = "local"
	ProviderManaged = "managed"
)

// Provider turns screen recordings into observations and observations into timeline cards.
// Implementations differ internally (whole-clip upload vs frame sampling) but honor the same contract.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error)
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// Frame is a still image sampled from a clip
type Frame struct {
	Offset time.Duration
	Path   string
}

// FrameSampler extracts frames from a clip into dir
type FrameSampler interface {
	SampleFrames(ctx context.Context, input string, duration time.Duration, dir string) ([]Frame, error)
}

// TranscribeRequest describes one combined clip spanning a batch
type TranscribeRequest struct {
	MediaPath  string
	Duration   time.Duration
	OriginTime time.Time // absolute time of offset zero
	WorkDir    string    // scratch space for sampled frames
}

// Segment is one described interval, relative to the start of the clip
type Segment struct {
	Start       time.Duration
	End         time.Duration
	Description string
}

// TranscribeResult is the ordered, non-overlapping segment list of a clip
type TranscribeResult struct {
	Segments []Segment
	Model    string
}

// ObservationInput is an absolute-time observation handed to synthesis
type ObservationInput struct {
	Start time.Time
	End   time.Time
	Text  string
}

// CardContext is a previously stored card given to synthesis for continuity
type CardContext struct {
	Start       time.Time
	End         time.Time
	Category    string
	Subcategory string
	Title       string
	Summary     string
}

// SynthesisRequest carries everything needed to produce cards for a window
type SynthesisRequest struct {
	Observations       []ObservationInput
	PriorCards         []CardContext
	Categories         []config.Category
	InferredCategories []string
	WindowStart        time.Time
	WindowEnd          time.Time
	Location           *time.Location
	MinCardDuration    time.Duration
	MinDistraction     time.Duration
	// Violation describes what was wrong with the previous attempt, empty on the first one
	Violation string
}

// DistractionDraft is a distraction as returned by a provider
type DistractionDraft struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
}

// CardDraft is a card as returned by a provider, with local clock times
type CardDraft struct {
	StartTime       string             `json:"start_time"`
	EndTime         string             `json:"end_time"`
	Category        string             `json:"category"`
	Subcategory     string             `json:"subcategory"`
	Title           string             `json:"title"`
	Summary         string             `json:"summary"`
	DetailedSummary string             `json:"detailed_summary"`
	Distractions    []DistractionDraft `json:"distractions"`
}

// SynthesisResult holds the cards produced for a window
type SynthesisResult struct {
	Cards []CardDraft
	Model string
}

var (
	// ErrNoProvider means no provider is selected or the selected one lacks credentials
	ErrNoProvider = errors.New("no LLM provider configured")
	// ErrMalformedResponse means the response did not decode into the declared schema
	ErrMalformedResponse = errors.New("malformed provider response")
)

// RateLimitError is returned when the provider throttles a call
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration // zero when the provider did not say
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded, retry after %s: %s", e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("%s rate limit exceeded: %s", e.Provider, e.Message)
}

// StatusError is a non-success HTTP response from a provider
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 409
}

// RetryAfter extracts a server-supplied retry delay from err
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

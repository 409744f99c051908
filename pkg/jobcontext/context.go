package jobcontext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/johnquangdev/timeline-assistant/pkg/ai"
)

type KeyContext string

var (
	keyJobID        KeyContext = "job_id"
	keyJobType      KeyContext = "job_type"
	keyWorkerID     KeyContext = "worker_id"
	keyRetryAttempt KeyContext = "retry_attempt"
	keyJobStartTime KeyContext = "job_start_time"
)

// Job types
const (
	JobTypeAnalysis   = "analysis"
	JobTypeReprocess  = "reprocess"
	JobTypeVideoClips = "video_summary"
)

// DefaultJobTimeout bounds a whole batch run
const DefaultJobTimeout = 30 * time.Minute

// JobMetadata holds metadata for a job execution
type JobMetadata struct {
	JobID        uuid.UUID
	JobType      string
	WorkerID     int
	RetryAttempt int
	StartTime    time.Time
}

// JobBegin initializes a job context with metadata and timeout
func JobBegin(parentCtx context.Context, jobID uuid.UUID, jobType string, workerID int, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	// Create context with timeout to prevent infinite hanging
	ctx, cancel := context.WithTimeout(parentCtx, timeout)

	ctx = context.WithValue(ctx, keyJobID, jobID)
	ctx = context.WithValue(ctx, keyJobType, jobType)
	ctx = context.WithValue(ctx, keyWorkerID, workerID)
	ctx = context.WithValue(ctx, keyRetryAttempt, 0)
	ctx = context.WithValue(ctx, keyJobStartTime, time.Now())

	return ctx, cancel
}

// RetryPolicy describes exponential backoff for a single provider call
type RetryPolicy struct {
	MaxRetries  int           // retries after the first attempt
	BaseDelay   time.Duration // delay before the first retry, doubled each time
	MaxDelay    time.Duration
	CallTimeout time.Duration // per attempt, zero for none
}

// Retry runs fn until it succeeds, fails with a non-retryable error or exhausts the policy.
// The attempt number is available to fn through GetRetryAttempt. A rate-limit error that
// carries a retry-after duration delays the next attempt by at least that much.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	if policy.MaxDelay > 0 {
		exp.MaxInterval = policy.MaxDelay
	}
	exp.Reset()

	var lastErr error
	bo := &retryAfterBackOff{
		next: backoff.WithMaxRetries(exp, uint64(max(policy.MaxRetries, 0))),
		last: &lastErr,
	}

	attempt := 0
	operation := func() error {
		attemptCtx := SetRetryAttempt(ctx, attempt)
		attempt++

		var cancel context.CancelFunc = func() {}
		if policy.CallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(attemptCtx, policy.CallTimeout)
		}
		err := func() (err error) {
			defer cancel()
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("panic recovered: %v", p)
				}
			}()
			return fn(attemptCtx)
		}()

		lastErr = err
		if err == nil {
			return nil
		}
		// the job itself was cancelled, not just this attempt
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if !IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

// retryAfterBackOff stretches the next delay to honor a server-supplied retry-after
type retryAfterBackOff struct {
	next backoff.BackOff
	last *error
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.next.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if wait, ok := ai.RetryAfter(*b.last); ok && wait > d {
		return wait
	}
	return d
}

func (b *retryAfterBackOff) Reset() { b.next.Reset() }

// GetJobID extracts job ID from context
func GetJobID(ctx context.Context) (uuid.UUID, bool) {
	jobID, ok := ctx.Value(keyJobID).(uuid.UUID)
	return jobID, ok
}

// GetJobType extracts job type from context
func GetJobType(ctx context.Context) (string, bool) {
	jobType, ok := ctx.Value(keyJobType).(string)
	return jobType, ok
}

// GetWorkerID extracts worker ID from context
func GetWorkerID(ctx context.Context) int {
	workerID, ok := ctx.Value(keyWorkerID).(int)
	if !ok {
		return -1
	}
	return workerID
}

// WithJobType relabels the stage a job is in
func WithJobType(ctx context.Context, jobType string) context.Context {
	return context.WithValue(ctx, keyJobType, jobType)
}

// WithWorkerID tags ctx with the dispatcher slot running the job
func WithWorkerID(ctx context.Context, workerID int) context.Context {
	return context.WithValue(ctx, keyWorkerID, workerID)
}

// GetRetryAttempt extracts current retry attempt from context
func GetRetryAttempt(ctx context.Context) int {
	attempt, ok := ctx.Value(keyRetryAttempt).(int)
	if !ok {
		return 0
	}
	return attempt
}

// SetRetryAttempt updates retry attempt in context
func SetRetryAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, keyRetryAttempt, attempt)
}

// GetJobStartTime extracts job start time from context
func GetJobStartTime(ctx context.Context) (time.Time, bool) {
	startTime, ok := ctx.Value(keyJobStartTime).(time.Time)
	return startTime, ok
}

// GetJobMetadata extracts all job metadata from context
func GetJobMetadata(ctx context.Context) *JobMetadata {
	jobID, _ := GetJobID(ctx)
	jobType, _ := GetJobType(ctx)
	startTime, _ := GetJobStartTime(ctx)

	return &JobMetadata{
		JobID:        jobID,
		JobType:      jobType,
		WorkerID:     GetWorkerID(ctx),
		RetryAttempt: GetRetryAttempt(ctx),
		StartTime:    startTime,
	}
}

// IsRetryableError checks if an error should trigger a retry
// Retryable errors include: timeouts, rate limits, 5xx responses, malformed output, network errors
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ai.ErrNoProvider) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ai.ErrMalformedResponse) {
		return true
	}
	var rl *ai.RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var se *ai.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}

	errStr := strings.ToLower(err.Error())

	// Network errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "network unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "unexpected eof") {
		return true
	}

	// Database lock errors
	if strings.Contains(errStr, "deadlock") ||
		strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "40001") {
		return true
	}

	// Temporary failures
	if strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "try again") {
		return true
	}

	return false
}

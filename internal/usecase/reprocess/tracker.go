package reprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/cache"
)

// RunState is the lifecycle of an asynchronous reprocessing run
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

const (
	runKeyPrefix = "reprocess:run:"
	maxMessages  = 200
)

// Run is the stored progress of one reprocessing request
type Run struct {
	ID         string     `json:"id"`
	Target     string     `json:"target"`
	State      RunState   `json:"state"`
	Messages   []string   `json:"messages"`
	Summary    *Summary   `json:"summary,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunFunc performs the reprocessing work for a tracked run
type RunFunc func(ctx context.Context, progress ProgressFunc) (*Summary, error)

// RunTracker records run progress in the cache store so it can be polled
type RunTracker struct {
	store  cache.Store
	ttl    time.Duration
	logger *zap.Logger

	mu   sync.Mutex
	wg   sync.WaitGroup
	runs map[string]*Run
}

// NewRunTracker creates a tracker whose records expire after ttl
func NewRunTracker(store cache.Store, ttl time.Duration, logger *zap.Logger) *RunTracker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunTracker{
		store:  store,
		ttl:    ttl,
		logger: logger,
		runs:   make(map[string]*Run),
	}
}

// Launch records a new run and executes fn in the background. The run keeps
// going after ctx is cancelled.
func (t *RunTracker) Launch(ctx context.Context, target string, fn RunFunc) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Target:    target,
		State:     RunStateRunning,
		Messages:  []string{},
		StartedAt: time.Now().UTC(),
	}

	t.mu.Lock()
	t.runs[run.ID] = run
	err := t.save(ctx, run)
	snapshot := *run
	t.mu.Unlock()
	if err != nil {
		t.mu.Lock()
		delete(t.runs, run.ID)
		t.mu.Unlock()
		return nil, err
	}

	t.logger.Info("📦 Reprocessing run launched",
		zap.String("run_id", run.ID),
		zap.String("target", target),
	)

	bg := context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		summary, err := fn(bg, t.progress(bg, run.ID))
		t.finish(bg, run.ID, summary, err)
	}()
	return &snapshot, nil
}

// Get returns a stored run, or nil when it is unknown or expired
func (t *RunTracker) Get(ctx context.Context, id string) (*Run, error) {
	raw, ok, err := t.store.Get(ctx, runKeyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	var run Run
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

// Wait blocks until every launched run has finished
func (t *RunTracker) Wait() {
	t.wg.Wait()
}

func (t *RunTracker) progress(ctx context.Context, id string) ProgressFunc {
	return func(message string) {
		t.mu.Lock()
		defer t.mu.Unlock()
		run, ok := t.runs[id]
		if !ok {
			return
		}
		run.Messages = append(run.Messages, message)
		if len(run.Messages) > maxMessages {
			run.Messages = run.Messages[len(run.Messages)-maxMessages:]
		}
		if err := t.save(ctx, run); err != nil {
			t.logger.Warn("⚠️ Failed to store run progress", zap.String("run_id", id), zap.Error(err))
		}
	}
}

func (t *RunTracker) finish(ctx context.Context, id string, summary *Summary, runErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[id]
	if !ok {
		return
	}
	delete(t.runs, id)

	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Summary = summary
	run.State = RunStateCompleted
	if runErr != nil {
		run.State = RunStateFailed
		run.Error = runErr.Error()
		t.logger.Error("❌ Reprocessing run failed", zap.String("run_id", id), zap.Error(runErr))
	} else {
		t.logger.Info("✅ Reprocessing run completed", zap.String("run_id", id))
	}
	if err := t.save(ctx, run); err != nil {
		t.logger.Warn("⚠️ Failed to store run result", zap.String("run_id", id), zap.Error(err))
	}
}

// save must be called with t.mu held
func (t *RunTracker) save(ctx context.Context, run *Run) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	return t.store.Set(ctx, runKeyPrefix+run.ID, string(raw), t.ttl)
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/domain/repositories"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/analysis"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
	"github.com/johnquangdev/timeline-assistant/pkg/jobcontext"
)

// ErrAlreadyRunning is returned by Start when the loop is active
var ErrAlreadyRunning = errors.New("scheduler already running")

// ErrNotRunning is returned by Stop when the loop was never started
var ErrNotRunning = errors.New("scheduler not running")

// pendingPerCycle bounds how many pending batches one cycle dispatches
const pendingPerCycle = 100

// BatchFormer groups completed chunks into batches
type BatchFormer interface {
	FormBatches(ctx context.Context, now time.Time) ([]*entities.AnalysisBatch, error)
}

// ChunkJanitor discards chunks left recording by a crashed capture session
type ChunkJanitor interface {
	CleanupAbandoned(ctx context.Context, before time.Time) (int, error)
}

// CycleReport describes one formation and dispatch pass
type CycleReport struct {
	Formed     int  `json:"formed"`
	Dispatched int  `json:"dispatched"`
	Skipped    bool `json:"skipped"` // another cycle was in flight
}

// Service drives batch formation and analysis on a fixed interval
type Service interface {
	// Start recovers interrupted work, runs a first cycle and keeps cycling until Stop
	Start(ctx context.Context) error
	// TriggerNow runs one cycle immediately unless one is already in flight
	TriggerNow(ctx context.Context) (*CycleReport, error)
	// Stop ends the loop and waits for dispatched runs until ctx expires, then cancels them
	Stop(ctx context.Context) error
}

type scheduler struct {
	former   BatchFormer
	janitor  ChunkJanitor
	batches  repositories.BatchRepository
	analyzer analysis.Service
	cfg      config.AnalysisConfig
	logger   *zap.Logger
	now      func() time.Time

	inFlight atomic.Bool

	mu         sync.Mutex
	isRunning  bool
	stopping   bool
	stopChan   chan struct{}
	runCtx     context.Context
	cancelRuns context.CancelFunc
	loopWg     sync.WaitGroup
	runWg      sync.WaitGroup
	dispatched map[uuid.UUID]struct{}
}

// NewService creates a scheduler
func NewService(
	former BatchFormer,
	janitor ChunkJanitor,
	batches repositories.BatchRepository,
	analyzer analysis.Service,
	cfg *config.AnalysisConfig,
	logger *zap.Logger,
) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := config.DefaultAnalysis()
	if cfg != nil {
		c = *cfg
	}
	return &scheduler{
		former:     former,
		janitor:    janitor,
		batches:    batches,
		analyzer:   analyzer,
		cfg:        c,
		logger:     logger,
		now:        time.Now,
		dispatched: make(map[uuid.UUID]struct{}),
		runCtx:     context.Background(),
		cancelRuns: func() {},
	}
}

func (s *scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.isRunning = true
	s.stopping = false
	s.stopChan = make(chan struct{})
	// runs outlive the caller's context and are cancelled by Stop
	s.runCtx, s.cancelRuns = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	s.logger.Info("🚀 Starting analysis scheduler",
		zap.Duration("interval", s.cfg.Interval),
		zap.String("mode", s.cfg.Mode),
		zap.Int("concurrency", s.cfg.DispatchConcurrency),
	)
	s.recover(ctx)

	s.loopWg.Add(1)
	go s.loop()
	return nil
}

// recover returns work orphaned by a previous process to a schedulable state
func (s *scheduler) recover(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.StaleProcessing)

	reset, err := s.batches.ResetStaleProcessing(ctx, cutoff)
	if err != nil {
		s.logger.Error("❌ Failed to reset stale batches", zap.Error(err))
	} else if reset > 0 {
		s.logger.Warn("🧹 Reset stale processing batches to pending", zap.Int64("count", reset))
	}

	if s.janitor == nil {
		return
	}
	if _, err := s.janitor.CleanupAbandoned(ctx, cutoff); err != nil {
		s.logger.Error("❌ Failed to clean up abandoned chunks", zap.Error(err))
	}
}

func (s *scheduler) loop() {
	defer s.loopWg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.cycle(s.runCtx)
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cycle(s.runCtx)
		}
	}
}

func (s *scheduler) cycle(ctx context.Context) {
	if _, err := s.TriggerNow(ctx); err != nil {
		s.logger.Error("❌ Scheduler cycle failed", zap.Error(err))
	}
}

func (s *scheduler) TriggerNow(ctx context.Context) (*CycleReport, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("⏭️ Cycle skipped, previous cycle still in flight")
		return &CycleReport{Skipped: true}, nil
	}
	defer s.inFlight.Store(false)

	formed, err := s.former.FormBatches(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to form batches: %w", err)
	}
	report := &CycleReport{Formed: len(formed)}

	pending, err := s.batches.ListByStatus(ctx, entities.BatchStatusPending, pendingPerCycle)
	if err != nil {
		return report, fmt.Errorf("failed to list pending batches: %w", err)
	}
	if len(pending) == 0 {
		return report, nil
	}

	if s.cfg.Mode == config.ModeSlidingWindow {
		// each window builds on the cards of the one before, so order matters
		report.Dispatched = s.dispatchSequential(ctx, pending)
		return report, nil
	}
	report.Dispatched = s.dispatchConcurrent(pending)
	return report, nil
}

func (s *scheduler) dispatchSequential(ctx context.Context, pending []entities.AnalysisBatch) int {
	dispatched := 0
	for _, b := range pending {
		if ctx.Err() != nil {
			break
		}
		dispatched++
		if err := s.process(jobcontext.WithWorkerID(ctx, 0), b.ID); errors.Is(err, ai.ErrNoProvider) {
			break
		}
	}
	return dispatched
}

// dispatchConcurrent hands pending batches to a bounded pool in the background.
// Batches already handed off by an earlier cycle are not dispatched again.
func (s *scheduler) dispatchConcurrent(pending []entities.AnalysisBatch) int {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return 0
	}
	ctx := s.runCtx
	var ids []uuid.UUID
	for _, b := range pending {
		if _, busy := s.dispatched[b.ID]; busy {
			continue
		}
		s.dispatched[b.ID] = struct{}{}
		ids = append(ids, b.ID)
	}
	if len(ids) == 0 {
		s.mu.Unlock()
		return 0
	}
	s.runWg.Add(1)
	s.mu.Unlock()

	limit := s.cfg.DispatchConcurrency
	if limit <= 0 {
		limit = 1
	}

	go func() {
		defer s.runWg.Done()
		defer s.release(ids)

		var g errgroup.Group
		g.SetLimit(limit)
		var noProvider atomic.Bool
		for i, id := range ids {
			id, slot := id, i%limit
			g.Go(func() error {
				if noProvider.Load() || ctx.Err() != nil {
					return nil
				}
				if err := s.process(jobcontext.WithWorkerID(ctx, slot), id); errors.Is(err, ai.ErrNoProvider) {
					noProvider.Store(true)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
	return len(ids)
}

func (s *scheduler) release(ids []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.dispatched, id)
	}
}

func (s *scheduler) process(ctx context.Context, id uuid.UUID) error {
	_, err := s.analyzer.ProcessBatch(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, ai.ErrNoProvider):
		// already logged by the orchestrator; retry next cycle
	case errors.Is(err, entities.ErrBatchNotPending):
		s.logger.Debug("⏭️ Batch already claimed", zap.String("batch_id", id.String()))
	default:
		s.logger.Error("❌ Batch dispatch failed",
			zap.String("batch_id", id.String()),
			zap.Error(err),
		)
	}
	return err
}

func (s *scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.isRunning = false
	s.stopping = true
	close(s.stopChan)
	cancelRuns := s.cancelRuns
	s.mu.Unlock()

	s.logger.Info("🛑 Stopping analysis scheduler...")

	done := make(chan struct{})
	go func() {
		s.loopWg.Wait()
		s.runWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancelRuns()
		s.logger.Info("✅ Analysis scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("⚠️ Cancelling in-flight batch runs")
		cancelRuns()
		<-done
		return ctx.Err()
	}
}

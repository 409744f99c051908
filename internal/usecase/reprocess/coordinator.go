package reprocess

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/domain/repositories"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/storage"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/analysis"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
	"github.com/johnquangdev/timeline-assistant/pkg/jobcontext"
)

var (
	// ErrNoBatches is returned when the target resolves to no batches
	ErrNoBatches = errors.New("no batches to reprocess")
	// ErrAllFailed is returned when every dispatched batch failed
	ErrAllFailed = errors.New("reprocessing failed for every batch")
)

// ProgressFunc receives human-readable status lines as a run advances
type ProgressFunc func(message string)

// BatchTiming records how one batch fared during a run
type BatchTiming struct {
	BatchID uuid.UUID            `json:"batch_id"`
	Status  entities.BatchStatus `json:"status"`
	Elapsed time.Duration        `json:"elapsed"`
	Error   string               `json:"error,omitempty"`
}

// Summary is the final result of a reprocessing run
type Summary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Timings   []BatchTiming `json:"timings"`
	Average   time.Duration `json:"average"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Service re-runs analysis for a logical day or an explicit batch set
type Service interface {
	ReprocessDay(ctx context.Context, day string, progress ProgressFunc) (*Summary, error)
	ReprocessBatches(ctx context.Context, ids []uuid.UUID, progress ProgressFunc) (*Summary, error)
}

type coordinator struct {
	batches      repositories.BatchRepository
	observations repositories.ObservationRepository
	cards        repositories.TimelineCardRepository
	media        storage.MediaStore
	analyzer     analysis.Service
	poll         time.Duration
	wait         time.Duration
	loc          *time.Location
	logger       *zap.Logger
}

// NewService creates a reprocessing coordinator
func NewService(
	batches repositories.BatchRepository,
	observations repositories.ObservationRepository,
	cards repositories.TimelineCardRepository,
	media storage.MediaStore,
	analyzer analysis.Service,
	cfg *config.AnalysisConfig,
	logger *zap.Logger,
) (Service, error) {
	c := config.DefaultAnalysis()
	if cfg != nil {
		c = *cfg
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &coordinator{
		batches:      batches,
		observations: observations,
		cards:        cards,
		media:        media,
		analyzer:     analyzer,
		poll:         c.ReprocessPoll,
		wait:         c.ReprocessWait,
		loc:          loc,
		logger:       logger,
	}, nil
}

func notify(progress ProgressFunc, format string, args ...interface{}) {
	if progress != nil {
		progress(fmt.Sprintf(format, args...))
	}
}

func (c *coordinator) ReprocessDay(ctx context.Context, day string, progress ProgressFunc) (*Summary, error) {
	start, end, err := entities.DayBounds(day, c.loc)
	if err != nil {
		return nil, err
	}
	overlapping, err := c.batches.ListInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	var ids []uuid.UUID
	for _, b := range overlapping {
		// a batch belongs to the day it starts in
		if entities.LogicalDay(b.StartTs, c.loc) == day {
			ids = append(ids, b.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoBatches, day)
	}

	c.logger.Info("🔁 Reprocessing day",
		zap.String("day", day),
		zap.Int("batches", len(ids)),
	)
	notify(progress, "Found %d batches for %s", len(ids), day)

	refs, err := c.cards.DeleteForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to delete cards for %s: %w", day, err)
	}
	c.removeRefs(ctx, refs)
	notify(progress, "Deleted timeline cards for %s", day)

	return c.run(ctx, ids, progress)
}

func (c *coordinator) ReprocessBatches(ctx context.Context, ids []uuid.UUID, progress ProgressFunc) (*Summary, error) {
	if len(ids) == 0 {
		return nil, ErrNoBatches
	}

	seen := make(map[uuid.UUID]bool, len(ids))
	targets := make([]entities.AnalysisBatch, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		b, err := c.batches.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, fmt.Errorf("%w: %s", entities.ErrBatchNotFound, id)
		}
		targets = append(targets, *b)
	}
	sortByStart(targets)

	c.logger.Info("🔁 Reprocessing batches", zap.Int("batches", len(targets)))
	notify(progress, "Reprocessing %d batches", len(targets))

	// only the cards inside the targeted batches' spans are cleared
	ordered := make([]uuid.UUID, 0, len(targets))
	for _, b := range targets {
		refs, err := c.cards.ReplaceInRange(ctx, b.StartTs, b.EndTs, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to delete cards for batch %s: %w", b.ID, err)
		}
		c.removeRefs(ctx, refs)
		ordered = append(ordered, b.ID)
	}
	notify(progress, "Deleted timeline cards for the selected batches")

	return c.run(ctx, ordered, progress)
}

// run clears observations, resets and then dispatches batches one at a time
func (c *coordinator) run(ctx context.Context, ids []uuid.UUID, progress ProgressFunc) (*Summary, error) {
	started := time.Now()

	removed, err := c.observations.DeleteForBatches(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to delete observations: %w", err)
	}
	reset, err := c.batches.ResetToPending(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to reset batches: %w", err)
	}
	notify(progress, "Cleared %d observations and reset %d batches to pending", removed, reset)

	summary := &Summary{Total: len(ids)}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		notify(progress, "Processing batch %d of %d", i+1, len(ids))

		timing, err := c.dispatch(ctx, id)
		if err != nil && errors.Is(err, ai.ErrNoProvider) {
			notify(progress, "Stopped: %v", err)
			summary.Elapsed = time.Since(started)
			return summary, err
		}
		summary.Timings = append(summary.Timings, timing)

		switch timing.Status {
		case entities.BatchStatusAnalyzed:
			summary.Succeeded++
			notify(progress, "Batch %d of %d analyzed in %s", i+1, len(ids), timing.Elapsed.Round(time.Second))
		case entities.BatchStatusFailedEmpty, entities.BatchStatusSkippedShort:
			summary.Skipped++
			notify(progress, "Batch %d of %d skipped (%s)", i+1, len(ids), timing.Status)
		default:
			summary.Failed++
			notify(progress, "Batch %d of %d failed: %s", i+1, len(ids), timing.Error)
		}
	}

	summary.Elapsed = time.Since(started)
	if n := len(summary.Timings); n > 0 {
		var total time.Duration
		for _, t := range summary.Timings {
			total += t.Elapsed
		}
		summary.Average = total / time.Duration(n)
	}
	notify(progress, "Done: %d analyzed, %d failed, %d skipped in %s (average %s per batch)",
		summary.Succeeded, summary.Failed, summary.Skipped,
		summary.Elapsed.Round(time.Second), summary.Average.Round(time.Second))

	c.logger.Info("✅ Reprocessing finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("elapsed", summary.Elapsed),
	)

	if summary.Failed > 0 && summary.Succeeded == 0 && summary.Skipped == 0 {
		return summary, ErrAllFailed
	}
	return summary, nil
}

// dispatch processes one batch. A batch already claimed by a live run is waited
// on, then reset and processed again so its output reflects this request.
func (c *coordinator) dispatch(ctx context.Context, id uuid.UUID) (BatchTiming, error) {
	started := time.Now()
	timing := BatchTiming{BatchID: id}
	ctx = jobcontext.WithJobType(ctx, jobcontext.JobTypeReprocess)

	result, err := c.analyzer.ProcessBatch(ctx, id)
	if errors.Is(err, entities.ErrBatchNotPending) {
		c.logger.Info("⏳ Batch busy, waiting for its current run",
			zap.String("batch_id", id.String()),
		)
		if _, werr := c.awaitTerminal(ctx, id); werr != nil {
			err = werr
		} else if _, rerr := c.batches.ResetToPending(ctx, []uuid.UUID{id}); rerr != nil {
			err = rerr
		} else {
			if _, derr := c.observations.DeleteForBatches(ctx, []uuid.UUID{id}); derr != nil {
				c.logger.Warn("⚠️ Failed to clear observations", zap.String("batch_id", id.String()), zap.Error(derr))
			}
			result, err = c.analyzer.ProcessBatch(ctx, id)
		}
	}

	timing.Elapsed = time.Since(started)
	if err != nil {
		timing.Status = entities.BatchStatusFailed
		timing.Error = err.Error()
		c.logger.Error("❌ Reprocessing batch failed",
			zap.String("batch_id", id.String()),
			zap.Error(err),
		)
		return timing, err
	}
	timing.Status = result.Status
	timing.Error = result.FailureReason
	return timing, nil
}

// awaitTerminal polls the batch until a run finishes with it, bounded by the wait limit
func (c *coordinator) awaitTerminal(ctx context.Context, id uuid.UUID) (*entities.AnalysisBatch, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.wait)
	defer cancel()

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		b, err := c.batches.FindByID(waitCtx, id)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, entities.ErrBatchNotFound
		}
		if b.Status.IsTerminal() {
			return b, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("batch %s still %s: %w", id, b.Status, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (c *coordinator) removeRefs(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := c.media.Remove(ctx, ref); err != nil {
			c.logger.Warn("⚠️ Failed to remove video summary",
				zap.String("ref", ref),
				zap.Error(err),
			)
		}
	}
}

func sortByStart(batches []entities.AnalysisBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].StartTs.Before(batches[j].StartTs)
	})
}

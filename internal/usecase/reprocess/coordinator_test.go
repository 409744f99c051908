package reprocess

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/internal/adapter/repository"
	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/database"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/storage"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/analysis"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
	"github.com/johnquangdev/timeline-assistant/pkg/jobcontext"
)

var nine = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

// stubAnalyzer claims and completes batches against the real repository
type stubAnalyzer struct {
	batches *repository.BatchRepository

	mu       sync.Mutex
	calls    []uuid.UUID
	jobTypes []string
	status   map[uuid.UUID]entities.BatchStatus
	err      error
}

func (a *stubAnalyzer) ProcessBatch(ctx context.Context, id uuid.UUID) (*analysis.RunResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, id)
	jobType, _ := jobcontext.GetJobType(ctx)
	a.jobTypes = append(a.jobTypes, jobType)
	status, ok := a.status[id]
	err := a.err
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		status = entities.BatchStatusAnalyzed
	}

	claimed, err := a.batches.ClaimPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, entities.ErrBatchNotPending
	}
	outcome := entities.BatchOutcome{Status: status}
	if status == entities.BatchStatusFailed {
		outcome.FailureReason = "synthesis failed"
	}
	if err := a.batches.MarkTerminal(ctx, id, outcome); err != nil {
		return nil, err
	}
	return &analysis.RunResult{BatchID: id, Status: status, FailureReason: outcome.FailureReason}, nil
}

func (a *stubAnalyzer) calledWith() []uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uuid.UUID(nil), a.calls...)
}

type fixture struct {
	batches      *repository.BatchRepository
	observations *repository.ObservationRepository
	cards        *repository.TimelineCardRepository
	media        *storage.LocalStore
	root         string
	analyzer     *stubAnalyzer
	svc          Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewSQLiteMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	root := t.TempDir()
	media, err := storage.NewLocalStore(root)
	require.NoError(t, err)

	f := &fixture{
		batches:      repository.NewBatchRepository(db),
		observations: repository.NewObservationRepository(db),
		cards:        repository.NewTimelineCardRepository(db, time.UTC),
		media:        media,
		root:         root,
	}
	f.analyzer = &stubAnalyzer{batches: f.batches, status: map[uuid.UUID]entities.BatchStatus{}}

	cfg := config.DefaultAnalysis()
	cfg.Timezone = "UTC"
	cfg.ReprocessPoll = 5 * time.Millisecond
	cfg.ReprocessWait = 2 * time.Second
	f.svc, err = NewService(f.batches, f.observations, f.cards, media, f.analyzer, &cfg, zap.NewNop())
	require.NoError(t, err)
	return f
}

// seedAnalyzed stores an analyzed batch with one observation and one card carrying a video summary
func (f *fixture) seedAnalyzed(t *testing.T, start time.Time) *entities.AnalysisBatch {
	t.Helper()
	ctx := context.Background()
	end := start.Add(30 * time.Minute)

	b := entities.NewAnalysisBatch(start, end)
	require.NoError(t, f.batches.CreateWithChunks(ctx, b, []uuid.UUID{uuid.New()}))
	claimed, err := f.batches.ClaimPending(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, f.batches.MarkTerminal(ctx, b.ID, entities.BatchOutcome{Status: entities.BatchStatusAnalyzed}))

	require.NoError(t, f.observations.SaveAll(ctx, []*entities.Observation{
		entities.NewObservation(b.ID, start, end, "editing code", "fake"),
	}))

	ref := "summaries/" + b.ID.String() + ".mp4"
	path := filepath.Join(f.root, filepath.FromSlash(ref))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("clip"), 0o644))

	_, err = f.cards.ReplaceInRange(ctx, start, end, []*entities.TimelineCard{{
		ID:              uuid.New(),
		BatchID:         b.ID,
		StartTs:         start,
		EndTs:           end,
		Day:             entities.LogicalDay(start, time.UTC),
		Title:           "Coding",
		VideoSummaryRef: &ref,
		Validated:       true,
	}})
	require.NoError(t, err)
	return b
}

func (f *fixture) refExists(b *entities.AnalysisBatch) bool {
	_, err := os.Stat(filepath.Join(f.root, "summaries", b.ID.String()+".mp4"))
	return err == nil
}

func TestReprocessDay_ClearsAndRerunsInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	second := f.seedAnalyzed(t, nine.Add(30*time.Minute))
	first := f.seedAnalyzed(t, nine)
	nextDay := f.seedAnalyzed(t, nine.Add(24*time.Hour))

	var messages []string
	summary, err := f.svc.ReprocessDay(ctx, "2024-03-10", func(m string) { messages = append(messages, m) })
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	require.Len(t, summary.Timings, 2)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, f.analyzer.calledWith())
	assert.Equal(t, []string{jobcontext.JobTypeReprocess, jobcontext.JobTypeReprocess}, f.analyzer.jobTypes)

	cards, err := f.cards.ListForDay(ctx, "2024-03-10")
	require.NoError(t, err)
	assert.Empty(t, cards)
	assert.False(t, f.refExists(first))
	assert.False(t, f.refExists(second))

	obs, err := f.observations.ListForBatch(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, obs)

	// other days are untouched
	assert.True(t, f.refExists(nextDay))
	kept, err := f.cards.ListForDay(ctx, "2024-03-11")
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	require.NotEmpty(t, messages)
	assert.Contains(t, messages[0], "Found 2 batches")
	assert.Contains(t, messages[len(messages)-1], "2 analyzed")
}

func TestReprocessDay_BatchBelongsToItsStartDay(t *testing.T) {
	f := newFixture(t)
	// starts before the 04:00 boundary, so it belongs to the 10th
	late := f.seedAnalyzed(t, time.Date(2024, 3, 11, 3, 45, 0, 0, time.UTC))

	summary, err := f.svc.ReprocessDay(context.Background(), "2024-03-10", nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{late.ID}, f.analyzer.calledWith())
	assert.Equal(t, 1, summary.Total)

	_, err = f.svc.ReprocessDay(context.Background(), "2024-03-11", nil)
	assert.ErrorIs(t, err, ErrNoBatches)
}

func TestReprocessDay_InvalidDay(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReprocessDay(context.Background(), "03/10/2024", nil)
	assert.ErrorIs(t, err, entities.ErrInvalidDay)
}

func TestReprocessBatches_OnlyClearsSelectedSpans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.seedAnalyzed(t, nine)
	second := f.seedAnalyzed(t, nine.Add(30*time.Minute))

	summary, err := f.svc.ReprocessBatches(ctx, []uuid.UUID{second.ID, second.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, []uuid.UUID{second.ID}, f.analyzer.calledWith())

	cards, err := f.cards.ListForDay(ctx, "2024-03-10")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, first.ID, cards[0].BatchID)
	assert.True(t, f.refExists(first))
	assert.False(t, f.refExists(second))
}

func TestReprocessBatches_RunsInStartOrder(t *testing.T) {
	f := newFixture(t)
	third := f.seedAnalyzed(t, nine.Add(time.Hour))
	first := f.seedAnalyzed(t, nine)
	second := f.seedAnalyzed(t, nine.Add(30*time.Minute))

	summary, err := f.svc.ReprocessBatches(context.Background(), []uuid.UUID{third.ID, first.ID, second.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID, third.ID}, f.analyzer.calledWith())
}

func TestReprocessBatches_UnknownBatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReprocessBatches(context.Background(), []uuid.UUID{uuid.New()}, nil)
	assert.ErrorIs(t, err, entities.ErrBatchNotFound)

	_, err = f.svc.ReprocessBatches(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoBatches)
}

func TestReprocessBatches_WaitsForInFlightRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := entities.NewAnalysisBatch(nine, nine.Add(30*time.Minute))
	require.NoError(t, f.batches.CreateWithChunks(ctx, b, []uuid.UUID{uuid.New()}))

	// a scheduler run owns the batch and finishes shortly
	claimed, err := f.batches.ClaimPending(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = f.batches.MarkTerminal(context.Background(), b.ID, entities.BatchOutcome{Status: entities.BatchStatusFailed, FailureReason: "old"})
	}()

	summary, err := f.svc.ReprocessBatches(ctx, []uuid.UUID{b.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Len(t, f.analyzer.calledWith(), 2, "first attempt finds it claimed, second re-runs it")

	stored, err := f.batches.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusAnalyzed, stored.Status)
}

func TestReprocess_CountsOutcomes(t *testing.T) {
	f := newFixture(t)
	ok := f.seedAnalyzed(t, nine)
	failed := f.seedAnalyzed(t, nine.Add(30*time.Minute))
	short := f.seedAnalyzed(t, nine.Add(time.Hour))
	f.analyzer.status[failed.ID] = entities.BatchStatusFailed
	f.analyzer.status[short.ID] = entities.BatchStatusSkippedShort

	summary, err := f.svc.ReprocessBatches(context.Background(), []uuid.UUID{ok.ID, failed.ID, short.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, "synthesis failed", summary.Timings[1].Error)
}

func TestReprocess_AllFailedIsAnError(t *testing.T) {
	f := newFixture(t)
	b := f.seedAnalyzed(t, nine)
	f.analyzer.status[b.ID] = entities.BatchStatusFailed

	summary, err := f.svc.ReprocessBatches(context.Background(), []uuid.UUID{b.ID}, nil)
	assert.ErrorIs(t, err, ErrAllFailed)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Failed)
}

func TestReprocess_AbortsWithoutProvider(t *testing.T) {
	f := newFixture(t)
	first := f.seedAnalyzed(t, nine)
	second := f.seedAnalyzed(t, nine.Add(30*time.Minute))
	f.analyzer.err = ai.ErrNoProvider

	_, err := f.svc.ReprocessBatches(context.Background(), []uuid.UUID{first.ID, second.ID}, nil)
	assert.True(t, errors.Is(err, ai.ErrNoProvider))
	assert.Len(t, f.analyzer.calledWith(), 1)

	// left pending for the scheduler to pick up later
	stored, err := f.batches.FindByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusPending, stored.Status)
}

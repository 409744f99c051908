package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/johnquangdev/timeline-assistant/internal/adapter/repository"
	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/database"
	"github.com/johnquangdev/timeline-assistant/internal/usecase/analysis"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

var base = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeFormer struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

func (f *fakeFormer) FormBatches(context.Context, time.Time) ([]*entities.AnalysisBatch, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return nil, nil
}

type fakeJanitor struct {
	mu     sync.Mutex
	before []time.Time
}

func (j *fakeJanitor) CleanupAbandoned(_ context.Context, before time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.before = append(j.before, before)
	return 0, nil
}

type fakeAnalyzer struct {
	mu        sync.Mutex
	calls     []uuid.UUID
	workers   []int
	active    int
	maxActive int
	delay     time.Duration
	err       error
}

func (a *fakeAnalyzer) ProcessBatch(ctx context.Context, id uuid.UUID) (*analysis.RunResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, id)
	a.active++
	if a.active > a.maxActive {
		a.maxActive = a.active
	}
	a.mu.Unlock()

	if a.delay > 0 {
		time.Sleep(a.delay)
	}

	a.mu.Lock()
	a.active--
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return &analysis.RunResult{BatchID: id, Status: entities.BatchStatusAnalyzed}, nil
}

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func setup(t *testing.T, mode string) (*gorm.DB, *repository.BatchRepository, *config.AnalysisConfig) {
	t.Helper()
	db, err := database.NewSQLiteMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	cfg := config.DefaultAnalysis()
	cfg.Mode = mode
	cfg.Interval = time.Hour
	cfg.DispatchConcurrency = 2
	return db, repository.NewBatchRepository(db), &cfg
}

func seedPending(t *testing.T, repo *repository.BatchRepository, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		start := base.Add(time.Duration(i) * 15 * time.Minute)
		b := entities.NewAnalysisBatch(start, start.Add(15*time.Minute))
		require.NoError(t, repo.CreateWithChunks(context.Background(), b, []uuid.UUID{uuid.New()}))
		ids = append(ids, b.ID)
	}
	return ids
}

func TestTriggerNow_WholeModeDispatchesConcurrentlyWithLimit(t *testing.T) {
	_, repo, cfg := setup(t, config.ModeWholeBatch)
	ids := seedPending(t, repo, 5)
	analyzer := &fakeAnalyzer{delay: 20 * time.Millisecond}
	svc := NewService(&fakeFormer{}, nil, repo, analyzer, cfg, zap.NewNop())

	report, err := svc.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Dispatched)

	require.Eventually(t, func() bool { return analyzer.callCount() == 5 }, 2*time.Second, 5*time.Millisecond)
	analyzer.mu.Lock()
	defer analyzer.mu.Unlock()
	assert.LessOrEqual(t, analyzer.maxActive, cfg.DispatchConcurrency)
	assert.ElementsMatch(t, ids, analyzer.calls)
}

func TestTriggerNow_DoesNotRedispatchBatchesInFlight(t *testing.T) {
	_, repo, cfg := setup(t, config.ModeWholeBatch)
	seedPending(t, repo, 2)
	analyzer := &fakeAnalyzer{delay: 100 * time.Millisecond}
	svc := NewService(&fakeFormer{}, nil, repo, analyzer, cfg, zap.NewNop())

	first, err := svc.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Dispatched)

	second, err := svc.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Dispatched, "still pending but already handed off")
}

func TestTriggerNow_SingleInFlightCycle(t *testing.T) {
	_, repo, cfg := setup(t, config.ModeWholeBatch)
	former := &fakeFormer{gate: make(chan struct{})}
	svc := NewService(former, nil, repo, &fakeAnalyzer{}, cfg, zap.NewNop())

	done := make(chan *CycleReport)
	go func() {
		report, _ := svc.TriggerNow(context.Background())
		done <- report
	}()
	require.Eventually(t, func() bool {
		former.mu.Lock()
		defer former.mu.Unlock()
		return former.calls == 1
	}, time.Second, time.Millisecond)

	skipped, err := svc.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.True(t, skipped.Skipped)

	close(former.gate)
	report := <-done
	assert.False(t, report.Skipped)
}

func TestTriggerNow_SlidingModeIsSequentialInStartOrder(t *testing.T) {
	_, repo, cfg := setup(t, config.ModeSlidingWindow)
	ids := seedPending(t, repo, 3)
	analyzer := &fakeAnalyzer{delay: 5 * time.Millisecond}
	svc := NewService(&fakeFormer{}, nil, repo, analyzer, cfg, zap.NewNop())

	report, err := svc.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Dispatched)

	// sequential dispatch has finished by the time the cycle returns
	assert.Equal(t, ids, analyzer.calls)
	assert.Equal(t, 1, analyzer.maxActive)
}

func TestTriggerNow_StopsCycleWithoutProvider(t *testing.T) {
	_, repo, cfg := setup(t, config.ModeSlidingWindow)
	seedPending(t, repo, 3)
	analyzer := &fakeAnalyzer{err: ai.ErrNoProvider}
	svc := NewService(&fakeFormer{}, nil, repo, analyzer, cfg, zap.NewNop())

	_, err := svc.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, analyzer.callCount())
}

func TestStartRecoversAndStop(t *testing.T) {
	ctx := context.Background()
	db, repo, cfg := setup(t, config.ModeWholeBatch)
	ids := seedPending(t, repo, 1)

	ok, err := repo.ClaimPending(ctx, ids[0])
	require.NoError(t, err)
	require.True(t, ok)
	// left processing by a crashed run
	require.NoError(t, db.Model(&entities.AnalysisBatch{}).
		Where("id = ?", ids[0]).
		Update("updated_at", base).Error)

	janitor := &fakeJanitor{}
	analyzer := &fakeAnalyzer{}
	svc := NewService(&fakeFormer{}, janitor, repo, analyzer, cfg, zap.NewNop())
	now := base.Add(2 * time.Hour)
	svc.(*scheduler).now = func() time.Time { return now }

	require.NoError(t, svc.Start(ctx))
	assert.ErrorIs(t, svc.Start(ctx), ErrAlreadyRunning)

	require.Eventually(t, func() bool { return analyzer.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	janitor.mu.Lock()
	require.Len(t, janitor.before, 1)
	assert.Equal(t, now.Add(-cfg.StaleProcessing), janitor.before[0])
	janitor.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(stopCtx))
	assert.ErrorIs(t, svc.Stop(stopCtx), ErrNotRunning)
}

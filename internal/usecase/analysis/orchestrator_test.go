package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/johnquangdev/timeline-assistant/internal/adapter/repository"
	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/database"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/storage"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
	"github.com/johnquangdev/timeline-assistant/pkg/jobcontext"
)

type fakeProvider struct {
	mu         sync.Mutex
	transcribe func(call int, req ai.TranscribeRequest) (*ai.TranscribeResult, error)
	synthesize func(call int, req ai.SynthesisRequest) (*ai.SynthesisResult, error)

	transcribeCalls int
	synthRequests   []ai.SynthesisRequest
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Transcribe(_ context.Context, req ai.TranscribeRequest) (*ai.TranscribeResult, error) {
	p.mu.Lock()
	p.transcribeCalls++
	call := p.transcribeCalls
	p.mu.Unlock()
	return p.transcribe(call, req)
}

func (p *fakeProvider) Synthesize(_ context.Context, req ai.SynthesisRequest) (*ai.SynthesisResult, error) {
	p.mu.Lock()
	p.synthRequests = append(p.synthRequests, req)
	call := len(p.synthRequests)
	p.mu.Unlock()
	return p.synthesize(call, req)
}

func (p *fakeProvider) calls() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transcribeCalls, len(p.synthRequests)
}

type fakeResolver struct {
	provider ai.Provider
	err      error
}

func (r fakeResolver) Resolve(context.Context) (ai.Provider, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.provider, nil
}

type fakeAssembler struct {
	dir        string
	mu         sync.Mutex
	combined   [][]string
	timelapses int
}

func (a *fakeAssembler) TempDir(prefix string) (string, error) {
	return os.MkdirTemp(a.dir, prefix)
}

func (a *fakeAssembler) Combine(_ context.Context, inputs []string, out string) error {
	a.mu.Lock()
	a.combined = append(a.combined, inputs)
	a.mu.Unlock()
	return os.WriteFile(out, []byte("combined"), 0o644)
}

func (a *fakeAssembler) Timelapse(_ context.Context, _ string, _, _ time.Duration, out string) error {
	a.mu.Lock()
	a.timelapses++
	a.mu.Unlock()
	return os.WriteFile(out, []byte("timelapse"), 0o644)
}

type harness struct {
	db           *gorm.DB
	chunks       *repository.ChunkRepository
	batches      *repository.BatchRepository
	observations *repository.ObservationRepository
	cards        *repository.TimelineCardRepository
	media        *storage.LocalStore
	root         string
	assembler    *fakeAssembler
	provider     *fakeProvider
	cfg          config.AnalysisConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.NewSQLiteMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	root := t.TempDir()
	media, err := storage.NewLocalStore(root)
	require.NoError(t, err)

	cfg := config.DefaultAnalysis()
	cfg.Timezone = "UTC"
	cfg.RetryBaseDelay = time.Millisecond
	cfg.TransientRetries = 2

	return &harness{
		db:           db,
		chunks:       repository.NewChunkRepository(db),
		batches:      repository.NewBatchRepository(db),
		observations: repository.NewObservationRepository(db),
		cards:        repository.NewTimelineCardRepository(db, time.UTC),
		media:        media,
		root:         root,
		assembler:    &fakeAssembler{dir: t.TempDir()},
		provider:     &fakeProvider{},
		cfg:          cfg,
	}
}

func (h *harness) service(t *testing.T, resolver ProviderResolver) Service {
	t.Helper()
	return h.serviceWithLogger(t, resolver, zap.NewNop())
}

func (h *harness) serviceWithLogger(t *testing.T, resolver ProviderResolver, logger *zap.Logger) Service {
	t.Helper()
	if resolver == nil {
		resolver = fakeResolver{provider: h.provider}
	}
	svc, err := NewService(Deps{
		Batches:      h.batches,
		Observations: h.observations,
		Cards:        h.cards,
		Resolver:     resolver,
		Media:        h.media,
		Assembler:    h.assembler,
		Analysis:     &h.cfg,
		LLM:          &config.LLMConfig{},
		Logger:       logger,
	})
	require.NoError(t, err)
	return svc
}

// seedBatch stores one-minute chunks with media files and a pending batch over them
func (h *harness) seedBatch(t *testing.T, start time.Time, minutes int) *entities.AnalysisBatch {
	t.Helper()
	ctx := context.Background()
	ids := make([]uuid.UUID, 0, minutes)
	for i := 0; i < minutes; i++ {
		ref := fmt.Sprintf("chunks/%s-%02d.mp4", start.Format("150405"), i)
		require.NoError(t, os.MkdirAll(filepath.Join(h.root, "chunks"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(h.root, filepath.FromSlash(ref)), []byte("x"), 0o644))

		c := entities.NewRecordingChunk(ref, start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, h.chunks.Create(ctx, c))
		require.NoError(t, h.chunks.Complete(ctx, c.ID, start.Add(time.Duration(i+1)*time.Minute)))
		ids = append(ids, c.ID)
	}
	batch := entities.NewAnalysisBatch(start, start.Add(time.Duration(minutes)*time.Minute))
	require.NoError(t, h.batches.CreateWithChunks(ctx, batch, ids))
	return batch
}

func (h *harness) batch(t *testing.T, id uuid.UUID) *entities.AnalysisBatch {
	t.Helper()
	b, err := h.batches.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

func wholeClip(minutes int, text string) func(int, ai.TranscribeRequest) (*ai.TranscribeResult, error) {
	return func(int, ai.TranscribeRequest) (*ai.TranscribeResult, error) {
		return &ai.TranscribeResult{
			Model:    "fake-vision",
			Segments: []ai.Segment{{Start: 0, End: time.Duration(minutes) * time.Minute, Description: text}},
		}, nil
	}
}

func cardsOf(drafts ...ai.CardDraft) func(int, ai.SynthesisRequest) (*ai.SynthesisResult, error) {
	return func(int, ai.SynthesisRequest) (*ai.SynthesisResult, error) {
		return &ai.SynthesisResult{Model: "fake-text", Cards: drafts}, nil
	}
}

func draft(title, from, to string) ai.CardDraft {
	return ai.CardDraft{StartTime: from, EndTime: to, Title: title, Category: "Work", Summary: title}
}

func TestProcessBatch_WholeBatchHappyPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	batch := h.seedBatch(t, nine, 15)

	h.provider.transcribe = func(int, ai.TranscribeRequest) (*ai.TranscribeResult, error) {
		return &ai.TranscribeResult{Model: "fake-vision", Segments: []ai.Segment{
			{Start: 0, End: 5 * time.Minute, Description: "Editing Go code"},
			{Start: 5 * time.Minute, End: 15 * time.Minute, Description: "Reviewing a pull request"},
		}}, nil
	}
	h.provider.synthesize = cardsOf(
		draft("Coding", "9:00 AM", "9:10 AM"),
		draft("Code review", "9:10 AM", "9:15 AM"),
	)

	result, err := h.service(t, nil).ProcessBatch(ctx, batch.ID)
	require.NoError(t, err)

	assert.Equal(t, entities.BatchStatusAnalyzed, result.Status)
	assert.Equal(t, 2, result.Observations)
	assert.Equal(t, 2, result.Cards)
	assert.False(t, result.Unvalidated)

	require.Len(t, h.assembler.combined, 1)
	assert.Len(t, h.assembler.combined[0], 15)

	stored := h.batch(t, batch.ID)
	assert.Equal(t, entities.BatchStatusAnalyzed, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	require.Len(t, stored.CallLog, 2)
	assert.Equal(t, OpTranscribe, stored.CallLog[0].Operation)
	assert.Equal(t, OpSynthesize, stored.CallLog[1].Operation)
	assert.Equal(t, "fake", stored.CallLog[1].Provider)

	obs, err := h.observations.ListForBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.True(t, obs[1].StartTs.Equal(at(5)))
	assert.Equal(t, "fake-vision", obs[1].ModelID)

	cards, err := h.cards.ListForDay(ctx, "2024-03-10")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.True(t, cards[0].StartTs.Equal(at(0)))
	assert.True(t, cards[1].EndTs.Equal(at(15)))
	assert.True(t, cards[0].Validated)

	_, synths := h.provider.calls()
	require.Equal(t, 1, synths)
	req := h.provider.synthRequests[0]
	assert.True(t, req.WindowStart.Equal(at(0)))
	assert.True(t, req.WindowEnd.Equal(at(15)))
	assert.Empty(t, req.Violation)
}

func TestProcessBatch_CoverageShortfallRetriesWithGapDescription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	batch := h.seedBatch(t, nine, 60)

	h.provider.transcribe = wholeClip(60, "Writing a design document")
	h.provider.synthesize = func(call int, _ ai.SynthesisRequest) (*ai.SynthesisResult, error) {
		if call == 1 {
			return &ai.SynthesisResult{Cards: []ai.CardDraft{draft("Design doc", "9:00 AM", "9:42 AM")}}, nil
		}
		return &ai.SynthesisResult{Cards: []ai.CardDraft{
			draft("Design doc", "9:00 AM", "9:30 AM"),
			draft("Design doc review", "9:30 AM", "10:00 AM"),
		}}, nil
	}

	result, err := h.service(t, nil).ProcessBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusAnalyzed, result.Status)
	assert.False(t, result.Unvalidated)

	_, synths := h.provider.calls()
	require.Equal(t, 2, synths)
	retry := h.provider.synthRequests[1].Violation
	assert.Contains(t, retry, "70%")
	assert.Contains(t, retry, "9:42 AM - 10:00 AM")

	system, prompt := ai.SynthesisPrompt(h.provider.synthRequests[1])
	assert.NotEmpty(t, system)
	assert.Contains(t, prompt, "previous answer was rejected")
	assert.Contains(t, prompt, "9:42 AM - 10:00 AM")

	cards, err := h.cards.ListForDay(ctx, "2024-03-10")
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestProcessBatch_BestEffortAfterExhaustingValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	batch := h.seedBatch(t, nine, 30)

	h.provider.transcribe = wholeClip(30, "Coding")
	h.provider.synthesize = cardsOf(
		draft("Coding", "9:00 AM", "9:20 AM"),
		draft("Email", "9:15 AM", "9:30 AM"),
	)

	result, err := h.service(t, nil).ProcessBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusAnalyzed, result.Status)
	assert.True(t, result.Unvalidated)

	_, synths := h.provider.calls()
	assert.Equal(t, h.cfg.ValidationAttempts, synths)

	stored := h.batch(t, batch.ID)
	assert.True(t, stored.Unvalidated)

	cards, err := h.cards.ListForDay(ctx, "2024-03-10")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	for _, c := range cards {
		assert.False(t, c.Validated)
	}
	assert.False(t, cards[1].StartTs.Before(cards[0].EndTs), "stored cards never overlap")
}

func TestProcessBatch_BestEffortKeepsEarlierCards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	earlier := &entities.TimelineCard{
		ID:        uuid.New(),
		BatchID:   uuid.New(),
		StartTs:   at(-60),
		EndTs:     at(-15),
		Day:       "2024-03-10",
		Category:  "Work",
		Title:     "Email triage",
		Validated: true,
	}
	_, err := h.cards.ReplaceInRange(ctx, earlier.StartTs, earlier.EndTs, []*entities.TimelineCard{earlier})
	require.NoError(t, err)

	batch := h.seedBatch(t, nine, 15)
	h.provider.transcribe = wholeClip(15, "Coding")
	// reaches back over the earlier batch on every attempt
	h.provider.synthesize = cardsOf(draft("Coding", "8:00 AM", "9:15 AM"))

	result, err := h.service(t, nil).ProcessBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, result.Unvalidated)

	cards, err := h.cards.ListForDay(ctx, "2024-03-10")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "Email triage", cards[0].Title)
	assert.True(t, cards[0].Validated)
	assert.True(t, cards[0].EndTs.Equal(at(-15)))
	assert.Equal(t, "Coding", cards[1].Title)
	assert.True(t, cards[1].StartTs.Equal(at(0)), "unvalidated card is clamped to its window")
	assert.True(t, cards[1].EndTs.Equal(at(15)))
}

func TestProcessBatch_ShortBatchSkippedWithoutProviderCalls(t *testing.T) {
	h := newHarness(t)
	batch := h.seedBatch(t, nine, 2)

	result, err := h.service(t, nil).ProcessBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusSkippedShort, result.Status)

	transcribes, synths := h.provider.calls()
	assert.Zero(t, transcribes)
	assert.Zero(t, synths)
	assert.Empty(t, h.assembler.combined)

	stored := h.batch(t, batch.ID)
	assert.Equal(t, entities.BatchStatusSkippedShort, stored.Status)
	require.NotNil(t, stored.FailureReason)
}

func TestProcessBatch_BatchWithoutChunksFailsEmpty(t *testing.T) {
	h := newHarness(t)
	batch := entities.NewAnalysisBatch(nine, at(15))
	require.NoError(t, h.db.Create(batch).Error)

	result, err := h.service(t, nil).ProcessBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusFailedEmpty, result.Status)

	transcribes, _ := h.provider.calls()
	assert.Zero(t, transcribes)
}

func TestProcessBatch_NoProviderLeavesBatchPending(t *testing.T) {
	h := newHarness(t)
	batch := h.seedBatch(t, nine, 15)

	_, err := h.service(t, fakeResolver{err: ai.ErrNoProvider}).ProcessBatch(context.Background(), batch.ID)
	require.ErrorIs(t, err, ai.ErrNoProvider)

	stored := h.batch(t, batch.ID)
	assert.Equal(t, entities.BatchStatusPending, stored.Status)
	assert.Nil(t, stored.StartedAt)
}

func TestProcessBatch_TransientErrorsRetried(t *testing.T) {
	h := newHarness(t)
	batch := h.seedBatch(t, nine, 15)

	h.provider.transcribe = func(call int, req ai.TranscribeRequest) (*ai.TranscribeResult, error) {
		if call < 3 {
			return nil, &ai.StatusError{Provider: "fake", StatusCode: 503, Body: "overloaded"}
		}
		return wholeClip(15, "Coding")(call, req)
	}
	h.provider.synthesize = cardsOf(draft("Coding", "9:00 AM", "9:15 AM"))

	result, err := h.service(t, nil).ProcessBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusAnalyzed, result.Status)

	stored := h.batch(t, batch.ID)
	require.Len(t, stored.CallLog, 4)
	assert.Equal(t, 1, stored.CallLog[0].Attempt)
	assert.Contains(t, stored.CallLog[0].Error, "503")
	assert.Equal(t, 3, stored.CallLog[2].Attempt)
	assert.Empty(t, stored.CallLog[2].Error)
}

func TestProcessBatch_ExhaustedRetriesFailBatch(t *testing.T) {
	h := newHarness(t)
	batch := h.seedBatch(t, nine, 15)

	h.provider.transcribe = func(int, ai.TranscribeRequest) (*ai.TranscribeResult, error) {
		return nil, &ai.RateLimitError{Provider: "fake", RetryAfter: time.Millisecond, Message: "slow down"}
	}

	result, err := h.service(t, nil).ProcessBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusFailed, result.Status)
	assert.Contains(t, result.FailureReason, "transcription failed")

	transcribes, synths := h.provider.calls()
	assert.Equal(t, 1+h.cfg.TransientRetries, transcribes)
	assert.Zero(t, synths)

	stored := h.batch(t, batch.ID)
	assert.Equal(t, entities.BatchStatusFailed, stored.Status)
	assert.Len(t, stored.CallLog, 1+h.cfg.TransientRetries)
}

func TestProcessBatch_SynthesisFailureKeepsObservations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	batch := h.seedBatch(t, nine, 15)

	h.provider.transcribe = wholeClip(15, "Coding")
	h.provider.synthesize = func(int, ai.SynthesisRequest) (*ai.SynthesisResult, error) {
		return nil, errors.New("invalid api key")
	}

	result, err := h.service(t, nil).ProcessBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusFailed, result.Status)

	obs, err := h.observations.ListForBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, obs, 1)
}

func TestProcessBatch_ClaimedBatchIsNotProcessedTwice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	batch := h.seedBatch(t, nine, 15)

	ok, err := h.batches.ClaimPending(ctx, batch.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.service(t, nil).ProcessBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, entities.ErrBatchNotPending)

	_, err = h.service(t, nil).ProcessBatch(ctx, uuid.New())
	assert.ErrorIs(t, err, entities.ErrBatchNotFound)
}

func TestProcessBatch_ContinuationReplacesPreviousCard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	earlier := h.seedBatch(t, at(-15), 15)
	h.provider.transcribe = wholeClip(15, "Design review")
	h.provider.synthesize = cardsOf(draft("Design review", "8:45 AM", "9:00 AM"))
	svc := h.service(t, nil)
	_, err := svc.ProcessBatch(ctx, earlier.ID)
	require.NoError(t, err)

	batch := h.seedBatch(t, nine, 15)
	h.provider.synthesize = cardsOf(draft("Design review", "8:45 AM", "9:15 AM"))
	result, err := svc.ProcessBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusAnalyzed, result.Status)
	assert.False(t, result.Unvalidated)

	req := h.provider.synthRequests[len(h.provider.synthRequests)-1]
	require.Len(t, req.PriorCards, 1)
	assert.Equal(t, "Design review", req.PriorCards[0].Title)

	cards, err := h.cards.ListForDay(ctx, "2024-03-10")
	require.NoError(t, err)
	require.Len(t, cards, 1, "continuation replaces the earlier card")
	assert.True(t, cards[0].StartTs.Equal(at(-15)))
	assert.True(t, cards[0].EndTs.Equal(at(15)))
	assert.Equal(t, batch.ID, cards[0].BatchID)
}

func TestProcessBatch_SlidingWindowSnapsToStraddlingCard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.cfg.Mode = config.ModeSlidingWindow
	svc := h.service(t, nil)

	// a stored card from 8:40 to 9:20 straddles the window start at 9:15
	first := h.seedBatch(t, at(-20), 40)
	h.provider.transcribe = wholeClip(40, "Coding")
	h.provider.synthesize = cardsOf(draft("Coding", "8:40 AM", "9:20 AM"))
	_, err := svc.ProcessBatch(ctx, first.ID)
	require.NoError(t, err)

	second := h.seedBatch(t, at(20), 55)
	h.provider.transcribe = wholeClip(55, "Writing")
	h.provider.synthesize = cardsOf(
		draft("Coding", "8:40 AM", "9:30 AM"),
		draft("Writing", "9:30 AM", "10:15 AM"),
	)
	result, err := svc.ProcessBatch(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusAnalyzed, result.Status)

	req := h.provider.synthRequests[len(h.provider.synthRequests)-1]
	assert.True(t, req.WindowStart.Equal(at(-20)), "window snapped back to the straddling card")
	assert.True(t, req.WindowEnd.Equal(at(75)))
	assert.Len(t, req.Observations, 2, "observations from both batches")

	cards, err := h.cards.ListForDay(ctx, "2024-03-10")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "Coding", cards[0].Title)
	assert.True(t, cards[0].EndTs.Equal(at(30)))
	assert.Equal(t, second.ID, cards[0].BatchID)
}

func TestProcessBatch_VideoSummaries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.cfg.VideoSummaries = true
	batch := h.seedBatch(t, nine, 15)

	h.provider.transcribe = wholeClip(15, "Coding")
	h.provider.synthesize = cardsOf(draft("Coding", "9:00 AM", "9:15 AM"))

	result, err := h.service(t, nil).ProcessBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BatchStatusAnalyzed, result.Status)
	assert.Equal(t, 1, h.assembler.timelapses)

	cards, err := h.cards.ListForDay(ctx, "2024-03-10")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.NotNil(t, cards[0].VideoSummaryRef)
	_, err = os.Stat(filepath.Join(h.root, filepath.FromSlash(*cards[0].VideoSummaryRef)))
	assert.NoError(t, err)
}

func TestProcessBatch_LogsJobType(t *testing.T) {
	h := newHarness(t)
	h.provider.transcribe = wholeClip(15, "Editing Go code")
	// one card covering whichever batch is being synthesized
	h.provider.synthesize = func(_ int, req ai.SynthesisRequest) (*ai.SynthesisResult, error) {
		obs := req.Observations[len(req.Observations)-1]
		return &ai.SynthesisResult{Model: "fake-text", Cards: []ai.CardDraft{
			draft("Coding", obs.Start.In(time.UTC).Format("3:04 PM"), obs.End.In(time.UTC).Format("3:04 PM")),
		}}, nil
	}

	core, logs := observer.New(zap.InfoLevel)
	svc := h.serviceWithLogger(t, nil, zap.New(core))

	scheduled := h.seedBatch(t, nine, 15)
	_, err := svc.ProcessBatch(jobcontext.WithWorkerID(context.Background(), 3), scheduled.ID)
	require.NoError(t, err)

	reprocessed := h.seedBatch(t, nine.Add(time.Hour), 15)
	ctx := jobcontext.WithJobType(context.Background(), jobcontext.JobTypeReprocess)
	_, err = svc.ProcessBatch(ctx, reprocessed.ID)
	require.NoError(t, err)

	started := logs.FilterMessage("🚀 Batch analysis started").All()
	require.Len(t, started, 2)
	assert.Equal(t, jobcontext.JobTypeAnalysis, started[0].ContextMap()["job_type"])
	assert.Equal(t, int64(3), started[0].ContextMap()["worker_id"])
	assert.Equal(t, jobcontext.JobTypeReprocess, started[1].ContextMap()["job_type"])

	finished := logs.FilterMessage("✅ Batch analyzed").All()
	require.Len(t, finished, 2)
	assert.Equal(t, jobcontext.JobTypeAnalysis, finished[0].ContextMap()["job_type"])
	assert.Equal(t, jobcontext.JobTypeReprocess, finished[1].ContextMap()["job_type"])
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/domain/repositories"
	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/storage"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
	"github.com/johnquangdev/timeline-assistant/pkg/jobcontext"
)

// Call log operations
const (
	OpTranscribe   = "transcribe"
	OpSynthesize   = "synthesize"
	OpVideoSummary = "video_summary"
)

// maxPriorCards bounds the stored cards handed to synthesis as context
const maxPriorCards = 20

var errNoUsableCards = errors.New("synthesis produced no usable cards")

// Service runs the analysis pipeline for one batch at a time
type Service interface {
	// ProcessBatch claims a pending batch, transcribes and synthesizes it and
	// records exactly one terminal status. A provider configuration error is
	// returned with the batch left pending.
	ProcessBatch(ctx context.Context, batchID uuid.UUID) (*RunResult, error)
}

// ProviderResolver yields the provider to use for the next run
type ProviderResolver interface {
	Resolve(ctx context.Context) (ai.Provider, error)
}

// MediaAssembler prepares batch media for providers
type MediaAssembler interface {
	TempDir(prefix string) (string, error)
	Combine(ctx context.Context, inputs []string, out string) error
	Timelapse(ctx context.Context, input string, offset, length time.Duration, out string) error
}

// RunResult summarizes one orchestrator run
type RunResult struct {
	BatchID       uuid.UUID            `json:"batch_id"`
	Status        entities.BatchStatus `json:"status"`
	FailureReason string               `json:"failure_reason,omitempty"`
	Provider      string               `json:"provider"`
	Observations  int                  `json:"observations"`
	Cards         int                  `json:"cards"`
	Unvalidated   bool                 `json:"unvalidated"`
	Elapsed       time.Duration        `json:"elapsed"`
}

// Deps wires the orchestrator to its stores and collaborators
type Deps struct {
	Batches      repositories.BatchRepository
	Observations repositories.ObservationRepository
	Cards        repositories.TimelineCardRepository
	Resolver     ProviderResolver
	Media        storage.MediaStore
	Assembler    MediaAssembler
	Analysis     *config.AnalysisConfig
	LLM          *config.LLMConfig
	Categories   []config.Category
	Logger       *zap.Logger
}

type orchestrator struct {
	batches      repositories.BatchRepository
	observations repositories.ObservationRepository
	cards        repositories.TimelineCardRepository
	resolver     ProviderResolver
	media        storage.MediaStore
	assembler    MediaAssembler
	cfg          config.AnalysisConfig
	llm          config.LLMConfig
	rules        Rules
	categories   []config.Category
	loc          *time.Location
	logger       *zap.Logger
}

// NewService creates the batch orchestrator
func NewService(deps Deps) (Service, error) {
	if deps.Batches == nil || deps.Observations == nil || deps.Cards == nil {
		return nil, fmt.Errorf("orchestrator requires batch, observation and card repositories")
	}
	if deps.Resolver == nil || deps.Media == nil || deps.Assembler == nil {
		return nil, fmt.Errorf("orchestrator requires a provider resolver, media store and assembler")
	}
	cfg := config.DefaultAnalysis()
	if deps.Analysis != nil {
		cfg = *deps.Analysis
	}
	var llm config.LLMConfig
	if deps.LLM != nil {
		llm = *deps.LLM
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	categories := deps.Categories
	if len(categories) == 0 {
		categories = config.DefaultCategories()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &orchestrator{
		batches:      deps.Batches,
		observations: deps.Observations,
		cards:        deps.Cards,
		resolver:     deps.Resolver,
		media:        deps.Media,
		assembler:    deps.Assembler,
		cfg:          cfg,
		llm:          llm,
		rules:        RulesFromConfig(&cfg),
		categories:   categories,
		loc:          loc,
		logger:       logger,
	}, nil
}

// batchRun carries the state of one run
type batchRun struct {
	batch        *entities.AnalysisBatch
	provider     ai.Provider
	chunks       []entities.RecordingChunk
	clock        mediaClock
	workDir      string
	combined     string
	observations []entities.Observation
	stored       []*entities.TimelineCard
	unvalidated  bool

	mu      sync.Mutex
	callLog []entities.CallLogEntry
}

func (r *batchRun) record(op string, attempt int, started time.Time, model string, err error) {
	provider := r.provider.Name()
	if op == OpVideoSummary {
		provider = "ffmpeg"
	}
	entry := entities.CallLogEntry{
		Operation: op,
		Provider:  provider,
		Model:     model,
		Attempt:   attempt + 1,
		StartedAt: started.UTC(),
		LatencyMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.mu.Lock()
	r.callLog = append(r.callLog, entry)
	r.mu.Unlock()
}

func (r *batchRun) calls() []entities.CallLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entities.CallLogEntry, len(r.callLog))
	copy(out, r.callLog)
	return out
}

func (o *orchestrator) ProcessBatch(ctx context.Context, batchID uuid.UUID) (*RunResult, error) {
	// provider problems are configuration errors and leave the batch pending
	provider, err := o.resolver.Resolve(ctx)
	if err != nil {
		o.logger.Warn("⏭️ Batch not dispatched, no usable LLM provider",
			zap.String("batch_id", batchID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	claimed, err := o.batches.ClaimPending(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}
	if !claimed {
		existing, err := o.batches.FindByID(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, entities.ErrBatchNotFound
		}
		return nil, entities.ErrBatchNotPending
	}

	// reprocess runs arrive already tagged
	jobType, ok := jobcontext.GetJobType(ctx)
	if !ok {
		jobType = jobcontext.JobTypeAnalysis
	}
	jobCtx, cancel := jobcontext.JobBegin(ctx, batchID, jobType, jobcontext.GetWorkerID(ctx), o.cfg.StaleProcessing)
	defer cancel()
	meta := jobcontext.GetJobMetadata(jobCtx)

	o.logger.Info("🚀 Batch analysis started",
		zap.String("batch_id", batchID.String()),
		zap.String("job_type", meta.JobType),
		zap.String("provider", provider.Name()),
		zap.String("mode", o.cfg.Mode),
		zap.Int("worker_id", meta.WorkerID),
	)

	run := &batchRun{provider: provider}
	outcome := o.execute(jobCtx, batchID, run)
	outcome.CallLog = run.calls()

	// the terminal write must land even if the run's context was cancelled
	if err := o.batches.MarkTerminal(context.WithoutCancel(ctx), batchID, outcome); err != nil {
		o.logger.Error("❌ Failed to record batch outcome",
			zap.String("batch_id", batchID.String()),
			zap.String("status", string(outcome.Status)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to record batch outcome: %w", err)
	}

	result := &RunResult{
		BatchID:       batchID,
		Status:        outcome.Status,
		FailureReason: outcome.FailureReason,
		Provider:      provider.Name(),
		Observations:  len(run.observations),
		Cards:         len(run.stored),
		Unvalidated:   outcome.Unvalidated,
		Elapsed:       time.Since(meta.StartTime),
	}
	fields := []zap.Field{
		zap.String("batch_id", batchID.String()),
		zap.String("job_type", meta.JobType),
		zap.Int("worker_id", meta.WorkerID),
		zap.String("status", string(result.Status)),
		zap.Int("observations", result.Observations),
		zap.Int("cards", result.Cards),
		zap.Bool("unvalidated", result.Unvalidated),
		zap.Duration("elapsed", result.Elapsed),
	}
	switch result.Status {
	case entities.BatchStatusAnalyzed:
		o.logger.Info("✅ Batch analyzed", fields...)
	case entities.BatchStatusFailed:
		o.logger.Error("❌ Batch analysis failed", append(fields, zap.String("reason", result.FailureReason))...)
	default:
		o.logger.Info("⏭️ Batch skipped", append(fields, zap.String("reason", result.FailureReason))...)
	}
	return result, nil
}

// execute runs every stage and converts the first failure into a terminal outcome
func (o *orchestrator) execute(ctx context.Context, batchID uuid.UUID, run *batchRun) (outcome entities.BatchOutcome) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("❌ Panic during batch analysis",
				zap.String("batch_id", batchID.String()),
				zap.Any("panic", p),
			)
			outcome = entities.BatchOutcome{Status: entities.BatchStatusFailed, FailureReason: fmt.Sprintf("panic: %v", p)}
		}
	}()

	batch, err := o.batches.FindByID(ctx, batchID)
	if err != nil {
		return failed(fmt.Errorf("failed to load batch: %w", err))
	}
	if batch == nil {
		return failed(entities.ErrBatchNotFound)
	}
	run.batch = batch

	chunks, err := o.batches.ChunksForBatch(ctx, batchID)
	if err != nil {
		return failed(fmt.Errorf("failed to load chunks: %w", err))
	}
	if len(chunks) == 0 {
		return entities.BatchOutcome{Status: entities.BatchStatusFailedEmpty, FailureReason: entities.ErrEmptyBatch.Error()}
	}
	run.chunks = chunks
	run.clock = newMediaClock(chunks)
	if run.clock.total < o.cfg.MinBatchDuration {
		return entities.BatchOutcome{
			Status: entities.BatchStatusSkippedShort,
			FailureReason: fmt.Sprintf("recorded %s, minimum is %s",
				run.clock.total.Round(time.Second), o.cfg.MinBatchDuration),
		}
	}

	workDir, err := o.assembler.TempDir("batch-")
	if err != nil {
		return failed(fmt.Errorf("failed to create work dir: %w", err))
	}
	defer os.RemoveAll(workDir)
	run.workDir = workDir

	if err := o.combine(ctx, run); err != nil {
		return failed(err)
	}
	if err := o.transcribe(ctx, run); err != nil {
		return failed(err)
	}
	if err := o.synthesize(ctx, run); err != nil {
		return failed(err)
	}
	if o.cfg.VideoSummaries {
		o.videoSummaries(ctx, run)
	}

	return entities.BatchOutcome{Status: entities.BatchStatusAnalyzed, Unvalidated: run.unvalidated}
}

func failed(err error) entities.BatchOutcome {
	return entities.BatchOutcome{Status: entities.BatchStatusFailed, FailureReason: err.Error()}
}

// combine fetches every chunk and concatenates them into one clip
func (o *orchestrator) combine(ctx context.Context, run *batchRun) error {
	inputs := make([]string, 0, len(run.chunks))
	for _, c := range run.chunks {
		path, cleanup, err := o.media.Fetch(ctx, c.FileRef)
		if err != nil {
			return fmt.Errorf("failed to fetch chunk %s: %w", c.ID, err)
		}
		defer cleanup()
		inputs = append(inputs, path)
	}

	run.combined = filepath.Join(run.workDir, "combined.mp4")
	if err := o.assembler.Combine(ctx, inputs, run.combined); err != nil {
		return fmt.Errorf("failed to combine chunks: %w", err)
	}
	return nil
}

func (o *orchestrator) policy(callTimeout time.Duration) jobcontext.RetryPolicy {
	return jobcontext.RetryPolicy{
		MaxRetries:  o.cfg.TransientRetries,
		BaseDelay:   o.cfg.RetryBaseDelay,
		MaxDelay:    time.Minute,
		CallTimeout: callTimeout,
	}
}

// transcribe turns the combined clip into observations and persists them right away
func (o *orchestrator) transcribe(ctx context.Context, run *batchRun) error {
	req := ai.TranscribeRequest{
		MediaPath:  run.combined,
		Duration:   run.clock.total,
		OriginTime: run.batch.StartTs,
		WorkDir:    run.workDir,
	}

	var result *ai.TranscribeResult
	callTimeout := o.llm.CallTimeout
	if callTimeout > 0 {
		// uploads wait for the provider to finish ingesting the clip
		callTimeout += o.llm.ReadyTimeout
	}
	err := jobcontext.Retry(ctx, o.policy(callTimeout), func(ctx context.Context) error {
		started := time.Now()
		res, err := run.provider.Transcribe(ctx, req)
		model := ""
		if res != nil {
			model = res.Model
		}
		run.record(OpTranscribe, jobcontext.GetRetryAttempt(ctx), started, model, err)
		if err != nil {
			o.logger.Warn("⚠️ Transcription attempt failed",
				zap.String("batch_id", run.batch.ID.String()),
				zap.Int("attempt", jobcontext.GetRetryAttempt(ctx)+1),
				zap.Error(err),
			)
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}

	observations := make([]*entities.Observation, 0, len(result.Segments))
	for _, seg := range result.Segments {
		start := run.clock.At(seg.Start, false)
		end := run.clock.At(seg.End, true)
		if !end.After(start) {
			continue
		}
		observations = append(observations, entities.NewObservation(run.batch.ID, start, end, seg.Description, result.Model))
	}
	if len(observations) == 0 {
		return fmt.Errorf("transcription produced no observations")
	}
	// a re-run after crash recovery supersedes whatever an interrupted run saved
	if _, err := o.observations.DeleteForBatches(ctx, []uuid.UUID{run.batch.ID}); err != nil {
		return fmt.Errorf("failed to clear previous observations: %w", err)
	}
	if err := o.observations.SaveAll(ctx, observations); err != nil {
		return fmt.Errorf("failed to save observations: %w", err)
	}

	run.observations = make([]entities.Observation, 0, len(observations))
	for _, obs := range observations {
		run.observations = append(run.observations, *obs)
	}
	o.logger.Info("📝 Observations saved",
		zap.String("batch_id", run.batch.ID.String()),
		zap.Int("count", len(observations)),
		zap.String("model", result.Model),
	)
	return nil
}

// synthesisWindow is the time range whose cards a run replaces
type synthesisWindow struct {
	start        time.Time
	end          time.Time
	observations []entities.Observation
	prior        []entities.TimelineCard
	previous     *entities.TimelineCard
}

func (o *orchestrator) window(ctx context.Context, run *batchRun) (*synthesisWindow, error) {
	w := &synthesisWindow{start: run.batch.StartTs, end: run.batch.EndTs, observations: run.observations}

	if o.cfg.Mode == config.ModeSlidingWindow {
		w.start = run.batch.EndTs.Add(-o.cfg.SlidingWindow)
		straddling, err := o.cards.ListInRange(ctx, w.start, w.start.Add(time.Nanosecond))
		if err != nil {
			return nil, fmt.Errorf("failed to load cards at window start: %w", err)
		}
		for _, c := range straddling {
			if c.StartTs.Before(w.start) {
				w.start = c.StartTs
			}
		}
		w.observations, err = o.observations.ListInRange(ctx, w.start, w.end)
		if err != nil {
			return nil, fmt.Errorf("failed to load window observations: %w", err)
		}
	}

	dayStart, _, err := entities.DayBounds(entities.LogicalDay(w.start, o.loc), o.loc)
	if err != nil {
		return nil, err
	}
	earlier, err := o.cards.ListInRange(ctx, dayStart, w.start)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior cards: %w", err)
	}
	for _, c := range earlier {
		if c.StartTs.Before(w.start) {
			w.prior = append(w.prior, c)
		}
	}
	if len(w.prior) > maxPriorCards {
		w.prior = w.prior[len(w.prior)-maxPriorCards:]
	}

	if n := len(w.prior); n > 0 && len(w.observations) > 0 {
		last := w.prior[n-1]
		first := w.observations[0].StartTs
		if !last.EndTs.Before(first.Add(-o.cfg.CoverageGap)) {
			w.previous = &last
		}
	}
	return w, nil
}

func (o *orchestrator) inferredCategories(ctx context.Context) []string {
	used, err := o.cards.DistinctCategories(ctx)
	if err != nil {
		o.logger.Warn("⚠️ Failed to load inferred categories", zap.Error(err))
		return nil
	}
	known := make(map[string]bool, len(o.categories))
	for _, c := range o.categories {
		known[c.Name] = true
	}
	var inferred []string
	for _, name := range used {
		if !known[name] {
			inferred = append(inferred, name)
		}
	}
	return inferred
}

// synthesize asks for cards until they validate, falling back to the last
// usable answer once the attempts are spent
func (o *orchestrator) synthesize(ctx context.Context, run *batchRun) error {
	w, err := o.window(ctx, run)
	if err != nil {
		return err
	}
	if len(w.observations) == 0 {
		return fmt.Errorf("no observations in synthesis window")
	}

	req := ai.SynthesisRequest{
		Observations:       observationInputs(w.observations),
		PriorCards:         cardContexts(w.prior),
		Categories:         o.categories,
		InferredCategories: o.inferredCategories(ctx),
		WindowStart:        w.start,
		WindowEnd:          w.end,
		Location:           o.loc,
		MinCardDuration:    o.cfg.MinCardDuration,
		MinDistraction:     o.cfg.MinDistraction,
	}
	observed := observationIntervals(w.observations)

	var (
		best      []*entities.TimelineCard
		validated bool
	)
	for attempt := 1; attempt <= o.cfg.ValidationAttempts; attempt++ {
		drafts, err := o.requestCards(ctx, run, req)
		if err != nil {
			return err
		}

		cards, violations := buildCards(drafts, run.batch.ID, w.start, o.loc)
		violations = append(violations, o.rules.Check(checkInput{
			cards:        cards,
			observations: observed,
			previous:     w.previous,
			loc:          o.loc,
		})...)
		if len(cards) > 0 {
			best = cards
		}
		if len(violations) == 0 {
			validated = true
			break
		}

		req.Violation = Describe(violations)
		o.logger.Warn("⚠️ Synthesized cards rejected",
			zap.String("batch_id", run.batch.ID.String()),
			zap.Int("attempt", attempt),
			zap.Int("violations", len(violations)),
			zap.String("reasons", req.Violation),
		)
	}

	if len(best) == 0 {
		return fmt.Errorf("%w: %s", errNoUsableCards, req.Violation)
	}
	if !validated {
		run.unvalidated = true
		o.logger.Warn("⚠️ Accepting unvalidated cards after exhausting attempts",
			zap.String("batch_id", run.batch.ID.String()),
			zap.Int("attempts", o.cfg.ValidationAttempts),
		)
	}

	cards := normalize(best, o.rules, w.previous, w.start, w.end, validated, o.loc)
	if len(cards) == 0 {
		return errNoUsableCards
	}
	return o.store(ctx, run, w, cards)
}

// requestCards performs one synthesis call with transient retries
func (o *orchestrator) requestCards(ctx context.Context, run *batchRun, req ai.SynthesisRequest) ([]ai.CardDraft, error) {
	var drafts []ai.CardDraft
	err := jobcontext.Retry(ctx, o.policy(o.llm.CallTimeout), func(ctx context.Context) error {
		started := time.Now()
		res, err := run.provider.Synthesize(ctx, req)
		model := ""
		if res != nil {
			model = res.Model
		}
		run.record(OpSynthesize, jobcontext.GetRetryAttempt(ctx), started, model, err)
		if err != nil {
			o.logger.Warn("⚠️ Synthesis attempt failed",
				zap.String("batch_id", run.batch.ID.String()),
				zap.Int("attempt", jobcontext.GetRetryAttempt(ctx)+1),
				zap.Error(err),
			)
			return err
		}
		drafts = res.Cards
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	return drafts, nil
}

// store replaces the window's cards and reclaims replaced video summaries.
// The range only reaches before the window to take over a continued card.
func (o *orchestrator) store(ctx context.Context, run *batchRun, w *synthesisWindow, cards []*entities.TimelineCard) error {
	from, to := w.start, w.end
	if p := w.previous; p != nil && p.StartTs.Before(from) && cards[0].StartTs.Equal(p.StartTs) {
		from = p.StartTs
	}

	reclaimed, err := o.cards.ReplaceInRange(ctx, from, to, cards)
	if err != nil {
		return fmt.Errorf("failed to store cards: %w", err)
	}
	run.stored = cards
	o.removeRefs(ctx, reclaimed)

	o.logger.Info("🗂️ Timeline cards stored",
		zap.String("batch_id", run.batch.ID.String()),
		zap.Int("cards", len(cards)),
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Bool("validated", !run.unvalidated),
	)
	return nil
}

func (o *orchestrator) removeRefs(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := o.media.Remove(ctx, ref); err != nil {
			o.logger.Warn("⚠️ Failed to remove replaced video summary",
				zap.String("ref", ref),
				zap.Error(err),
			)
		}
	}
}

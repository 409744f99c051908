package batching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/domain/repositories"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// Service defines batch formation methods
type Service interface {
	// FormBatches persists new batches from completed, unbatched chunks within the lookback horizon
	FormBatches(ctx context.Context, now time.Time) ([]*entities.AnalysisBatch, error)
}

type batchingService struct {
	chunkRepo repositories.ChunkRepository
	batchRepo repositories.BatchRepository
	former    Former
	lookback  time.Duration
	logger    *zap.Logger
}

// NewService creates a batch formation service
func NewService(
	chunkRepo repositories.ChunkRepository,
	batchRepo repositories.BatchRepository,
	cfg *config.AnalysisConfig,
	logger *zap.Logger,
) Service {
	return &batchingService{
		chunkRepo: chunkRepo,
		batchRepo: batchRepo,
		former: Former{
			MaxGap:         cfg.MaxGap,
			TargetDuration: cfg.TargetDuration,
		},
		lookback: cfg.Lookback,
		logger:   logger,
	}
}

func (s *batchingService) FormBatches(ctx context.Context, now time.Time) ([]*entities.AnalysisBatch, error) {
	chunks, err := s.chunkRepo.ListUnbatchedCompleted(ctx, now.Add(-s.lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to list unbatched chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	candidates := s.former.Form(chunks)
	created := make([]*entities.AnalysisBatch, 0, len(candidates))

	for _, c := range candidates {
		batch := entities.NewAnalysisBatch(c.Start, c.End)
		if err := s.batchRepo.CreateWithChunks(ctx, batch, c.ChunkIDs); err != nil {
			// Another formation pass got there first; the next cycle sees the real state
			if errors.Is(err, entities.ErrChunkBatched) {
				s.logger.Warn("⏭️ Chunks already batched, skipping candidate",
					zap.Time("start", c.Start),
					zap.Int("chunks", len(c.ChunkIDs)),
				)
				continue
			}
			return created, fmt.Errorf("failed to persist batch: %w", err)
		}

		s.logger.Info("📦 Batch formed",
			zap.String("batch_id", batch.ID.String()),
			zap.Time("start", batch.StartTs),
			zap.Time("end", batch.EndTs),
			zap.Int("chunks", len(c.ChunkIDs)),
			zap.Duration("duration", c.Duration),
		)
		created = append(created, batch)
	}

	if held := len(chunks) - countChunks(candidates); held > 0 {
		s.logger.Debug("⏳ Holding live-edge chunks until the target duration is reached",
			zap.Int("chunks", held),
		)
	}
	return created, nil
}

func countChunks(candidates []Candidate) int {
	n := 0
	for _, c := range candidates {
		n += len(c.ChunkIDs)
	}
	return n
}

package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/pkg/jobcontext"
)

// videoSummaryPrefix is where timelapse clips live in the media store
const videoSummaryPrefix = "summaries"

// videoSummaries renders a timelapse clip for each stored card that falls within
// this batch's media. Failures are logged and never fail the batch.
func (o *orchestrator) videoSummaries(ctx context.Context, run *batchRun) {
	ctx = jobcontext.WithJobType(ctx, jobcontext.JobTypeVideoClips)
	rendered := 0

	for _, card := range run.stored {
		from := run.clock.OffsetOf(card.StartTs)
		to := run.clock.OffsetOf(card.EndTs)
		if to <= from {
			// card lies outside this batch's recording
			continue
		}

		started := time.Now()
		ref := fmt.Sprintf("%s/%s/%s.mp4", videoSummaryPrefix, card.Day, card.ID)
		out := filepath.Join(run.workDir, card.ID.String()+".mp4")

		err := o.assembler.Timelapse(ctx, run.combined, from, to-from, out)
		if err == nil {
			err = o.media.Put(ctx, ref, out, "video/mp4")
		}
		if err == nil {
			err = o.cards.SetVideoSummary(ctx, card.ID, ref)
		}
		run.record(OpVideoSummary, 0, started, "", err)
		if err != nil {
			o.logger.Warn("⚠️ Failed to build video summary",
				zap.String("batch_id", run.batch.ID.String()),
				zap.String("card_id", card.ID.String()),
				zap.Error(err),
			)
			continue
		}
		refCopy := ref
		card.VideoSummaryRef = &refCopy
		rendered++
	}

	if rendered > 0 {
		o.logger.Info("🎞️ Video summaries rendered",
			zap.String("batch_id", run.batch.ID.String()),
			zap.Int("count", rendered),
		)
	}
}

package batching

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
)

// Candidate is a batch the former proposes before it is persisted
type Candidate struct {
	ChunkIDs []uuid.UUID
	Start    time.Time
	End      time.Time
	Duration time.Duration // sum of chunk durations, not the wall-clock span
}

// Former groups completed chunks into time-bounded batches
type Former struct {
	MaxGap         time.Duration
	TargetDuration time.Duration
}

// Form splits chunks into candidates. A bucket closes when the gap since the previous
// chunk's end exceeds MaxGap or the next chunk would push it past TargetDuration.
// The most recent candidate is held back while it is shorter than TargetDuration so
// the live edge keeps accumulating chunks. The input slice is not modified.
func (f Former) Form(chunks []entities.RecordingChunk) []Candidate {
	if len(chunks) == 0 {
		return nil
	}

	sorted := make([]entities.RecordingChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTs.Before(sorted[j].StartTs)
	})

	var (
		candidates []Candidate
		bucket     []entities.RecordingChunk
		total      time.Duration
	)
	flush := func() {
		if len(bucket) == 0 {
			return
		}
		c := Candidate{
			ChunkIDs: make([]uuid.UUID, 0, len(bucket)),
			Start:    bucket[0].StartTs,
			End:      bucket[0].EndTs,
			Duration: total,
		}
		for _, chunk := range bucket {
			c.ChunkIDs = append(c.ChunkIDs, chunk.ID)
			if chunk.EndTs.After(c.End) {
				c.End = chunk.EndTs
			}
		}
		candidates = append(candidates, c)
		bucket, total = nil, 0
	}

	for _, chunk := range sorted {
		d := chunk.Duration()
		if len(bucket) > 0 {
			gap := chunk.StartTs.Sub(bucket[len(bucket)-1].EndTs)
			if gap > f.MaxGap || total+d > f.TargetDuration {
				flush()
			}
		}
		bucket = append(bucket, chunk)
		total += d
	}
	flush()

	if last := candidates[len(candidates)-1]; last.Duration < f.TargetDuration {
		candidates = candidates[:len(candidates)-1]
	}
	return candidates
}

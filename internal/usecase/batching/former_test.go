package batching

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
)

var origin = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func chunkAt(startSec, endSec int) entities.RecordingChunk {
	return entities.RecordingChunk{
		ID:      uuid.New(),
		StartTs: origin.Add(time.Duration(startSec) * time.Second),
		EndTs:   origin.Add(time.Duration(endSec) * time.Second),
		Status:  entities.ChunkStatusCompleted,
	}
}

func defaultFormer() Former {
	return Former{MaxGap: 120 * time.Second, TargetDuration: 900 * time.Second}
}

func TestForm_EmptyInput(t *testing.T) {
	assert.Empty(t, defaultFormer().Form(nil))
}

func TestForm_GapSplitsAndDropsShortLiveEdge(t *testing.T) {
	chunks := []entities.RecordingChunk{chunkAt(400, 460), chunkAt(0, 60), chunkAt(70, 130)}

	got := defaultFormer().Form(chunks)

	require.Len(t, got, 1, "trailing [400,460) batch is below target and held back")
	assert.Equal(t, origin, got[0].Start)
	assert.Equal(t, origin.Add(130*time.Second), got[0].End)
	assert.Equal(t, []uuid.UUID{chunks[1].ID, chunks[2].ID}, got[0].ChunkIDs)
	assert.Equal(t, 120*time.Second, got[0].Duration)
}

func TestForm_TargetDurationClosesBucket(t *testing.T) {
	var chunks []entities.RecordingChunk
	for i := 0; i < 16; i++ {
		chunks = append(chunks, chunkAt(i*60, (i+1)*60))
	}

	got := defaultFormer().Form(chunks)

	require.Len(t, got, 1, "60s remainder is the short live edge")
	assert.Len(t, got[0].ChunkIDs, 15)
	assert.Equal(t, 900*time.Second, got[0].Duration)
	assert.Equal(t, origin.Add(900*time.Second), got[0].End)

	// once more chunks land the remainder becomes a full batch
	for i := 16; i < 31; i++ {
		chunks = append(chunks, chunkAt(i*60, (i+1)*60))
	}
	got = defaultFormer().Form(chunks)
	require.Len(t, got, 2)
	assert.Equal(t, origin.Add(900*time.Second), got[1].Start)
}

func TestForm_OversizedChunkStillFormsBatch(t *testing.T) {
	got := defaultFormer().Form([]entities.RecordingChunk{chunkAt(0, 1000)})
	require.Len(t, got, 1)
	assert.Len(t, got[0].ChunkIDs, 1)
}

func TestForm_Properties(t *testing.T) {
	f := defaultFormer()
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		var chunks []entities.RecordingChunk
		cursor := 0
		for i := 0; i < 60; i++ {
			cursor += rng.Intn(200) // gaps up to 199s
			length := 30 + rng.Intn(60)
			chunks = append(chunks, chunkAt(cursor, cursor+length))
			cursor += length
		}
		// shuffle so the former has to sort
		rng.Shuffle(len(chunks), func(i, j int) { chunks[i], chunks[j] = chunks[j], chunks[i] })

		first := f.Form(chunks)
		second := f.Form(chunks)
		assert.Equal(t, first, second, "formation is deterministic")

		byID := make(map[uuid.UUID]entities.RecordingChunk, len(chunks))
		for _, c := range chunks {
			byID[c.ID] = c
		}
		seen := make(map[uuid.UUID]bool)

		for _, cand := range first {
			require.NotEmpty(t, cand.ChunkIDs)
			var sum time.Duration
			for i, id := range cand.ChunkIDs {
				assert.False(t, seen[id], "chunk in two batches")
				seen[id] = true

				c := byID[id]
				sum += c.Duration()
				assert.False(t, c.StartTs.Before(cand.Start))
				assert.False(t, c.EndTs.After(cand.End))
				if i > 0 {
					prev := byID[cand.ChunkIDs[i-1]]
					assert.LessOrEqual(t, c.StartTs.Sub(prev.EndTs), f.MaxGap, "gap inside a batch")
				}
			}
			assert.Equal(t, sum, cand.Duration)
			assert.LessOrEqual(t, cand.Duration, f.TargetDuration)
		}
	}
}

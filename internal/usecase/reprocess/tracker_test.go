package reprocess

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johnquangdev/timeline-assistant/internal/infrastructure/cache"
)

func TestRunTracker_RecordsProgressAndSummary(t *testing.T) {
	store := cache.NewMemoryStore()
	defer store.Close()
	tracker := NewRunTracker(store, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	run, err := tracker.Launch(ctx, "day 2024-03-10", func(ctx context.Context, progress ProgressFunc) (*Summary, error) {
		progress("Found 2 batches")
		progress("Done")
		return &Summary{Total: 2, Succeeded: 2}, ctx.Err()
	})
	require.NoError(t, err)
	// the run outlives the request that launched it
	cancel()
	assert.Equal(t, RunStateRunning, run.State)

	tracker.Wait()

	stored, err := tracker.Get(context.Background(), run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, RunStateCompleted, stored.State)
	assert.Equal(t, []string{"Found 2 batches", "Done"}, stored.Messages)
	require.NotNil(t, stored.Summary)
	assert.Equal(t, 2, stored.Summary.Succeeded)
	assert.NotNil(t, stored.FinishedAt)
}

func TestRunTracker_RecordsFailure(t *testing.T) {
	store := cache.NewMemoryStore()
	defer store.Close()
	tracker := NewRunTracker(store, time.Hour, zap.NewNop())

	run, err := tracker.Launch(context.Background(), "batches", func(context.Context, ProgressFunc) (*Summary, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)
	tracker.Wait()

	stored, err := tracker.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStateFailed, stored.State)
	assert.Equal(t, "boom", stored.Error)
}

func TestRunTracker_UnknownRun(t *testing.T) {
	store := cache.NewMemoryStore()
	defer store.Close()
	tracker := NewRunTracker(store, time.Hour, zap.NewNop())

	stored, err := tracker.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

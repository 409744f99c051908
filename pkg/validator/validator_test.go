package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunkRequest struct {
	FileRef string    `json:"file_ref" validate:"required"`
	StartTs time.Time `json:"start_ts" validate:"required"`
	EndTs   time.Time `json:"end_ts" validate:"required,gtfield=StartTs"`
}

type listRequest struct {
	Status string   `query:"status" validate:"omitempty,oneof=pending failed"`
	IDs    []string `json:"ids" validate:"omitempty,dive,uuid"`
}

func TestValidate_NamesWireFields(t *testing.T) {
	v := New()
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	err := v.Validate(&chunkRequest{StartTs: start, EndTs: start.Add(-time.Minute)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file_ref is required")
	assert.Contains(t, err.Error(), "end_ts must be after start_ts")

	err = v.Validate(&listRequest{Status: "done", IDs: []string{"nope"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status must be one of [pending failed]")
	assert.Contains(t, err.Error(), "must be a UUID")

	assert.NoError(t, v.Validate(&chunkRequest{FileRef: "a.mp4", StartTs: start, EndTs: start.Add(time.Minute)}))
}

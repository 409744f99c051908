package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

func TestCombine_SingleInputIsCopied(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(src, []byte("clip"), 0o644))

	f := NewFFmpeg(&config.MediaConfig{FFmpegPath: "ffmpeg-not-needed"})
	out := filepath.Join(dir, "out.mp4")
	require.NoError(t, f.Combine(context.Background(), []string{src}, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "clip", string(data))
}

func TestCombine_NoInputs(t *testing.T) {
	f := NewFFmpeg(&config.MediaConfig{})
	assert.Error(t, f.Combine(context.Background(), nil, "out.mp4"))
}

func TestRun_ReportsMissingBinary(t *testing.T) {
	f := NewFFmpeg(&config.MediaConfig{FFmpegPath: filepath.Join(t.TempDir(), "no-ffmpeg")})
	err := f.Timelapse(context.Background(), "in.mp4", 0, time.Minute, "out.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg failed")
}

func TestNewFFmpeg_Defaults(t *testing.T) {
	f := NewFFmpeg(&config.MediaConfig{})
	assert.Equal(t, "ffmpeg", f.bin)
	assert.Equal(t, 10*time.Second, f.frameInterval)
	assert.Equal(t, 20.0, f.timelapseRate)
	assert.Equal(t, "1.500", formatSeconds(1500*time.Millisecond))
}

package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/johnquangdev/timeline-assistant/pkg/ai"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// FFmpeg assembles media with the ffmpeg binary
type FFmpeg struct {
	bin           string
	workDir       string
	frameInterval time.Duration
	maxFrames     int
	timelapseRate float64
}

// NewFFmpeg creates an assembler from configuration
func NewFFmpeg(cfg *config.MediaConfig) *FFmpeg {
	bin := cfg.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	interval := cfg.FrameInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	rate := cfg.TimelapseRate
	if rate <= 0 {
		rate = 20
	}
	return &FFmpeg{
		bin:           bin,
		workDir:       cfg.WorkDir,
		frameInterval: interval,
		maxFrames:     cfg.MaxFrames,
		timelapseRate: rate,
	}
}

// TempDir creates a scratch directory for one batch run
func (f *FFmpeg) TempDir(prefix string) (string, error) {
	return os.MkdirTemp(f.workDir, prefix)
}

// Combine concatenates clips, in order, into out without re-encoding
func (f *FFmpeg) Combine(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs to combine")
	}
	if len(inputs) == 1 {
		return copyFile(inputs[0], out)
	}

	var list strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return err
		}
		// concat demuxer quoting: close quote, escaped quote, reopen
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	listPath := out + ".txt"
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return err
	}
	defer os.Remove(listPath)

	return f.run(ctx, "-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", out)
}

// SampleFrames extracts one frame every frame interval, capped at the configured maximum.
// When the cap would be exceeded the interval is stretched to span the whole clip.
func (f *FFmpeg) SampleFrames(ctx context.Context, input string, duration time.Duration, dir string) ([]ai.Frame, error) {
	interval := f.frameInterval
	if f.maxFrames > 0 && duration > 0 {
		if n := int(duration / interval); n > f.maxFrames {
			interval = duration / time.Duration(f.maxFrames)
		}
	}

	pattern := filepath.Join(dir, "frame_%05d.jpg")
	fps := fmt.Sprintf("fps=1/%s,scale='min(1280,iw)':-2", strconv.FormatFloat(interval.Seconds(), 'f', 3, 64))
	args := []string{"-y", "-i", input, "-vf", fps, "-q:v", "4"}
	if f.maxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(f.maxFrames))
	}
	args = append(args, pattern)
	if err := f.run(ctx, args...); err != nil {
		return nil, err
	}

	paths, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	frames := make([]ai.Frame, 0, len(paths))
	for i, p := range paths {
		frames = append(frames, ai.Frame{Offset: time.Duration(i) * interval, Path: p})
	}
	return frames, nil
}

// Timelapse renders [offset, offset+length) of input as a sped-up clip without audio
func (f *FFmpeg) Timelapse(ctx context.Context, input string, offset, length time.Duration, out string) error {
	speed := strconv.FormatFloat(f.timelapseRate, 'f', -1, 64)
	return f.run(ctx,
		"-y",
		"-ss", formatSeconds(offset),
		"-t", formatSeconds(length),
		"-i", input,
		"-vf", "setpts=PTS/"+speed,
		"-an",
		out,
	)
}

func (f *FFmpeg) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, f.bin, append([]string{"-hide_banner", "-loglevel", "error"}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

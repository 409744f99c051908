package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var retryDelayPattern = regexp.MustCompile(`"retryDelay"\s*:\s*"([0-9.]+)s"`)

// statusError converts a non-2xx response into RateLimitError or StatusError
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))

	if resp.StatusCode == http.StatusTooManyRequests {
		delay := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		if delay == 0 {
			if m := retryDelayPattern.FindSubmatch(body); m != nil {
				if secs, err := strconv.ParseFloat(string(m[1]), 64); err == nil {
					delay = time.Duration(secs * float64(time.Second))
				}
			}
		}
		return &RateLimitError{Provider: provider, RetryAfter: delay, Message: msg}
	}
	return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: msg}
}

// parseRetryAfter understands both delta-seconds and HTTP-date values
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func parseRetryAfterHeader(h http.Header) time.Duration {
	return parseRetryAfter(h.Get("Retry-After"), time.Now())
}

// sampleFrames runs the sampler into a fresh directory under the request's work dir
func sampleFrames(ctx context.Context, sampler FrameSampler, req TranscribeRequest) ([]Frame, func(), error) {
	if sampler == nil {
		return nil, nil, fmt.Errorf("frame sampler not configured")
	}
	dir, err := os.MkdirTemp(req.WorkDir, "frames-")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	frames, err := sampler.SampleFrames(ctx, req.MediaPath, req.Duration, dir)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to sample frames: %w", err)
	}
	if len(frames) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("no frames sampled from %s", req.MediaPath)
	}
	return frames, cleanup, nil
}

// imageDataURL inlines a JPEG as a data URL
func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// segmentsFromCaptions turns per-frame captions into back-to-back segments ending at the clip end
func segmentsFromCaptions(captions []Segment, clip time.Duration) []Segment {
	out := make([]Segment, 0, len(captions))
	for i, c := range captions {
		end := clip
		if i+1 < len(captions) {
			end = captions[i+1].Start
		}
		if end <= c.Start {
			continue
		}
		out = append(out, Segment{Start: c.Start, End: end, Description: c.Description})
	}
	return out
}

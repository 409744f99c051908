package ai

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// segmentJSON is the declared transcription output schema
type segmentJSON struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description"`
}

// overrun tolerated past the clip end before a segment is clamped
const clipOverrun = 5 * time.Second

// ParseTranscription decodes a transcription response into ordered, non-overlapping segments.
// Overlapping segments are trimmed against their predecessor and empty ones are dropped.
func ParseTranscription(raw string, clip time.Duration) ([]Segment, error) {
	content := extractJSON(raw)

	var items []segmentJSON
	var wrapped struct {
		Segments []segmentJSON `json:"segments"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && wrapped.Segments != nil {
		items = wrapped.Segments
	} else if err := json.Unmarshal([]byte(content), &items); err != nil {
		return nil, malformed("transcription is not valid JSON: %v", err)
	}

	segments := make([]Segment, 0, len(items))
	for _, item := range items {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			continue
		}
		start, err := ParseOffset(item.Start)
		if err != nil {
			return nil, malformed("segment start: %v", err)
		}
		end, err := ParseOffset(item.End)
		if err != nil {
			return nil, malformed("segment end: %v", err)
		}
		if clip > 0 && end > clip && end <= clip+clipOverrun {
			end = clip
		}
		if end <= start {
			continue
		}
		segments = append(segments, Segment{Start: start, End: end, Description: desc})
	}

	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })

	out := segments[:0]
	for _, s := range segments {
		if n := len(out); n > 0 && s.Start < out[n-1].End {
			s.Start = out[n-1].End
			if s.End <= s.Start {
				continue
			}
		}
		out = append(out, s)
	}

	if len(out) == 0 {
		return nil, malformed("transcription contains no usable segments")
	}
	return out, nil
}

// ParseCards decodes a synthesis response. Either {"cards": [...]} or a bare array is accepted.
func ParseCards(raw string) ([]CardDraft, error) {
	content := extractJSON(raw)

	var wrapped struct {
		Cards []CardDraft `json:"cards"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && wrapped.Cards != nil {
		return wrapped.Cards, nil
	}

	var cards []CardDraft
	if err := json.Unmarshal([]byte(content), &cards); err != nil {
		return nil, malformed("cards are not valid JSON: %v", err)
	}
	return cards, nil
}

// ParseOffset parses "SS", "MM:SS" or "HH:MM:SS" into a duration
func ParseOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty offset")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid offset %q", s)
	}

	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
		// only the leading component may exceed 59
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
		total = total*60 + v
	}
	return time.Duration(total * float64(time.Second)), nil
}

// FormatOffset renders a duration as MM:SS, or HH:MM:SS past one hour
func FormatOffset(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs >= 3600 {
		return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

var clockLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"3:04:05 PM",
	"3:04:05PM",
	"15:04",
	"15:04:05",
}

// ClockFormat is the wall-clock layout used in prompts
const ClockFormat = "3:04 PM"

// FormatClock renders t as wall-clock time in loc
func FormatClock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(ClockFormat)
}

// ResolveClock maps a wall-clock string onto the absolute instant in loc nearest to ref.
// Clock strings carry no date, so the previous, same and next day are all candidates.
func ResolveClock(clock string, ref time.Time, loc *time.Location) (time.Time, error) {
	clock = strings.ToUpper(strings.TrimSpace(clock))
	var parsed time.Time
	var err error
	for _, layout := range clockLayouts {
		if parsed, err = time.Parse(layout, clock); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q", clock)
	}

	local := ref.In(loc)
	var best time.Time
	var bestDist time.Duration = -1
	for _, offset := range []int{-1, 0, 1} {
		d := local.AddDate(0, 0, offset)
		candidate := time.Date(d.Year(), d.Month(), d.Day(), parsed.Hour(), parsed.Minute(), parsed.Second(), 0, loc)
		dist := candidate.Sub(ref)
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = candidate, dist
		}
	}
	return best.UTC(), nil
}

func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	// Check if wrapped in markdown code block
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		if idx := strings.LastIndex(content, "```"); idx != -1 {
			content = content[:idx]
		}
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx != -1 {
			content = content[:idx]
		}
	}

	return strings.TrimSpace(content)
}

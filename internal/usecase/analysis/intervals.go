package analysis

import (
	"sort"
	"time"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
)

type interval struct {
	start time.Time
	end   time.Time
}

func (iv interval) duration() time.Duration {
	if !iv.end.After(iv.start) {
		return 0
	}
	return iv.end.Sub(iv.start)
}

// mergeIntervals sorts and merges overlapping or touching intervals
func mergeIntervals(ivs []interval) []interval {
	clean := make([]interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.end.After(iv.start) {
			clean = append(clean, iv)
		}
	}
	sort.Slice(clean, func(i, j int) bool { return clean[i].start.Before(clean[j].start) })

	out := make([]interval, 0, len(clean))
	for _, iv := range clean {
		if n := len(out); n > 0 && !iv.start.After(out[n-1].end) {
			if iv.end.After(out[n-1].end) {
				out[n-1].end = iv.end
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// subtractIntervals returns the parts of a not covered by b. Both must be merged.
func subtractIntervals(a, b []interval) []interval {
	var out []interval
	j := 0
	for _, iv := range a {
		cur := iv.start
		for j < len(b) && !b[j].end.After(cur) {
			j++
		}
		for k := j; k < len(b) && b[k].start.Before(iv.end); k++ {
			if b[k].start.After(cur) {
				out = append(out, interval{start: cur, end: b[k].start})
			}
			if b[k].end.After(cur) {
				cur = b[k].end
			}
		}
		if iv.end.After(cur) {
			out = append(out, interval{start: cur, end: iv.end})
		}
	}
	return out
}

func totalDuration(ivs []interval) time.Duration {
	var d time.Duration
	for _, iv := range ivs {
		d += iv.duration()
	}
	return d
}

func observationIntervals(observations []entities.Observation) []interval {
	ivs := make([]interval, 0, len(observations))
	for _, o := range observations {
		ivs = append(ivs, interval{start: o.StartTs, end: o.EndTs})
	}
	return mergeIntervals(ivs)
}

func cardIntervals(cards []*entities.TimelineCard) []interval {
	ivs := make([]interval, 0, len(cards))
	for _, c := range cards {
		ivs = append(ivs, interval{start: c.StartTs, end: c.EndTs})
	}
	return mergeIntervals(ivs)
}

// mediaSpan places one chunk on the combined clip
type mediaSpan struct {
	start  time.Time
	offset time.Duration
	length time.Duration
}

// mediaClock maps offsets in the concatenated clip back to wall-clock time.
// Gaps between chunks do not exist in the clip, so the mapping is piecewise.
type mediaClock struct {
	spans []mediaSpan
	total time.Duration
}

func newMediaClock(chunks []entities.RecordingChunk) mediaClock {
	var m mediaClock
	for _, c := range chunks {
		d := c.Duration()
		m.spans = append(m.spans, mediaSpan{start: c.StartTs, offset: m.total, length: d})
		m.total += d
	}
	return m
}

// At converts a clip offset to absolute time. End offsets that fall exactly on a
// chunk boundary map to the end of the earlier chunk rather than the start of the next.
func (m mediaClock) At(offset time.Duration, isEnd bool) time.Time {
	if len(m.spans) == 0 {
		return time.Time{}
	}
	if offset <= 0 {
		return m.spans[0].start
	}
	for _, s := range m.spans {
		inside := offset < s.offset+s.length
		if isEnd {
			inside = offset <= s.offset+s.length
		}
		if inside {
			return s.start.Add(offset - s.offset)
		}
	}
	last := m.spans[len(m.spans)-1]
	return last.start.Add(last.length)
}

// OffsetOf converts an absolute time to a clip offset, clamping times in gaps forward
func (m mediaClock) OffsetOf(t time.Time) time.Duration {
	for _, s := range m.spans {
		if t.Before(s.start) {
			return s.offset
		}
		if t.Before(s.start.Add(s.length)) {
			return s.offset + t.Sub(s.start)
		}
	}
	return m.total
}

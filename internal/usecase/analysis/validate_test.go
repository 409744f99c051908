package analysis

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
)

var nine = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

// a window wide enough that clamping changes nothing
var wideStart, wideEnd = nine.Add(-time.Hour), nine.Add(2 * time.Hour)

func at(minutes int) time.Time {
	return nine.Add(time.Duration(minutes) * time.Minute)
}

func card(title string, from, to int) *entities.TimelineCard {
	return &entities.TimelineCard{ID: uuid.New(), Title: title, StartTs: at(from), EndTs: at(to)}
}

func observed(spans ...[2]int) []interval {
	ivs := make([]interval, 0, len(spans))
	for _, s := range spans {
		ivs = append(ivs, interval{start: at(s[0]), end: at(s[1])})
	}
	return mergeIntervals(ivs)
}

func defaultRules() Rules {
	return Rules{
		MinCardDuration: 10 * time.Minute,
		MinDistraction:  30 * time.Second,
		CoverageGap:     3 * time.Minute,
		MinCoverage:     0.9,
	}
}

func rulesHit(violations []Violation) map[string]int {
	hit := make(map[string]int)
	for _, v := range violations {
		hit[v.Rule]++
	}
	return hit
}

func TestMediaClock_MapsAcrossGaps(t *testing.T) {
	clock := newMediaClock([]entities.RecordingChunk{
		{StartTs: at(0), EndTs: at(5)},
		{StartTs: at(7), EndTs: at(12)},
	})

	assert.Equal(t, 10*time.Minute, clock.total)
	assert.Equal(t, at(0), clock.At(0, false))
	assert.Equal(t, at(5), clock.At(5*time.Minute, true), "end on a boundary stays in the earlier chunk")
	assert.Equal(t, at(7), clock.At(5*time.Minute, false), "start on a boundary moves to the next chunk")
	assert.Equal(t, at(8), clock.At(6*time.Minute, false))
	assert.Equal(t, at(12), clock.At(time.Hour, true), "overrun clamps to the end")

	assert.Equal(t, 5*time.Minute, clock.OffsetOf(at(6)), "time in a gap maps forward")
	assert.Equal(t, 6*time.Minute, clock.OffsetOf(at(8)))
	assert.Equal(t, 10*time.Minute, clock.OffsetOf(at(30)))
}

func TestSubtractIntervals(t *testing.T) {
	a := observed([2]int{0, 30}, [2]int{40, 60})
	b := observed([2]int{5, 10}, [2]int{25, 45})

	got := subtractIntervals(a, b)

	require.Len(t, got, 3)
	assert.Equal(t, interval{start: at(0), end: at(5)}, got[0])
	assert.Equal(t, interval{start: at(10), end: at(25)}, got[1])
	assert.Equal(t, interval{start: at(45), end: at(60)}, got[2])
}

func TestRulesCheck_ValidCards(t *testing.T) {
	violations := defaultRules().Check(checkInput{
		cards:        []*entities.TimelineCard{card("Coding", 0, 20), card("Email", 20, 28)},
		observations: observed([2]int{0, 29}),
		loc:          time.UTC,
	})
	assert.Empty(t, violations)
}

func TestRulesCheck_CoverageShortfallDescribesGap(t *testing.T) {
	violations := defaultRules().Check(checkInput{
		cards:        []*entities.TimelineCard{card("Coding", 0, 42)},
		observations: observed([2]int{0, 60}),
		loc:          time.UTC,
	})

	hit := rulesHit(violations)
	assert.Equal(t, 1, hit[RuleCoverage])
	assert.Equal(t, 1, hit[RuleGap])

	text := Describe(violations)
	assert.Contains(t, text, "70%")
	assert.Contains(t, text, "9:42 AM - 10:00 AM")
}

func TestRulesCheck_IdleStretchIsNotAGap(t *testing.T) {
	violations := defaultRules().Check(checkInput{
		cards:        []*entities.TimelineCard{card("Coding", 0, 20), card("Writing", 40, 60)},
		observations: observed([2]int{0, 20}, [2]int{40, 60}),
		loc:          time.UTC,
	})
	assert.Empty(t, violations)
}

func TestRulesCheck_SmallGapWithinTolerance(t *testing.T) {
	violations := defaultRules().Check(checkInput{
		cards:        []*entities.TimelineCard{card("Coding", 0, 30), card("Writing", 32, 60)},
		observations: observed([2]int{0, 60}),
		loc:          time.UTC,
	})
	assert.Empty(t, violations)
}

func TestRulesCheck_OverlapAndShortCard(t *testing.T) {
	violations := defaultRules().Check(checkInput{
		cards:        []*entities.TimelineCard{card("Slack", 0, 5), card("Coding", 4, 30)},
		observations: observed([2]int{0, 30}),
		loc:          time.UTC,
	})

	hit := rulesHit(violations)
	assert.Equal(t, 1, hit[RuleOverlap])
	assert.Equal(t, 1, hit[RuleMinDuration])
	assert.Contains(t, Describe(violations), `"Slack" lasts 5 minutes`)
}

func TestRulesCheck_ShortLastCardAllowed(t *testing.T) {
	violations := defaultRules().Check(checkInput{
		cards:        []*entities.TimelineCard{card("Coding", 0, 25), card("Break", 25, 29)},
		observations: observed([2]int{0, 29}),
		loc:          time.UTC,
	})
	assert.Empty(t, violations)
}

func TestRulesCheck_DistractionBounds(t *testing.T) {
	c := card("Coding", 0, 40)
	c.Distractions = []entities.Distraction{
		{Title: "blip", StartTime: at(1), EndTime: at(1).Add(10 * time.Second)},
		{Title: "long", StartTime: at(5), EndTime: at(17)},
		{Title: "outside", StartTime: at(39), EndTime: at(41)},
		{Title: "fine", StartTime: at(20), EndTime: at(22)},
	}

	violations := defaultRules().Check(checkInput{
		cards:        []*entities.TimelineCard{c},
		observations: observed([2]int{0, 40}),
		loc:          time.UTC,
	})

	assert.Equal(t, 3, rulesHit(violations)[RuleDistraction])
	text := Describe(violations)
	assert.Contains(t, text, `"blip"`)
	assert.Contains(t, text, `"long"`)
	assert.Contains(t, text, `"outside"`)
	assert.NotContains(t, text, `"fine"`)
}

func TestRulesCheck_Continuation(t *testing.T) {
	previous := card("Design review", -15, 0)
	obs := observed([2]int{0, 30})

	kept := defaultRules().Check(checkInput{
		cards:        []*entities.TimelineCard{card("Design review", -15, 30)},
		observations: obs,
		previous:     previous,
		loc:          time.UTC,
	})
	assert.Empty(t, kept, "continuing card keeps its original start")

	moved := defaultRules().Check(checkInput{
		cards:        []*entities.TimelineCard{card("Design review", -10, 30)},
		observations: obs,
		previous:     previous,
		loc:          time.UTC,
	})
	require.Equal(t, 1, rulesHit(moved)[RuleContinuation])
	assert.Contains(t, Describe(moved), "must keep its start time 8:45 AM")
}

func TestRulesCheck_Empty(t *testing.T) {
	violations := defaultRules().Check(checkInput{observations: observed([2]int{0, 10}), loc: time.UTC})
	require.Len(t, violations, 1)
	assert.Equal(t, RuleEmpty, violations[0].Rule)
}

func TestBuildCards_ResolvesClocksAndReportsBadOnes(t *testing.T) {
	batchID := uuid.New()
	drafts := []ai.CardDraft{
		{StartTime: "9:20 AM", EndTime: "9:45 AM", Title: "Writing", Category: " Work "},
		{StartTime: "9:00 AM", EndTime: "9:20 AM", Title: "Coding",
			Distractions: []ai.DistractionDraft{{StartTime: "9:05 AM", EndTime: "9:07 AM", Title: "News"}}},
		{StartTime: "quarter past", EndTime: "9:50 AM", Title: "Broken"},
	}

	cards, violations := buildCards(drafts, batchID, nine, time.UTC)

	require.Len(t, cards, 2)
	assert.Equal(t, "Coding", cards[0].Title, "sorted by start")
	assert.Equal(t, at(0), cards[0].StartTs)
	assert.Equal(t, at(20), cards[0].EndTs)
	require.Len(t, cards[0].Distractions, 1)
	assert.Equal(t, at(5), cards[0].Distractions[0].StartTime)
	assert.Equal(t, "Work", cards[1].Category)
	assert.Equal(t, batchID, cards[1].BatchID)

	require.Len(t, violations, 1)
	assert.Equal(t, RuleFormat, violations[0].Rule)
	assert.Contains(t, violations[0].Message, "quarter past")
}

func TestNormalize_MakesBestEffortOutputStorable(t *testing.T) {
	first := card("Coding", 0, 30)
	first.Distractions = []entities.Distraction{
		{Title: "short", StartTime: at(2), EndTime: at(2).Add(5 * time.Second)},
		{Title: "kept", StartTime: at(10), EndTime: at(12)},
		{Title: "spills", StartTime: at(29), EndTime: at(31)},
	}
	overlapping := card("Email", 25, 40)
	swallowed := card("Blip", 26, 29)

	out := normalize([]*entities.TimelineCard{overlapping, swallowed, first}, defaultRules(), nil, wideStart, wideEnd, false, time.UTC)

	require.Len(t, out, 2)
	assert.Equal(t, "Coding", out[0].Title)
	assert.Equal(t, "Email", out[1].Title)
	assert.Equal(t, at(30), out[1].StartTs, "overlap trimmed to previous end")
	require.Len(t, out[0].Distractions, 1)
	assert.Equal(t, "kept", out[0].Distractions[0].Title)
	for _, c := range out {
		assert.False(t, c.Validated)
		assert.Equal(t, "2024-03-10", c.Day)
	}
}

func TestNormalize_SnapsContinuationToStoredStart(t *testing.T) {
	previous := &entities.TimelineCard{StartTs: at(-15).Add(20 * time.Second), EndTs: at(0)}
	c := card("Design review", -15, 20)

	out := normalize([]*entities.TimelineCard{c}, defaultRules(), previous, at(0), at(60), true, time.UTC)

	require.Len(t, out, 1)
	assert.Equal(t, previous.StartTs, out[0].StartTs)
	assert.True(t, out[0].Validated)
}

func TestNormalize_ClampsToWindow(t *testing.T) {
	early := card("Coding", -60, 20)
	late := card("Wrap up", 20, 45)
	previous := &entities.TimelineCard{StartTs: at(-60).Add(-time.Hour), EndTs: at(-50)}

	out := normalize([]*entities.TimelineCard{early, late}, defaultRules(), previous, at(0), at(30), false, time.UTC)

	require.Len(t, out, 2)
	assert.Equal(t, at(0), out[0].StartTs, "a card that does not continue the stored one stays inside the window")
	assert.Equal(t, at(30), out[1].EndTs)
}

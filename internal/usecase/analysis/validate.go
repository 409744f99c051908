package analysis

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// Violation rules
const (
	RuleEmpty        = "empty"
	RuleFormat       = "format"
	RuleOrder        = "order"
	RuleOverlap      = "overlap"
	RuleCoverage     = "coverage"
	RuleGap          = "gap"
	RuleMinDuration  = "min_duration"
	RuleDistraction  = "distraction"
	RuleContinuation = "continuation"
	RuleBounds       = "bounds"
)

// Violation is one reason a set of synthesized cards was rejected
type Violation struct {
	Rule    string
	Message string
}

// Rules holds the thresholds synthesized cards must satisfy
type Rules struct {
	MinCardDuration time.Duration
	MinDistraction  time.Duration
	CoverageGap     time.Duration
	MinCoverage     float64
}

// RulesFromConfig builds validation rules from analysis settings
func RulesFromConfig(cfg *config.AnalysisConfig) Rules {
	return Rules{
		MinCardDuration: cfg.MinCardDuration,
		MinDistraction:  cfg.MinDistraction,
		CoverageGap:     cfg.CoverageGap,
		MinCoverage:     cfg.MinCoverage,
	}
}

// checkInput is what a candidate card set is validated against
type checkInput struct {
	cards        []*entities.TimelineCard
	observations []interval
	previous     *entities.TimelineCard
	loc          *time.Location
}

// Check validates cards in start order and returns every violation found
func (r Rules) Check(in checkInput) []Violation {
	var out []Violation
	if len(in.cards) == 0 {
		return []Violation{{Rule: RuleEmpty, Message: "no cards were returned"}}
	}
	clock := func(t time.Time) string { return ai.FormatClock(t, in.loc) }

	for i, c := range in.cards {
		if !c.EndTs.After(c.StartTs) {
			out = append(out, Violation{Rule: RuleOrder, Message: fmt.Sprintf(
				"card %q ends at %s, which is not after its start %s", c.Title, clock(c.EndTs), clock(c.StartTs))})
			continue
		}
		if i > 0 {
			prev := in.cards[i-1]
			if c.StartTs.Before(prev.EndTs) {
				out = append(out, Violation{Rule: RuleOverlap, Message: fmt.Sprintf(
					"cards %q (%s - %s) and %q (%s - %s) overlap",
					prev.Title, clock(prev.StartTs), clock(prev.EndTs), c.Title, clock(c.StartTs), clock(c.EndTs))})
			}
		}
		if i < len(in.cards)-1 && c.Duration() < r.MinCardDuration {
			out = append(out, Violation{Rule: RuleMinDuration, Message: fmt.Sprintf(
				"card %q lasts %s; every card except the last must last at least %s, merge it into a neighbour or make it a distraction",
				c.Title, humanDuration(c.Duration()), humanDuration(r.MinCardDuration))})
		}
		out = append(out, r.checkDistractions(c, clock)...)
	}

	if len(in.observations) > 0 {
		out = append(out, r.checkCoverage(in, clock)...)
		out = append(out, r.checkBounds(in, clock)...)
	}
	return out
}

func (r Rules) checkDistractions(c *entities.TimelineCard, clock func(time.Time) string) []Violation {
	var out []Violation
	for _, d := range c.Distractions {
		switch {
		case d.StartTime.Before(c.StartTs) || d.EndTime.After(c.EndTs):
			out = append(out, Violation{Rule: RuleDistraction, Message: fmt.Sprintf(
				"distraction %q (%s - %s) falls outside its card %q (%s - %s)",
				d.Title, clock(d.StartTime), clock(d.EndTime), c.Title, clock(c.StartTs), clock(c.EndTs))})
		case d.Duration() < r.MinDistraction:
			out = append(out, Violation{Rule: RuleDistraction, Message: fmt.Sprintf(
				"distraction %q lasts %s, shorter than %s; drop it",
				d.Title, humanDuration(d.Duration()), humanDuration(r.MinDistraction))})
		case d.Duration() >= r.MinCardDuration:
			out = append(out, Violation{Rule: RuleDistraction, Message: fmt.Sprintf(
				"distraction %q lasts %s; anything %s or longer must be its own card",
				d.Title, humanDuration(d.Duration()), humanDuration(r.MinCardDuration))})
		}
	}
	return out
}

// checkCoverage measures how much observed activity the cards account for.
// Idle stretches with no observations are never counted as gaps.
func (r Rules) checkCoverage(in checkInput, clock func(time.Time) string) []Violation {
	observed := totalDuration(in.observations)
	if observed <= 0 {
		return nil
	}
	uncovered := subtractIntervals(in.observations, cardIntervals(in.cards))
	ratio := 1 - float64(totalDuration(uncovered))/float64(observed)

	var gaps []string
	var out []Violation
	for _, g := range uncovered {
		if g.duration() > r.CoverageGap {
			gaps = append(gaps, fmt.Sprintf("%s - %s", clock(g.start), clock(g.end)))
			out = append(out, Violation{Rule: RuleGap, Message: fmt.Sprintf(
				"no card covers %s - %s (%s of observed activity)", clock(g.start), clock(g.end), humanDuration(g.duration()))})
		}
	}
	if ratio < r.MinCoverage {
		first, last := in.observations[0].start, in.observations[len(in.observations)-1].end
		msg := fmt.Sprintf("cards cover %d%% of the observed activity between %s and %s, at least %d%% is required",
			int(math.Floor(ratio*100+1e-9)), clock(first), clock(last), int(math.Round(r.MinCoverage*100)))
		if len(gaps) > 0 {
			msg += "; uncovered: " + strings.Join(gaps, ", ")
		}
		out = append([]Violation{{Rule: RuleCoverage, Message: msg}}, out...)
	}
	return out
}

// checkBounds rejects cards reaching outside the observed span, except a first card
// that continues the preceding stored card and keeps its original start time.
func (r Rules) checkBounds(in checkInput, clock func(time.Time) string) []Violation {
	var out []Violation
	spanStart := in.observations[0].start
	spanEnd := in.observations[len(in.observations)-1].end

	for i, c := range in.cards {
		if c.StartTs.Before(spanStart.Add(-r.CoverageGap)) {
			if i == 0 && continues(c, in.previous) {
				continue
			}
			msg := fmt.Sprintf("card %q starts at %s, before the observations begin at %s",
				c.Title, clock(c.StartTs), clock(spanStart))
			if in.previous != nil {
				msg += fmt.Sprintf("; a card continuing %q must keep its start time %s",
					in.previous.Title, clock(in.previous.StartTs))
			}
			out = append(out, Violation{Rule: RuleContinuation, Message: msg})
		}
		if c.EndTs.After(spanEnd.Add(r.CoverageGap)) {
			out = append(out, Violation{Rule: RuleBounds, Message: fmt.Sprintf(
				"card %q ends at %s, after the observations end at %s", c.Title, clock(c.EndTs), clock(spanEnd))})
		}
	}
	return out
}

// continues reports whether card extends previous from its original start.
// Providers answer with minute precision.
func continues(card, previous *entities.TimelineCard) bool {
	if previous == nil {
		return false
	}
	return card.StartTs.Truncate(time.Minute).Equal(previous.StartTs.Truncate(time.Minute))
}

// Describe renders violations into text for the retry prompt
func Describe(violations []Violation) string {
	if len(violations) == 0 {
		return ""
	}
	lines := make([]string, 0, len(violations))
	for _, v := range violations {
		lines = append(lines, "- "+v.Message)
	}
	return "\n" + strings.Join(lines, "\n")
}

func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d/time.Minute), int((d%time.Minute)/time.Second))
	}
	return fmt.Sprintf("%d seconds", int(d/time.Second))
}

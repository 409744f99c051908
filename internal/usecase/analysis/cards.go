package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/pkg/ai"
)

// buildCards resolves provider clock strings into absolute cards. Drafts whose
// times cannot be read are dropped and reported as violations.
func buildCards(drafts []ai.CardDraft, batchID uuid.UUID, ref time.Time, loc *time.Location) ([]*entities.TimelineCard, []Violation) {
	var (
		cards      []*entities.TimelineCard
		violations []Violation
	)
	cursor := ref
	for _, d := range drafts {
		start, err := ai.ResolveClock(d.StartTime, cursor, loc)
		if err != nil {
			violations = append(violations, formatViolation(d.Title, "start_time", d.StartTime))
			continue
		}
		end, err := ai.ResolveClock(d.EndTime, start, loc)
		if err != nil {
			violations = append(violations, formatViolation(d.Title, "end_time", d.EndTime))
			continue
		}

		card := &entities.TimelineCard{
			ID:              uuid.New(),
			BatchID:         batchID,
			StartTs:         start,
			EndTs:           end,
			Category:        strings.TrimSpace(d.Category),
			Subcategory:     strings.TrimSpace(d.Subcategory),
			Title:           strings.TrimSpace(d.Title),
			Summary:         strings.TrimSpace(d.Summary),
			DetailedSummary: strings.TrimSpace(d.DetailedSummary),
		}
		for _, dd := range d.Distractions {
			ds, err := ai.ResolveClock(dd.StartTime, start, loc)
			if err != nil {
				violations = append(violations, formatViolation(dd.Title, "distraction start_time", dd.StartTime))
				continue
			}
			de, err := ai.ResolveClock(dd.EndTime, ds, loc)
			if err != nil {
				violations = append(violations, formatViolation(dd.Title, "distraction end_time", dd.EndTime))
				continue
			}
			card.Distractions = append(card.Distractions, entities.Distraction{
				StartTime: ds,
				EndTime:   de,
				Title:     strings.TrimSpace(dd.Title),
				Summary:   strings.TrimSpace(dd.Summary),
			})
		}
		cards = append(cards, card)
		cursor = end
	}

	sort.SliceStable(cards, func(i, j int) bool { return cards[i].StartTs.Before(cards[j].StartTs) })
	return cards, violations
}

func formatViolation(title, field, value string) Violation {
	return Violation{Rule: RuleFormat, Message: fmt.Sprintf(
		"card %q has %s %q, which is not a clock time like %q", title, field, value, ai.ClockFormat)}
}

// normalize makes cards safe to store whether or not they passed validation:
// inside [start, end), sorted, non-overlapping, non-empty, with distractions
// inside their card and within the allowed length. Only a first card continuing
// previous may start before the window.
func normalize(cards []*entities.TimelineCard, rules Rules, previous *entities.TimelineCard, start, end time.Time, validated bool, loc *time.Location) []*entities.TimelineCard {
	sorted := make([]*entities.TimelineCard, len(cards))
	copy(sorted, cards)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartTs.Before(sorted[j].StartTs) })

	out := make([]*entities.TimelineCard, 0, len(sorted))
	for i, c := range sorted {
		switch {
		case i == 0 && continues(c, previous):
			c.StartTs = previous.StartTs
		case c.StartTs.Before(start):
			c.StartTs = start
		}
		if c.EndTs.After(end) {
			c.EndTs = end
		}
		if n := len(out); n > 0 && c.StartTs.Before(out[n-1].EndTs) {
			c.StartTs = out[n-1].EndTs
		}
		if !c.EndTs.After(c.StartTs) {
			continue
		}

		kept := c.Distractions[:0]
		for _, d := range c.Distractions {
			if d.StartTime.Before(c.StartTs) || d.EndTime.After(c.EndTs) {
				continue
			}
			if d.Duration() < rules.MinDistraction || d.Duration() >= rules.MinCardDuration {
				continue
			}
			kept = append(kept, d)
		}
		sort.SliceStable(kept, func(a, b int) bool { return kept[a].StartTime.Before(kept[b].StartTime) })
		c.Distractions = kept

		c.StartTs = c.StartTs.UTC()
		c.EndTs = c.EndTs.UTC()
		c.Day = entities.LogicalDay(c.StartTs, loc)
		c.Validated = validated
		out = append(out, c)
	}
	return out
}

// cardContexts converts stored cards into synthesis context
func cardContexts(cards []entities.TimelineCard) []ai.CardContext {
	out := make([]ai.CardContext, 0, len(cards))
	for _, c := range cards {
		out = append(out, ai.CardContext{
			Start:       c.StartTs,
			End:         c.EndTs,
			Category:    c.Category,
			Subcategory: c.Subcategory,
			Title:       c.Title,
			Summary:     c.Summary,
		})
	}
	return out
}

func observationInputs(observations []entities.Observation) []ai.ObservationInput {
	out := make([]ai.ObservationInput, 0, len(observations))
	for _, o := range observations {
		out = append(out, ai.ObservationInput{Start: o.StartTs, End: o.EndTs, Text: o.Text})
	}
	return out
}

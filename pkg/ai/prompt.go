package ai

import (
	"fmt"
	"strings"
	"time"
)

const transcriptionSystem = `You watch screen recordings of one person's computer and describe what they are doing.
Describe activity, not pixels: name the application, the document or site, and the task.
Return JSON only, matching this schema:
{"segments":[{"start":"MM:SS","end":"MM:SS","description":"..."}]}
Segments must be in order, must not overlap, and must cover the whole recording.`

const synthesisSystem = `You turn timestamped observations of someone's screen activity into timeline cards.
Each card is one coherent activity. Brief unrelated detours inside an activity are distractions, not separate cards.
Return JSON only, matching this schema:
{"cards":[{"start_time":"3:04 PM","end_time":"3:04 PM","category":"...","subcategory":"...","title":"...","summary":"...","detailed_summary":"...","distractions":[{"start_time":"3:04 PM","end_time":"3:04 PM","title":"...","summary":"..."}]}]}`

// TranscriptionPrompt returns the system and user instructions for describing a clip
func TranscriptionPrompt(duration time.Duration) (string, string) {
	user := fmt.Sprintf("The recording is %s long. Offsets are measured from its start. "+
		"Describe it in segments of roughly one to five minutes.", FormatOffset(duration))
	return transcriptionSystem, user
}

// FrameCaptionPrompt asks a vision model to describe a single frame
func FrameCaptionPrompt(offset time.Duration) string {
	return fmt.Sprintf("This is a screenshot taken at %s into a screen recording. "+
		"In one or two sentences, describe what the user is doing. Plain text only.", FormatOffset(offset))
}

// CaptionMergePrompt asks a text model to fold per-frame captions into segments
func CaptionMergePrompt(duration time.Duration, captions []Segment) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "The recording is %s long. These captions describe frames sampled from it:\n", FormatOffset(duration))
	for _, c := range captions {
		fmt.Fprintf(&b, "[%s] %s\n", FormatOffset(c.Start), c.Description)
	}
	b.WriteString("Merge consecutive captions showing the same activity into segments.")
	return transcriptionSystem, b.String()
}

// SynthesisPrompt returns the system and user instructions for building cards
func SynthesisPrompt(req SynthesisRequest) (string, string) {
	loc := req.Location
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	b.WriteString("Categories (use these names exactly):\n")
	for _, c := range req.Categories {
		fmt.Fprintf(&b, "- %s", c.Name)
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		if len(c.Subcategories) > 0 {
			fmt.Fprintf(&b, " (subcategories: %s)", strings.Join(c.Subcategories, ", "))
		}
		b.WriteString("\n")
	}
	if len(req.InferredCategories) > 0 {
		fmt.Fprintf(&b, "Categories seen earlier today: %s\n", strings.Join(req.InferredCategories, ", "))
	}

	if len(req.PriorCards) > 0 {
		b.WriteString("\nExisting cards before this window (for continuity, do not repeat them):\n")
		for _, c := range req.PriorCards {
			fmt.Fprintf(&b, "[%s - %s] %s / %s: %s\n",
				FormatClock(c.Start, loc), FormatClock(c.End, loc), c.Category, c.Subcategory, c.Title)
		}
	}

	fmt.Fprintf(&b, "\nObservations from %s to %s:\n", FormatClock(req.WindowStart, loc), FormatClock(req.WindowEnd, loc))
	for _, o := range req.Observations {
		fmt.Fprintf(&b, "[%s - %s] %s\n", FormatClock(o.Start, loc), FormatClock(o.End, loc), o.Text)
	}

	fmt.Fprintf(&b, "\nRules:\n"+
		"- Cards must cover %s to %s without gaps and must not overlap.\n"+
		"- Every card except the last must last at least %d minutes.\n"+
		"- Distractions last at least %d seconds and fall inside their card.\n",
		FormatClock(req.WindowStart, loc), FormatClock(req.WindowEnd, loc),
		int(req.MinCardDuration.Minutes()), int(req.MinDistraction.Seconds()))

	if req.Violation != "" {
		fmt.Fprintf(&b, "\nYour previous answer was rejected: %s\nFix this and answer again.\n", req.Violation)
	}

	return synthesisSystem, b.String()
}

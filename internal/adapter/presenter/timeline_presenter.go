package presenter

import (
	"github.com/johnquangdev/timeline-assistant/internal/adapter/dto/timeline"
	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
)

// ToChunkResponse converts a RecordingChunk entity to ChunkResponse DTO
func ToChunkResponse(c *entities.RecordingChunk) *timeline.ChunkResponse {
	if c == nil {
		return nil
	}
	return &timeline.ChunkResponse{
		ID:      c.ID.String(),
		FileRef: c.FileRef,
		StartTs: c.StartTs,
		EndTs:   c.EndTs,
		Status:  string(c.Status),
	}
}

// ToCardResponse converts a TimelineCard entity to CardResponse DTO
func ToCardResponse(c *entities.TimelineCard) *timeline.CardResponse {
	if c == nil {
		return nil
	}

	distractions := make([]timeline.DistractionResponse, 0, len(c.Distractions))
	for _, d := range c.Distractions {
		distractions = append(distractions, timeline.DistractionResponse{
			StartTime: d.StartTime,
			EndTime:   d.EndTime,
			Title:     d.Title,
			Summary:   d.Summary,
		})
	}

	return &timeline.CardResponse{
		ID:              c.ID.String(),
		BatchID:         c.BatchID.String(),
		StartTs:         c.StartTs,
		EndTs:           c.EndTs,
		Day:             c.Day,
		Category:        c.Category,
		Subcategory:     c.Subcategory,
		Title:           c.Title,
		Summary:         c.Summary,
		DetailedSummary: c.DetailedSummary,
		Distractions:    distractions,
		HasVideo:        c.VideoSummaryRef != nil && *c.VideoSummaryRef != "",
		Validated:       c.Validated,
	}
}

// ToCardResponses converts a list of cards
func ToCardResponses(cards []entities.TimelineCard) []*timeline.CardResponse {
	out := make([]*timeline.CardResponse, 0, len(cards))
	for i := range cards {
		out = append(out, ToCardResponse(&cards[i]))
	}
	return out
}

// ToBatchResponse converts an AnalysisBatch entity to BatchResponse DTO
func ToBatchResponse(b *entities.AnalysisBatch) *timeline.BatchResponse {
	if b == nil {
		return nil
	}
	return &timeline.BatchResponse{
		ID:            b.ID.String(),
		StartTs:       b.StartTs,
		EndTs:         b.EndTs,
		Status:        string(b.Status),
		FailureReason: b.FailureReason,
		Unvalidated:   b.Unvalidated,
		Calls:         len(b.CallLog),
		StartedAt:     b.StartedAt,
		CompletedAt:   b.CompletedAt,
	}
}

// ToBatchResponses converts a list of batches
func ToBatchResponses(batches []entities.AnalysisBatch) []*timeline.BatchResponse {
	out := make([]*timeline.BatchResponse, 0, len(batches))
	for i := range batches {
		out = append(out, ToBatchResponse(&batches[i]))
	}
	return out
}

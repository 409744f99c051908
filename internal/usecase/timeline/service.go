package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
	"github.com/johnquangdev/timeline-assistant/internal/domain/repositories"
)

const maxBatchPage = 200

// Service defines read access to the stored timeline
type Service interface {
	// ForDay returns the cards of a logical day in time order
	ForDay(ctx context.Context, day string) ([]entities.TimelineCard, error)
	// InRange returns the cards overlapping [from, to) in time order
	InRange(ctx context.Context, from, to time.Time) ([]entities.TimelineCard, error)
	Card(ctx context.Context, id uuid.UUID) (*entities.TimelineCard, error)
	ListBatches(ctx context.Context, filters repositories.BatchFilters) ([]entities.AnalysisBatch, int64, error)
}

type timelineService struct {
	cardRepo  repositories.TimelineCardRepository
	batchRepo repositories.BatchRepository
	loc       *time.Location
}

// NewService creates a timeline read service
func NewService(cardRepo repositories.TimelineCardRepository, batchRepo repositories.BatchRepository, loc *time.Location) Service {
	if loc == nil {
		loc = time.Local
	}
	return &timelineService{
		cardRepo:  cardRepo,
		batchRepo: batchRepo,
		loc:       loc,
	}
}

func (s *timelineService) ForDay(ctx context.Context, day string) ([]entities.TimelineCard, error) {
	if _, _, err := entities.DayBounds(day, s.loc); err != nil {
		return nil, err
	}
	cards, err := s.cardRepo.ListForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards for %s: %w", day, err)
	}
	return cards, nil
}

func (s *timelineService) InRange(ctx context.Context, from, to time.Time) ([]entities.TimelineCard, error) {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return nil, entities.ErrInvalidTimeRange
	}
	cards, err := s.cardRepo.ListInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

func (s *timelineService) Card(ctx context.Context, id uuid.UUID) (*entities.TimelineCard, error) {
	return s.cardRepo.FindByID(ctx, id)
}

func (s *timelineService) ListBatches(ctx context.Context, filters repositories.BatchFilters) ([]entities.AnalysisBatch, int64, error) {
	if filters.Limit <= 0 || filters.Limit > maxBatchPage {
		filters.Limit = maxBatchPage
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.batchRepo.List(ctx, filters)
}

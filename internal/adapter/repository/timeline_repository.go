package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/johnquangdev/timeline-assistant/internal/domain/entities"
)

// ObservationRepository handles observation data operations
type ObservationRepository struct {
	db *gorm.DB
}

// NewObservationRepository creates a new observation repository
func NewObservationRepository(db *gorm.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// SaveAll inserts observations
func (r *ObservationRepository) SaveAll(ctx context.Context, observations []*entities.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(observations, 100).Error
}

// ListForBatch returns a batch's observations in time order
func (r *ObservationRepository) ListForBatch(ctx context.Context, batchID uuid.UUID) ([]entities.Observation, error) {
	var observations []entities.Observation
	if err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("start_ts ASC").
		Find(&observations).Error; err != nil {
		return nil, err
	}
	return observations, nil
}

// ListInRange returns observations overlapping [from, to) in time order
func (r *ObservationRepository) ListInRange(ctx context.Context, from, to time.Time) ([]entities.Observation, error) {
	var observations []entities.Observation
	if err := r.db.WithContext(ctx).
		Where("start_ts < ? AND end_ts > ?", to.UTC(), from.UTC()).
		Order("start_ts ASC").
		Find(&observations).Error; err != nil {
		return nil, err
	}
	return observations, nil
}

// DeleteForBatches removes all observations of the given batches
func (r *ObservationRepository) DeleteForBatches(ctx context.Context, batchIDs []uuid.UUID) (int64, error) {
	if len(batchIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("batch_id IN ?", batchIDs).Delete(&entities.Observation{})
	return result.RowsAffected, result.Error
}

// TimelineCardRepository handles timeline card data operations
type TimelineCardRepository struct {
	db  *gorm.DB
	loc *time.Location // logical day boundaries of trimmed cards
}

// NewTimelineCardRepository creates a new timeline card repository
func NewTimelineCardRepository(db *gorm.DB, loc *time.Location) *TimelineCardRepository {
	if loc == nil {
		loc = time.Local
	}
	return &TimelineCardRepository{db: db, loc: loc}
}

// FindByID finds a card by ID
func (r *TimelineCardRepository) FindByID(ctx context.Context, id uuid.UUID) (*entities.TimelineCard, error) {
	var card entities.TimelineCard
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

// ListForDay returns the cards of a logical day in time order
func (r *TimelineCardRepository) ListForDay(ctx context.Context, day string) ([]entities.TimelineCard, error) {
	var cards []entities.TimelineCard
	if err := r.db.WithContext(ctx).
		Where("day = ?", day).
		Order("start_ts ASC").
		Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

// ListInRange returns cards overlapping [from, to) in time order
func (r *TimelineCardRepository) ListInRange(ctx context.Context, from, to time.Time) ([]entities.TimelineCard, error) {
	var cards []entities.TimelineCard
	if err := r.db.WithContext(ctx).
		Where("start_ts < ? AND end_ts > ?", to.UTC(), from.UTC()).
		Order("start_ts ASC").
		Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

// ReplaceInRange deletes cards lying inside [from, to), trims cards straddling a
// boundary so nothing overlaps the range, and inserts the new cards. A card
// spanning the whole range is split into a head before from and a tail after to.
func (r *TimelineCardRepository) ReplaceInRange(ctx context.Context, from, to time.Time, cards []*entities.TimelineCard) ([]string, error) {
	from, to = from.UTC(), to.UTC()
	var reclaimed []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entities.TimelineCard{}).
			Where("start_ts >= ? AND end_ts <= ? AND video_summary_ref IS NOT NULL", from, to).
			Pluck("video_summary_ref", &reclaimed).Error; err != nil {
			return err
		}
		if err := tx.Where("start_ts >= ? AND end_ts <= ?", from, to).
			Delete(&entities.TimelineCard{}).Error; err != nil {
			return err
		}

		var straddling []entities.TimelineCard
		if err := tx.Where("start_ts < ? AND end_ts > ?", to, from).
			Find(&straddling).Error; err != nil {
			return err
		}
		for i := range straddling {
			c := &straddling[i]
			var tail *entities.TimelineCard
			if c.EndTs.After(to) {
				tail = r.trimmed(*c, to, c.EndTs)
				if !c.StartTs.Before(from) {
					// only the tail survives; keep the row and its video summary
					tail.ID = c.ID
					tail.VideoSummaryRef = c.VideoSummaryRef
					if err := tx.Save(tail).Error; err != nil {
						return err
					}
					continue
				}
				tail.ID = uuid.New()
				tail.VideoSummaryRef = nil
			}
			head := r.trimmed(*c, c.StartTs, from)
			if err := tx.Save(head).Error; err != nil {
				return err
			}
			if tail != nil {
				if err := tx.Create(tail).Error; err != nil {
					return err
				}
			}
		}

		if len(cards) == 0 {
			return nil
		}
		return tx.CreateInBatches(cards, 100).Error
	})
	if err != nil {
		return nil, err
	}
	return reclaimed, nil
}

// trimmed returns c cut to [start, end) with its day and distractions brought in line
func (r *TimelineCardRepository) trimmed(c entities.TimelineCard, start, end time.Time) *entities.TimelineCard {
	c.StartTs, c.EndTs = start.UTC(), end.UTC()
	c.Day = entities.LogicalDay(c.StartTs, r.loc)
	kept := make(datatypes.JSONSlice[entities.Distraction], 0, len(c.Distractions))
	for _, d := range c.Distractions {
		if !d.StartTime.Before(c.StartTs) && !d.EndTime.After(c.EndTs) {
			kept = append(kept, d)
		}
	}
	c.Distractions = kept
	return &c
}

// DeleteForDay removes all cards of a logical day and reports their video summary references
func (r *TimelineCardRepository) DeleteForDay(ctx context.Context, day string) ([]string, error) {
	var reclaimed []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entities.TimelineCard{}).
			Where("day = ? AND video_summary_ref IS NOT NULL", day).
			Pluck("video_summary_ref", &reclaimed).Error; err != nil {
			return err
		}
		return tx.Where("day = ?", day).Delete(&entities.TimelineCard{}).Error
	})
	if err != nil {
		return nil, err
	}
	return reclaimed, nil
}

// SetVideoSummary attaches a video summary file to a card
func (r *TimelineCardRepository) SetVideoSummary(ctx context.Context, id uuid.UUID, ref string) error {
	return r.db.WithContext(ctx).
		Model(&entities.TimelineCard{}).
		Where("id = ?", id).
		Update("video_summary_ref", ref).Error
}

// DistinctCategories returns the categories already used by stored cards
func (r *TimelineCardRepository) DistinctCategories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := r.db.WithContext(ctx).
		Model(&entities.TimelineCard{}).
		Distinct("category").
		Where("category <> ''").
		Order("category ASC").
		Pluck("category", &categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// SettingsRepository handles persisted settings
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the value of a setting and whether it exists
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var s entities.Setting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return s.Value, true, nil
}

// Set creates or replaces a setting
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	s := entities.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
}

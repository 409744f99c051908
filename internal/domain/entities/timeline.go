package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Observation is a timestamped description of activity produced by transcription
type Observation struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BatchID   uuid.UUID `json:"batch_id" gorm:"type:uuid;not null;index"`
	StartTs   time.Time `json:"start_ts" gorm:"not null;index"`
	EndTs     time.Time `json:"end_ts" gorm:"not null"`
	Text      string    `json:"text" gorm:"type:text;not null"`
	ModelID   string    `json:"model_id" gorm:"type:varchar(100)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (Observation) TableName() string {
	return "observations"
}

// NewObservation creates an observation for a batch
func NewObservation(batchID uuid.UUID, start, end time.Time, text, modelID string) *Observation {
	return &Observation{
		ID:        uuid.New(),
		BatchID:   batchID,
		StartTs:   start.UTC(),
		EndTs:     end.UTC(),
		Text:      text,
		ModelID:   modelID,
		CreatedAt: time.Now().UTC(),
	}
}

// Distraction is a short off-topic sub-interval embedded in a card
type Distraction struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
}

// Duration returns the span of the distraction
func (d Distraction) Duration() time.Duration {
	return d.EndTime.Sub(d.StartTime)
}

// TimelineCard is a synthesized activity segment shown to the user
type TimelineCard struct {
	ID              uuid.UUID                        `json:"id" gorm:"type:uuid;primaryKey"`
	BatchID         uuid.UUID                        `json:"batch_id" gorm:"type:uuid;not null;index"`
	StartTs         time.Time                        `json:"start_ts" gorm:"not null;index"`
	EndTs           time.Time                        `json:"end_ts" gorm:"not null"`
	Day             string                           `json:"day" gorm:"type:varchar(10);not null;index"`
	Category        string                           `json:"category" gorm:"type:varchar(100)"`
	Subcategory     string                           `json:"subcategory" gorm:"type:varchar(100)"`
	Title           string                           `json:"title" gorm:"type:text"`
	Summary         string                           `json:"summary" gorm:"type:text"`
	DetailedSummary string                           `json:"detailed_summary" gorm:"type:text"`
	Distractions    datatypes.JSONSlice[Distraction] `json:"distractions"`
	VideoSummaryRef *string                          `json:"video_summary_ref,omitempty" gorm:"type:text"`
	Validated       bool                             `json:"validated" gorm:"not null"`
	CreatedAt       time.Time                        `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (TimelineCard) TableName() string {
	return "timeline_cards"
}

// Duration returns the span of the card
func (c *TimelineCard) Duration() time.Duration {
	return c.EndTs.Sub(c.StartTs)
}

// Setting is a persisted key/value configuration entry
type Setting struct {
	Key       string    `json:"key" gorm:"type:varchar(100);primaryKey"`
	Value     string    `json:"value" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Setting) TableName() string {
	return "settings"
}

// SettingLLMProvider selects the provider used by the orchestrator
const SettingLLMProvider = "llm.provider"

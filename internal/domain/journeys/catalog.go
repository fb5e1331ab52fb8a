package journeys

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Journey is a top-level onboarding unit. Journeys are deactivated, never deleted.
type Journey struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Slug                   string     `gorm:"column:slug;not null;uniqueIndex:idx_journey_slug" json:"slug"`
	Title                  string     `gorm:"column:title;not null" json:"title"`
	Description            string     `gorm:"column:description;type:text" json:"description,omitempty"`
	IsActive               bool       `gorm:"column:is_active;not null" json:"is_active"`
	AutoAssignOnActivation bool       `gorm:"column:auto_assign_on_activation;not null" json:"auto_assign_on_activation"`
	SortOrder              int        `gorm:"column:sort_order;not null" json:"sort_order"`
	NextJourneyID          *uuid.UUID `gorm:"type:uuid;column:next_journey_id;index" json:"next_journey_id,omitempty"`
	// RequiredXP gates chained entry into this journey: a predecessor's
	// next_journey_id only auto-assigns once the user has at least this much XP.
	RequiredXP int       `gorm:"column:required_xp;not null" json:"required_xp"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (Journey) TableName() string { return "journey" }

func (j *Journey) BeforeCreate(*gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

type Chapter struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JourneyID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chapter_journey_slug,priority:1" json:"journey_id"`
	Slug        string    `gorm:"column:slug;not null;uniqueIndex:idx_chapter_journey_slug,priority:2" json:"slug"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description,omitempty"`
	SortOrder   int       `gorm:"column:sort_order;not null" json:"sort_order"`
	IsMandatory bool      `gorm:"column:is_mandatory;not null" json:"is_mandatory"`
	XPReward    int       `gorm:"column:xp_reward;not null" json:"xp_reward"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Chapter) TableName() string { return "journey_chapter" }

func (c *Chapter) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Quest struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChapterID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_quest_chapter_slug,priority:1" json:"chapter_id"`
	Slug        string    `gorm:"column:slug;not null;uniqueIndex:idx_quest_chapter_slug,priority:2" json:"slug"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description,omitempty"`
	SortOrder   int       `gorm:"column:sort_order;not null" json:"sort_order"`
	IsMandatory bool      `gorm:"column:is_mandatory;not null" json:"is_mandatory"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Quest) TableName() string { return "journey_quest" }

func (q *Quest) BeforeCreate(*gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

type Task struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	QuestID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_task_quest_slug,priority:1" json:"quest_id"`
	Slug             string         `gorm:"column:slug;not null;uniqueIndex:idx_task_quest_slug,priority:2" json:"slug"`
	Title            string         `gorm:"column:title;not null" json:"title"`
	Description      string         `gorm:"column:description;type:text" json:"description,omitempty"`
	Instructions     string         `gorm:"column:instructions;type:text" json:"instructions,omitempty"`
	SortOrder        int            `gorm:"column:sort_order;not null" json:"sort_order"`
	IsMandatory      bool           `gorm:"column:is_mandatory;not null" json:"is_mandatory"`
	ValidationType   string         `gorm:"column:validation_type;not null" json:"validation_type"`
	ValidationConfig datatypes.JSON `gorm:"column:validation_config" json:"validation_config,omitempty"`
	EstimatedMinutes *int           `gorm:"column:estimated_minutes" json:"estimated_minutes,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (Task) TableName() string { return "journey_task" }

func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// CatalogRows is the flat result of loading one journey's content. Rows are
// joined by id, never nested.
type CatalogRows struct {
	Journey  *Journey
	Chapters []*Chapter
	Quests   []*Quest
	Tasks    []*Task
}

package journeys

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AssignmentStatusAssigned   = "assigned"
	AssignmentStatusInProgress = "in_progress"
	AssignmentStatusCompleted  = "completed"
)

const (
	AssignmentSourceManual     = "manual"
	AssignmentSourceActivation = "activation"
	AssignmentSourceChain      = "chain"
)

type JourneyAssignment struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_assignment_user_journey,priority:1" json:"user_id"`
	JourneyID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_assignment_user_journey,priority:2;index" json:"journey_id"`
	Status      string     `gorm:"column:status;not null;index" json:"status"` // assigned|in_progress|completed
	Source      string     `gorm:"column:source;not null" json:"source"`       // manual|activation|chain
	AssignedAt  time.Time  `gorm:"column:assigned_at;not null" json:"assigned_at"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	TotalXP     int        `gorm:"column:total_xp;not null" json:"total_xp"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (JourneyAssignment) TableName() string { return "journey_assignment" }

func (a *JourneyAssignment) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = AssignmentStatusAssigned
	}
	if a.Source == "" {
		a.Source = AssignmentSourceManual
	}
	return nil
}

type TaskCompletion struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_task_completion,priority:1" json:"assignment_id"`
	TaskID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_task_completion,priority:2" json:"task_id"`
	ValidationData datatypes.JSON `gorm:"column:validation_data" json:"validation_data,omitempty"`
	CompletedAt    time.Time      `gorm:"column:completed_at;not null" json:"completed_at"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (TaskCompletion) TableName() string { return "journey_task_completion" }

func (c *TaskCompletion) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ChapterXPGrant marks that a chapter's xp_reward is currently counted in the
// assignment's total_xp. The stored amount is what gets revoked, so a later
// edit of xp_reward never unbalances the total.
type ChapterXPGrant struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chapter_xp_grant,priority:1" json:"assignment_id"`
	ChapterID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chapter_xp_grant,priority:2" json:"chapter_id"`
	XPAmount     int       `gorm:"column:xp_amount;not null" json:"xp_amount"`
	GrantedAt    time.Time `gorm:"column:granted_at;not null" json:"granted_at"`
}

func (ChapterXPGrant) TableName() string { return "journey_chapter_xp_grant" }

func (g *ChapterXPGrant) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// UserOnboarding is set once every auto-assign journey of a user is completed.
type UserOnboarding struct {
	UserID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	CompletedAt time.Time `gorm:"column:completed_at;not null" json:"completed_at"`
}

func (UserOnboarding) TableName() string { return "user_onboarding" }

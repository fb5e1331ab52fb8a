package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/journeys-backend/internal/domain/journeys"
)

// JourneyProgressAggregate is the only writer of task completions, chapter
// XP grant markers and assignment lifecycle columns. Writes for one
// assignment are serialized and commit in a single transaction; failures
// come back as *Error.
type JourneyProgressAggregate interface {
	// Assign creates an assignment in status assigned.
	Assign(ctx context.Context, in AssignJourneyInput) (AssignJourneyResult, error)

	// Unassign removes an assignment with its completions and grant markers.
	Unassign(ctx context.Context, in UnassignJourneyInput) error

	// AssignOnActivation assigns every active auto-assign journey the user lacks.
	AssignOnActivation(ctx context.Context, in AssignOnActivationInput) (AssignOnActivationResult, error)

	// CompleteTask validates and records a completion, then reconciles XP,
	// lifecycle and journey chaining.
	CompleteTask(ctx context.Context, in CompleteTaskInput) (TaskProgressResult, error)

	// UncompleteTask removes a completion and reverses its effects on the
	// touched chapter and journey.
	UncompleteTask(ctx context.Context, in UncompleteTaskInput) (TaskProgressResult, error)
}

type AssignJourneyInput struct {
	UserID    uuid.UUID
	JourneyID uuid.UUID
	Source    string
}

type AssignJourneyResult struct {
	Assignment *journeys.JourneyAssignment
}

type UnassignJourneyInput struct {
	UserID    uuid.UUID
	JourneyID uuid.UUID
}

type AssignOnActivationInput struct {
	UserID uuid.UUID
}

type AssignOnActivationResult struct {
	Assigned []*journeys.JourneyAssignment
}

type CompleteTaskInput struct {
	AssignmentID uuid.UUID
	TaskID       uuid.UUID
	Data         map[string]any
	// ActorUserID, when set, must own the assignment.
	ActorUserID uuid.UUID
}

type UncompleteTaskInput struct {
	AssignmentID uuid.UUID
	TaskID       uuid.UUID
	ActorUserID  uuid.UUID
}

type TaskProgressResult struct {
	Assignment     *journeys.JourneyAssignment
	Progress       *journeys.JourneyProgress
	XPDelta        int
	JustCompleted  bool
	Reopened       bool
	ChainAssigned  []*journeys.JourneyAssignment
	OnboardingDone bool
	AppliedAt      time.Time
}

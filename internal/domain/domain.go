package domain

import (
	"github.com/yungbote/journeys-backend/internal/domain/journeys"
)

const (
	AssignmentStatusAssigned   = journeys.AssignmentStatusAssigned
	AssignmentStatusInProgress = journeys.AssignmentStatusInProgress
	AssignmentStatusCompleted  = journeys.AssignmentStatusCompleted

	AssignmentSourceManual     = journeys.AssignmentSourceManual
	AssignmentSourceActivation = journeys.AssignmentSourceActivation
	AssignmentSourceChain      = journeys.AssignmentSourceChain
)

// Catalog
type Journey = journeys.Journey
type Chapter = journeys.Chapter
type Quest = journeys.Quest
type Task = journeys.Task
type CatalogRows = journeys.CatalogRows

// Ledger + completion log
type JourneyAssignment = journeys.JourneyAssignment
type TaskCompletion = journeys.TaskCompletion
type ChapterXPGrant = journeys.ChapterXPGrant
type UserOnboarding = journeys.UserOnboarding

// Derived read models
type Progress = journeys.Progress
type TaskCounts = journeys.TaskCounts
type JourneyProgress = journeys.JourneyProgress
type Attachment = journeys.Attachment
type TaskView = journeys.TaskView
type QuestView = journeys.QuestView
type ChapterView = journeys.ChapterView
type JourneyView = journeys.JourneyView
type JourneySummary = journeys.JourneySummary

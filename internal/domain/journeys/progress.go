package journeys

import (
	"time"

	"github.com/google/uuid"
)

// Progress is derived on every read from the catalog and the completion log.
// It is never persisted.
type Progress struct {
	Completed          int  `json:"completed"`
	Total              int  `json:"total"`
	MandatoryCompleted int  `json:"mandatory_completed"`
	MandatoryTotal     int  `json:"mandatory_total"`
	IsComplete         bool `json:"is_complete"`
}

// TaskCounts is the flat task-level tally shown in journey lists.
type TaskCounts struct {
	TotalTasks         int `json:"total_tasks"`
	MandatoryTasks     int `json:"mandatory_tasks"`
	CompletedTasks     int `json:"completed_tasks"`
	MandatoryCompleted int `json:"mandatory_completed"`
	CompletionPct      int `json:"completion_pct"`
}

type JourneyProgress struct {
	Progress
	Tasks    TaskCounts             `json:"tasks"`
	Chapters map[uuid.UUID]Progress `json:"chapters"`
	Quests   map[uuid.UUID]Progress `json:"quests"`
}

// Chapter returns the progress of one chapter (zero value when unknown).
func (p *JourneyProgress) Chapter(id uuid.UUID) Progress {
	if p == nil {
		return Progress{}
	}
	return p.Chapters[id]
}

func (p *JourneyProgress) Quest(id uuid.UUID) Progress {
	if p == nil {
		return Progress{}
	}
	return p.Quests[id]
}

// Attachment is the handle returned by the blob store after an upload and
// echoed back in validation_data.file when completing a file_upload task.
type Attachment struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	URL          string `json:"url,omitempty"`
}

type TaskView struct {
	Task
	IsCompleted    bool       `json:"is_completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ValidationData any        `json:"validation_data,omitempty"`
}

type QuestView struct {
	Quest
	Progress Progress   `json:"progress"`
	Tasks    []TaskView `json:"tasks"`
}

type ChapterView struct {
	Chapter
	IsLocked  bool        `json:"is_locked"`
	XPGranted bool        `json:"xp_granted"`
	Progress  Progress    `json:"progress"`
	Quests    []QuestView `json:"quests"`
}

type JourneyView struct {
	Journey    Journey           `json:"journey"`
	Assignment JourneyAssignment `json:"assignment"`
	Progress   Progress          `json:"progress"`
	Tasks      TaskCounts        `json:"tasks"`
	Chapters   []ChapterView     `json:"chapters"`
}

type JourneySummary struct {
	Journey    Journey           `json:"journey"`
	Assignment JourneyAssignment `json:"assignment"`
	Progress   TaskCounts        `json:"progress"`
	IsComplete bool              `json:"is_complete"`
}

package journeys

import (
	"encoding/json"

	"github.com/google/uuid"

	types "github.com/yungbote/journeys-backend/internal/domain"
)

// BuildView assembles the user-facing tree for one assignment.
func BuildView(cat *Catalog, asg *types.JourneyAssignment, completions []*types.TaskCompletion, grants []*types.ChapterXPGrant) *types.JourneyView {
	byTask := make(map[uuid.UUID]*types.TaskCompletion, len(completions))
	for _, c := range completions {
		if c != nil {
			byTask[c.TaskID] = c
		}
	}
	granted := make(map[uuid.UUID]bool, len(grants))
	for _, g := range grants {
		if g != nil {
			granted[g.ChapterID] = true
		}
	}
	done := CompletionSetFrom(completions)
	progress := Aggregate(cat, done)
	locks := ComputeLockState(cat, progress, done)

	view := &types.JourneyView{
		Progress: progress.Progress,
		Tasks:    progress.Tasks,
		Chapters: make([]types.ChapterView, 0, len(cat.Chapters)),
	}
	if cat.Journey != nil {
		view.Journey = *cat.Journey
	}
	if asg != nil {
		view.Assignment = *asg
	}

	for _, ch := range cat.Chapters {
		cv := types.ChapterView{
			Chapter:   *ch,
			IsLocked:  locks.IsLocked(ch.ID),
			XPGranted: granted[ch.ID],
			Progress:  progress.Chapter(ch.ID),
		}
		for _, q := range cat.QuestsOf(ch.ID) {
			qv := types.QuestView{Quest: *q, Progress: progress.Quest(q.ID)}
			for _, t := range cat.TasksOf(q.ID) {
				tv := types.TaskView{Task: *t}
				if c, ok := byTask[t.ID]; ok {
					at := c.CompletedAt
					tv.IsCompleted = true
					tv.CompletedAt = &at
					tv.ValidationData = decodeValidationData(c.ValidationData)
				}
				qv.Tasks = append(qv.Tasks, tv)
			}
			cv.Quests = append(cv.Quests, qv)
		}
		view.Chapters = append(view.Chapters, cv)
	}
	return view
}

// Summarize is the list-row form of an assignment.
func Summarize(cat *Catalog, asg *types.JourneyAssignment, done CompletionSet) types.JourneySummary {
	progress := Aggregate(cat, done)
	s := types.JourneySummary{Progress: progress.Tasks, IsComplete: progress.IsComplete}
	if cat.Journey != nil {
		s.Journey = *cat.Journey
	}
	if asg != nil {
		s.Assignment = *asg
	}
	return s
}

func decodeValidationData(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

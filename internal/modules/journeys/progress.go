package journeys

import (
	"math"

	"github.com/google/uuid"

	types "github.com/yungbote/journeys-backend/internal/domain"
)

// CompletionSet is the set of task ids completed under one assignment.
type CompletionSet map[uuid.UUID]struct{}

func NewCompletionSet(ids ...uuid.UUID) CompletionSet {
	s := make(CompletionSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// CompletionSetFrom indexes completion rows by task id.
func CompletionSetFrom(rows []*types.TaskCompletion) CompletionSet {
	s := make(CompletionSet, len(rows))
	for _, r := range rows {
		if r != nil {
			s[r.TaskID] = struct{}{}
		}
	}
	return s
}

func (s CompletionSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Aggregate derives the whole progress tree. Quests count tasks, chapters
// count quests that are done, the journey counts chapters that are done. At
// every level "done" means all mandatory children are done.
func Aggregate(cat *Catalog, done CompletionSet) *types.JourneyProgress {
	out := &types.JourneyProgress{
		Chapters: make(map[uuid.UUID]types.Progress, len(cat.Chapters)),
		Quests:   map[uuid.UUID]types.Progress{},
	}
	var journey tally
	for _, ch := range cat.Chapters {
		var chapter tally
		for _, q := range cat.QuestsOf(ch.ID) {
			var quest tally
			for _, t := range cat.TasksOf(q.ID) {
				isDone := done.Has(t.ID)
				quest.add(t.IsMandatory, isDone)

				out.Tasks.TotalTasks++
				if t.IsMandatory {
					out.Tasks.MandatoryTasks++
				}
				if isDone {
					out.Tasks.CompletedTasks++
					if t.IsMandatory {
						out.Tasks.MandatoryCompleted++
					}
				}
			}
			qp := quest.progress()
			out.Quests[q.ID] = qp
			chapter.add(q.IsMandatory, qp.IsComplete)
		}
		cp := chapter.progress()
		out.Chapters[ch.ID] = cp
		journey.add(ch.IsMandatory, cp.IsComplete)
	}
	out.Progress = journey.progress()
	out.Tasks.CompletionPct = CompletionPct(out.Tasks.MandatoryCompleted, out.Tasks.MandatoryTasks)
	return out
}

// ChapterProgress recomputes a single chapter.
func ChapterProgress(cat *Catalog, chapterID uuid.UUID, done CompletionSet) types.Progress {
	var chapter tally
	for _, q := range cat.QuestsOf(chapterID) {
		var quest tally
		for _, t := range cat.TasksOf(q.ID) {
			quest.add(t.IsMandatory, done.Has(t.ID))
		}
		chapter.add(q.IsMandatory, quest.progress().IsComplete)
	}
	return chapter.progress()
}

// CompletionPct is the rounded share of mandatory tasks done. A journey with
// no mandatory tasks reports 0.
func CompletionPct(mandatoryDone, mandatory int) int {
	if mandatory <= 0 {
		return 0
	}
	return int(math.Round(float64(mandatoryDone) * 100 / float64(mandatory)))
}

type tally struct {
	completed, total, mandDone, mand int
}

func (t *tally) add(mandatory, done bool) {
	t.total++
	if done {
		t.completed++
	}
	if mandatory {
		t.mand++
		if done {
			t.mandDone++
		}
	}
}

func (t tally) progress() types.Progress {
	return types.Progress{
		Completed:          t.completed,
		Total:              t.total,
		MandatoryCompleted: t.mandDone,
		MandatoryTotal:     t.mand,
		IsComplete:         t.mandDone == t.mand,
	}
}

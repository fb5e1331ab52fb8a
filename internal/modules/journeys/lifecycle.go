package journeys

import (
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/journeys-backend/internal/domain"
)

// Transition reports what ApplyLifecycle changed.
type Transition struct {
	Started       bool
	JustCompleted bool
	Reopened      bool
}

func (t Transition) Changed() bool { return t.Started || t.JustCompleted || t.Reopened }

// ApplyLifecycle moves an assignment through assigned -> in_progress ->
// completed. Status never returns to assigned; a completed assignment whose
// journey is no longer complete drops back to in_progress.
func ApplyLifecycle(asg *types.JourneyAssignment, hasCompletions, journeyComplete bool, now time.Time) Transition {
	var tr Transition
	if asg == nil {
		return tr
	}
	if asg.Status == types.AssignmentStatusAssigned && hasCompletions {
		asg.Status = types.AssignmentStatusInProgress
		if asg.StartedAt == nil {
			asg.StartedAt = &now
		}
		tr.Started = true
	}
	switch {
	case journeyComplete && hasCompletions && asg.Status != types.AssignmentStatusCompleted:
		asg.Status = types.AssignmentStatusCompleted
		asg.CompletedAt = &now
		if asg.StartedAt == nil {
			asg.StartedAt = &now
		}
		tr.JustCompleted = true
	case !journeyComplete && asg.Status == types.AssignmentStatusCompleted:
		asg.Status = types.AssignmentStatusInProgress
		asg.CompletedAt = nil
		tr.Reopened = true
	}
	return tr
}

type XPAction int

const (
	XPNone XPAction = iota
	XPGrant
	XPRevoke
)

func (a XPAction) String() string {
	switch a {
	case XPGrant:
		return "grant"
	case XPRevoke:
		return "revoke"
	default:
		return "none"
	}
}

// XPPlan is the reconciliation for one chapter.
type XPPlan struct {
	Action XPAction
	Delta  int
}

// PlanChapterXP compares a chapter's completeness with its grant marker. The
// marker's stored amount is what gets revoked.
func PlanChapterXP(ch *types.Chapter, complete bool, grant *types.ChapterXPGrant) XPPlan {
	switch {
	case complete && grant == nil && ch != nil:
		return XPPlan{Action: XPGrant, Delta: ch.XPReward}
	case !complete && grant != nil:
		return XPPlan{Action: XPRevoke, Delta: -grant.XPAmount}
	default:
		return XPPlan{}
	}
}

// ApplyXP adds delta to total, never going below zero. It returns the delta
// actually applied.
func ApplyXP(total, delta int) (int, int) {
	next := total + delta
	if next < 0 {
		next = 0
	}
	return next, next - total
}

// UngrantedChapters lists, in unlocking order, the complete chapters that
// hold no grant marker. A chapter without mandatory content is complete
// before any of its tasks is done, so no task write ever flips it.
func UngrantedChapters(cat *Catalog, progress *types.JourneyProgress, grants []*types.ChapterXPGrant) []*types.Chapter {
	if cat == nil || progress == nil {
		return nil
	}
	granted := make(map[uuid.UUID]bool, len(grants))
	for _, g := range grants {
		granted[g.ChapterID] = true
	}
	var out []*types.Chapter
	for _, ch := range cat.Chapters {
		if !granted[ch.ID] && progress.Chapter(ch.ID).IsComplete {
			out = append(out, ch)
		}
	}
	return out
}

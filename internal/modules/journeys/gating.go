package journeys

import (
	"github.com/google/uuid"

	types "github.com/yungbote/journeys-backend/internal/domain"
)

// LockState maps chapter id to locked.
type LockState map[uuid.UUID]bool

// IsLocked reports unknown chapters as locked.
func (s LockState) IsLocked(chapterID uuid.UUID) bool {
	locked, ok := s[chapterID]
	return !ok || locked
}

// ComputeLockState walks chapters in order. The first is always open, each
// later one opens when its predecessor is complete. A chapter that already
// holds a completion, or precedes one that does, stays open: progress the
// user made is never retracted by undoing an earlier task.
func ComputeLockState(cat *Catalog, progress *types.JourneyProgress, done CompletionSet) LockState {
	n := len(cat.Chapters)
	state := make(LockState, n)
	if n == 0 {
		return state
	}

	// furthest[i]: some chapter at index >= i has a completion.
	furthest := make([]bool, n+1)
	for i := n - 1; i >= 0; i-- {
		furthest[i] = furthest[i+1] || chapterTouched(cat, cat.Chapters[i].ID, done)
	}

	for i, ch := range cat.Chapters {
		switch {
		case i == 0:
			state[ch.ID] = false
		case progress.Chapter(cat.Chapters[i-1].ID).IsComplete:
			state[ch.ID] = false
		case furthest[i]:
			state[ch.ID] = false
		default:
			state[ch.ID] = true
		}
	}
	return state
}

func chapterTouched(cat *Catalog, chapterID uuid.UUID, done CompletionSet) bool {
	for _, q := range cat.QuestsOf(chapterID) {
		for _, t := range cat.TasksOf(q.ID) {
			if done.Has(t.ID) {
				return true
			}
		}
	}
	return false
}

// ChainEligible decides whether a completed journey's successor is assigned.
func ChainEligible(target *types.Journey, userXP int, alreadyAssigned bool) bool {
	if target == nil || alreadyAssigned || !target.IsActive {
		return false
	}
	return userXP >= target.RequiredXP
}

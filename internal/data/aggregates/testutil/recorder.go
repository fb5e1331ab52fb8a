// Package testutil holds fakes for exercising the journey aggregate.
package testutil

import (
	"sync"
	"time"

	"github.com/yungbote/journeys-backend/internal/data/aggregates"
)

// Recorder captures write and progression signals from the journey
// aggregate. One value can serve as both Hooks and ProgressHooks.
type Recorder struct {
	mu sync.Mutex

	ops         []string
	conflicts   []string
	retries     []string
	completions []string
	xp          []int
	transitions []string
}

var (
	_ aggregates.Hooks         = (*Recorder)(nil)
	_ aggregates.ProgressHooks = (*Recorder)(nil)
)

func (r *Recorder) ObserveOperation(name, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, name+"="+status)
}

func (r *Recorder) IncConflict(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = append(r.conflicts, name)
}

func (r *Recorder) IncRetry(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, name)
}

func (r *Recorder) ObserveTaskCompletion(action, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions = append(r.completions, action+":"+result)
}

func (r *Recorder) ObserveXP(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.xp = append(r.xp, delta)
}

func (r *Recorder) IncJourneyTransition(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, kind)
}

// Operations returns "name=status" entries in call order.
func (r *Recorder) Operations() []string { return r.snapshot(&r.ops) }
func (r *Recorder) Conflicts() []string  { return r.snapshot(&r.conflicts) }
func (r *Recorder) Retries() []string    { return r.snapshot(&r.retries) }

// Completions returns "action:result" entries in call order.
func (r *Recorder) Completions() []string { return r.snapshot(&r.completions) }
func (r *Recorder) Transitions() []string { return r.snapshot(&r.transitions) }

func (r *Recorder) XP() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.xp...)
}

// NetXP sums every observed delta.
func (r *Recorder) NetXP() int {
	total := 0
	for _, d := range r.XP() {
		total += d
	}
	return total
}

func (r *Recorder) snapshot(src *[]string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), (*src)...)
}

package aggregates

import (
	"time"

	"github.com/yungbote/journeys-backend/internal/observability"
)

// Hooks observes every aggregate write by operation name.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
}

// ProgressHooks observes what a write did to a learner's journey. Result is
// accepted, rejected or an error code; kind is a lifecycle transition such
// as started or chained.
type ProgressHooks interface {
	ObserveTaskCompletion(action, result string)
	ObserveXP(delta int)
	IncJourneyTransition(kind string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}

type noopProgressHooks struct{}

func (noopProgressHooks) ObserveTaskCompletion(string, string) {}
func (noopProgressHooks) ObserveXP(int)                        {}
func (noopProgressHooks) IncJourneyTransition(string)          {}

// metricsHooks forwards both hook sets to the metrics registry.
type metricsHooks struct {
	m *observability.Metrics
}

func NewObservabilityHooks(m *observability.Metrics) Hooks {
	if m == nil {
		return noopHooks{}
	}
	return metricsHooks{m: m}
}

func NewObservabilityProgressHooks(m *observability.Metrics) ProgressHooks {
	if m == nil {
		return noopProgressHooks{}
	}
	return metricsHooks{m: m}
}

func (h metricsHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.m.ObserveAggregateOperation(name, status, dur)
}
func (h metricsHooks) IncConflict(name string) { h.m.IncAggregateConflict(name) }
func (h metricsHooks) IncRetry(name string)    { h.m.IncAggregateRetry(name) }

func (h metricsHooks) ObserveTaskCompletion(action, result string) {
	h.m.IncTaskCompletion(action, result)
}

func (h metricsHooks) ObserveXP(delta int) {
	if delta != 0 {
		h.m.AddXP(delta)
	}
}

func (h metricsHooks) IncJourneyTransition(kind string) { h.m.IncJourneyTransition(kind) }

package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

// SLOConfig drives the in-process burn-rate evaluator.
type SLOConfig struct {
	Enabled                bool    `env:"SLO_ENABLED" envDefault:"false"`
	EvalIntervalSeconds    int     `env:"SLO_EVAL_INTERVAL_SECONDS" envDefault:"60"`
	WindowHours            float64 `env:"SLO_WINDOW_HOURS" envDefault:"720"`
	APIAvailabilityTarget  float64 `env:"SLO_API_AVAIL_TARGET" envDefault:"0.995"`
	APILatencyTarget       float64 `env:"SLO_API_LATENCY_TARGET" envDefault:"0.95"`
	AggregateSuccessTarget float64 `env:"SLO_AGGREGATE_SUCCESS_TARGET" envDefault:"0.999"`
	AlertWebhookURL        string  `env:"SLO_ALERT_WEBHOOK_URL"`
	AlertOwner             string  `env:"SLO_ALERT_OWNER"`
	AlertRunbookURL        string  `env:"SLO_ALERT_RUNBOOK_URL"`
	AlertMinIntervalSecs   int     `env:"SLO_ALERT_MIN_INTERVAL_SECONDS" envDefault:"900"`
	AlertBurnWarn          float64 `env:"SLO_ALERT_BURN_RATE_WARN" envDefault:"2"`
	AlertBurnCrit          float64 `env:"SLO_ALERT_BURN_RATE_CRIT" envDefault:"10"`
}

// window keeps the last len(buckets) per-tick increments of a counter.
type window struct {
	buckets []float64
	next    int
	sum     float64
	last    float64
}

func newWindow(size int) *window {
	return &window{buckets: make([]float64, max(size, 1))}
}

// observe records the counter's current value. A value below the previous
// one means the process restarted the counter, so the whole value counts.
func (w *window) observe(current float64) {
	inc := current - w.last
	if current < w.last {
		inc = current
	}
	w.last = current
	w.sum += inc - w.buckets[w.next]
	w.buckets[w.next] = inc
	w.next = (w.next + 1) % len(w.buckets)
}

// objective is one SLI: good/total over the window, compared to target.
type objective struct {
	name   string
	target float64
	total  func() float64
	bad    func() float64
	totalW *window
	badW   *window
}

type SLOEvaluator struct {
	metrics    *Metrics
	log        *logger.Logger
	interval   time.Duration
	label      string
	objectives []*objective

	webhook     string
	owner       string
	runbook     string
	minInterval time.Duration
	burnWarn    float64
	burnCrit    float64
	client      *http.Client

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

func (m *Metrics) StartSLOEvaluator(ctx context.Context, log *logger.Logger, cfg SLOConfig) {
	if m == nil || !cfg.Enabled {
		return
	}
	e := newSLOEvaluator(m, log, cfg)
	go e.run(ctx)
	if log != nil {
		log.Info("SLO evaluator started", "window", e.label, "interval", e.interval.String())
	}
}

func newSLOEvaluator(m *Metrics, log *logger.Logger, cfg SLOConfig) *SLOEvaluator {
	interval := time.Duration(cfg.EvalIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	hours := cfg.WindowHours
	if hours < 1 {
		hours = 24
	}
	span := time.Duration(hours * float64(time.Hour))
	size := int(span / interval)

	e := &SLOEvaluator{
		metrics:     m,
		log:         log,
		interval:    interval,
		label:       windowLabel(span),
		webhook:     strings.TrimSpace(cfg.AlertWebhookURL),
		owner:       strings.TrimSpace(cfg.AlertOwner),
		runbook:     strings.TrimSpace(cfg.AlertRunbookURL),
		minInterval: time.Duration(cfg.AlertMinIntervalSecs) * time.Second,
		burnWarn:    cfg.AlertBurnWarn,
		burnCrit:    cfg.AlertBurnCrit,
		client:      &http.Client{Timeout: 5 * time.Second},
		lastAlert:   map[string]time.Time{},
	}
	add := func(name string, target float64, total, bad func() float64) {
		e.objectives = append(e.objectives, &objective{
			name: name, target: clamp01(target), total: total, bad: bad,
			totalW: newWindow(size), badW: newWindow(size),
		})
	}
	add("api_availability", cfg.APIAvailabilityTarget, m.apiReqTotal.Value, m.apiReqError.Value)
	add("api_latency", cfg.APILatencyTarget, m.apiReqTotal.Value, func() float64 {
		return m.apiReqTotal.Value() - m.apiReqGood.Value()
	})
	// Progress writes: completions, assignments and unassignments. Rejected
	// answers and locked chapters are user outcomes, not failures.
	add("progress_write_success", cfg.AggregateSuccessTarget, m.aggregateTotal.Value, m.aggregateError.Value)
	return e
}

func (e *SLOEvaluator) run(ctx context.Context) {
	t := time.NewTicker(e.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.evaluate()
		}
	}
}

func (e *SLOEvaluator) evaluate() {
	for _, o := range e.objectives {
		o.totalW.observe(o.total())
		o.badW.observe(o.bad())
		e.report(o, o.totalW.sum, o.badW.sum)
	}
}

func (e *SLOEvaluator) report(o *objective, total, bad float64) {
	sli, burn := 1.0, 0.0
	if total > 0 {
		sli = clamp01(1 - bad/total)
		if o.target < 1 {
			burn = (1 - sli) / (1 - o.target)
		}
	}
	budget := clamp01(1 - burn)
	e.metrics.sloCompliance.Set(sli, o.name, e.label)
	e.metrics.sloBudget.Set(budget, o.name, e.label)
	e.metrics.sloBurn.Set(burn, o.name, e.label)

	severity := ""
	switch {
	case burn >= e.burnCrit && e.burnCrit > 0:
		severity = "critical"
	case burn >= e.burnWarn && e.burnWarn > 0:
		severity = "warning"
	}
	if severity == "" || e.webhook == "" || e.owner == "" || !e.claimAlert(o.name+":"+severity) {
		return
	}
	e.alert(map[string]any{
		"title":                  "SLO burn rate alert",
		"service":                "journeys",
		"severity":               severity,
		"owner":                  e.owner,
		"slo":                    o.name,
		"window":                 e.label,
		"sli":                    sli,
		"target":                 o.target,
		"burn_rate":              burn,
		"error_budget_remaining": budget,
		"runbook":                e.runbook,
		"timestamp":              time.Now().UTC().Format(time.RFC3339),
	})
}

// claimAlert rate-limits alerts per objective and severity.
func (e *SLOEvaluator) claimAlert(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.lastAlert[key]; ok && time.Since(last) < e.minInterval {
		return false
	}
	e.lastAlert[key] = time.Now()
	return true
}

func (e *SLOEvaluator) alert(payload map[string]any) {
	body, _ := json.Marshal(payload)
	resp, err := e.client.Post(e.webhook, "application/json", bytes.NewReader(body))
	if err != nil {
		if e.log != nil {
			e.log.Warn("SLO alert failed", "slo", payload["slo"], "error", err)
		}
		return
	}
	_ = resp.Body.Close()
	if e.log != nil {
		e.log.Info("SLO alert sent", "slo", payload["slo"], "severity", payload["severity"], "status", resp.StatusCode)
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func windowLabel(d time.Duration) string {
	switch h := int(d.Hours()); {
	case h >= 24 && h%24 == 0:
		return fmt.Sprintf("%dd", h/24)
	case h >= 1:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}

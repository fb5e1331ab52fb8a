package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

type MetricsConfig struct {
	Enabled               bool    `env:"METRICS_ENABLED" envDefault:"false"`
	Addr                  string  `env:"METRICS_ADDR" envDefault:":9090"`
	ScrapeIntervalSeconds int     `env:"METRICS_SCRAPE_INTERVAL_SECONDS" envDefault:"10"`
	APILatencySLOSeconds  float64 `env:"SLO_API_LATENCY_THRESHOLD_SECONDS" envDefault:"0.5"`
}

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiReqTotal *Counter
	apiReqError *Counter
	apiReqGood  *Counter

	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec
	aggregateTotal     *Counter
	aggregateError     *Counter

	taskCompletions    *CounterVec
	xpGranted          *Counter
	xpRevoked          *Counter
	journeyTransitions *CounterVec

	lockWait *HistogramVec

	storageModeActive  *GaugeVec
	storageBootstrap   *CounterVec
	storageOps         *CounterVec
	storageLatency     *HistogramVec
	attachmentUploads  *CounterVec
	attachmentBytes    *HistogramVec
	securityEvents     *CounterVec
	catalogImportItems *CounterVec

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge

	sloCompliance *GaugeVec
	sloBudget     *GaugeVec
	sloBurn       *GaugeVec

	sloLatencyThreshold float64
	scrapeInterval      time.Duration
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Current() *Metrics {
	return instance
}

// Init builds the process-wide registry. It returns nil when metrics are
// disabled; every method on *Metrics is nil-safe.
func Init(log *logger.Logger, cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics(cfg)
		if log != nil {
			log.Info("Observability metrics enabled", "addr", cfg.Addr)
		}
	})
	return instance
}

func newMetrics(cfg MetricsConfig) *Metrics {
	latencyThreshold := cfg.APILatencySLOSeconds
	if latencyThreshold <= 0 {
		latencyThreshold = 0.5
	}
	interval := time.Duration(cfg.ScrapeIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Metrics{
		apiRequests: NewCounterVec("jr_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"jr_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		apiInflight: NewGauge("jr_api_inflight_requests", "In-flight API requests."),
		apiReqTotal: NewCounter("jr_api_requests_total_all", "Total API requests (all)."),
		apiReqError: NewCounter("jr_api_requests_error_total", "Total API requests with 5xx status."),
		apiReqGood:  NewCounter("jr_api_requests_good_latency_total", "Total API requests under SLO latency threshold."),

		aggregateOps: NewCounterVec("jr_aggregate_operations_total", "Aggregate write operations by operation/status.", []string{"operation", "status"}),
		aggregateLatency: NewHistogramVec(
			"jr_aggregate_operation_duration_seconds",
			"Aggregate write latency in seconds by operation/status.",
			[]string{"operation", "status"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		),
		aggregateConflicts: NewCounterVec("jr_aggregate_conflicts_total", "Aggregate write conflicts by operation.", []string{"operation"}),
		aggregateRetries:   NewCounterVec("jr_aggregate_retryable_total", "Retryable aggregate failures by operation.", []string{"operation"}),
		aggregateTotal:     NewCounter("jr_aggregate_operations_total_all", "Total aggregate write operations."),
		aggregateError:     NewCounter("jr_aggregate_operations_error_total", "Aggregate writes that failed with an internal or retryable code."),

		taskCompletions:    NewCounterVec("jr_task_completion_requests_total", "Task completion requests by action/result.", []string{"action", "result"}),
		xpGranted:          NewCounter("jr_xp_granted_total", "XP granted for completed chapters."),
		xpRevoked:          NewCounter("jr_xp_revoked_total", "XP revoked after chapters were reopened."),
		journeyTransitions: NewCounterVec("jr_journey_transitions_total", "Assignment lifecycle transitions by kind.", []string{"kind"}),

		lockWait: NewHistogramVec(
			"jr_assignment_lock_wait_seconds",
			"Time spent acquiring the per-assignment lock by backend/status.",
			[]string{"backend", "status"},
			[]float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		),

		storageModeActive: NewGaugeVec("jr_attachment_store_mode_active", "Active attachment store mode (1=active).", []string{"mode"}),
		storageBootstrap:  NewCounterVec("jr_attachment_store_bootstrap_total", "Attachment store bootstrap attempts by mode/status/code.", []string{"mode", "status", "code"}),
		storageOps:        NewCounterVec("jr_attachment_store_operations_total", "Attachment store operations by provider/operation/status.", []string{"provider", "operation", "status"}),
		storageLatency: NewHistogramVec(
			"jr_attachment_store_operation_duration_seconds",
			"Attachment store latency in seconds by provider/operation.",
			[]string{"provider", "operation"},
			[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		attachmentUploads: NewCounterVec("jr_attachment_uploads_total", "Attachment uploads by result.", []string{"result"}),
		attachmentBytes: NewHistogramVec(
			"jr_attachment_upload_bytes",
			"Accepted attachment size in bytes.",
			[]string{},
			[]float64{1 << 10, 16 << 10, 128 << 10, 1 << 20, 5 << 20, 10 << 20, 25 << 20, 50 << 20},
		),
		securityEvents:     NewCounterVec("jr_security_events_total", "Security-related events by type.", []string{"event"}),
		catalogImportItems: NewCounterVec("jr_catalog_import_items_total", "Catalog rows upserted by kind.", []string{"kind"}),

		pgStats:   NewGaugeVec("jr_postgres_stats", "Postgres connection stats.", []string{"metric"}),
		redisUp:   NewGauge("jr_redis_up", "Redis connectivity (1=up, 0=down)."),
		redisPing: NewGauge("jr_redis_ping_seconds", "Redis ping latency in seconds."),

		sloCompliance: NewGaugeVec("jr_slo_compliance", "SLO compliance (SLI) over window.", []string{"slo", "window"}),
		sloBudget:     NewGaugeVec("jr_slo_error_budget_remaining", "Error budget remaining (0-1).", []string{"slo", "window"}),
		sloBurn:       NewGaugeVec("jr_slo_burn_rate", "Error budget burn rate.", []string{"slo", "window"}),

		sloLatencyThreshold: latencyThreshold,
		scrapeInterval:      interval,
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) collectors() []promWriter {
	return []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiReqTotal, m.apiReqError, m.apiReqGood,
		m.aggregateOps, m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries, m.aggregateTotal, m.aggregateError,
		m.taskCompletions, m.xpGranted, m.xpRevoked, m.journeyTransitions,
		m.lockWait,
		m.storageModeActive, m.storageBootstrap, m.storageOps, m.storageLatency,
		m.attachmentUploads, m.attachmentBytes,
		m.securityEvents, m.catalogImportItems,
		m.pgStats, m.redisUp, m.redisPing,
		m.sloCompliance, m.sloBudget, m.sloBurn,
	}
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.collectors() {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
	m.apiReqTotal.Inc()
	if isServerErrorStatus(status) {
		m.apiReqError.Inc()
	}
	if m.sloLatencyThreshold > 0 && dur.Seconds() <= m.sloLatencyThreshold {
		m.apiReqGood.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	operation = orUnknown(operation)
	status = orUnknown(status)
	m.aggregateOps.Inc(operation, status)
	m.aggregateLatency.Observe(dur.Seconds(), operation, status)
	m.aggregateTotal.Inc()
	if status == "internal" || status == "retryable" || status == "invariant_violation" {
		m.aggregateError.Inc()
	}
}

func (m *Metrics) IncAggregateConflict(operation string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(orUnknown(operation))
}

func (m *Metrics) IncAggregateRetry(operation string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(orUnknown(operation))
}

func (m *Metrics) IncTaskCompletion(action, result string) {
	if m == nil {
		return
	}
	m.taskCompletions.Inc(orUnknown(action), orUnknown(result))
}

// AddXP records a signed XP delta against the grant or revoke counter.
func (m *Metrics) AddXP(delta int) {
	if m == nil || delta == 0 {
		return
	}
	if delta > 0 {
		m.xpGranted.Add(float64(delta))
		return
	}
	m.xpRevoked.Add(float64(-delta))
}

func (m *Metrics) IncJourneyTransition(kind string) {
	if m == nil {
		return
	}
	m.journeyTransitions.Inc(orUnknown(kind))
}

func (m *Metrics) ObserveLockWait(backend, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(dur.Seconds(), orUnknown(backend), orUnknown(status))
}

func (m *Metrics) SetObjectStorageModeActive(mode string) {
	if m == nil {
		return
	}
	mode = orUnknown(mode)
	for _, known := range []string{"gcs", "gcs_emulator", "s3", "none"} {
		m.storageModeActive.Set(0, known)
	}
	m.storageModeActive.Set(1, mode)
}

func (m *Metrics) ObserveObjectStorageProviderBootstrap(mode, status, code string) {
	if m == nil {
		return
	}
	m.storageBootstrap.Inc(orUnknown(mode), orUnknown(status), orUnknown(code))
}

func (m *Metrics) ObserveAttachmentStoreOperation(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	provider = orUnknown(provider)
	operation = orUnknown(operation)
	m.storageOps.Inc(provider, operation, orUnknown(status))
	m.storageLatency.Observe(dur.Seconds(), provider, operation)
}

func (m *Metrics) ObserveAttachmentUpload(result string, sizeBytes int64) {
	if m == nil {
		return
	}
	result = orUnknown(result)
	m.attachmentUploads.Inc(result)
	if result == "accepted" && sizeBytes > 0 {
		m.attachmentBytes.Observe(float64(sizeBytes))
	}
}

func (m *Metrics) IncSecurityEvent(event string) {
	if m == nil {
		return
	}
	m.securityEvents.Inc(orUnknown(event))
}

func (m *Metrics) AddCatalogImport(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.catalogImportItems.Add(float64(n), orUnknown(kind))
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

// StartRedisCollector pings the lock backend. The client is owned by the
// caller and is not closed here.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

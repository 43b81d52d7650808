package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Token lifecycle metrics
	TokenIssuedTotal   *prometheus.CounterVec
	TokenIssueErrors   *prometheus.CounterVec
	TokensExpiredTotal *prometheus.CounterVec
	TokenIssueDuration prometheus.Histogram
	AccountsByStatus   *prometheus.GaugeVec
	ValidTokens        prometheus.Gauge

	// Scheduler metrics
	JobRunsTotal    *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	JobErrorsTotal  *prometheus.CounterVec
	JobSkippedTotal *prometheus.CounterVec

	// Broker API metrics
	BrokerRequestsTotal *prometheus.CounterVec
	BrokerErrorsTotal   *prometheus.CounterVec
	BrokerDuration      *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBErrorsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// defaultBuckets are the default histogram buckets for duration metrics (in seconds)
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// globalMetrics is the global metrics instance
var globalMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		TokenIssuedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "token_vault",
				Subsystem: "lifecycle",
				Name:      "tokens_issued_total",
				Help:      "Total number of successfully issued access tokens",
			},
			[]string{"kind"}, // authenticated or re_authenticated
		),
		TokenIssueErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "token_vault",
				Subsystem: "lifecycle",
				Name:      "issue_errors_total",
				Help:      "Total number of failed token issuance attempts",
			},
			[]string{"reason"},
		),
		TokensExpiredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "token_vault",
				Subsystem: "lifecycle",
				Name:      "tokens_expired_total",
				Help:      "Total number of tokens transitioned to expired",
			},
			[]string{"trigger"}, // manual, daily, reconcile, forced
		),
		TokenIssueDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "token_vault",
				Subsystem: "lifecycle",
				Name:      "issue_duration_seconds",
				Help:      "Duration of token issuance including the broker exchange",
				Buckets:   defaultBuckets,
			},
		),
		AccountsByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "token_vault",
				Subsystem: "vault",
				Name:      "accounts",
				Help:      "Number of accounts by status",
			},
			[]string{"status"},
		),
		ValidTokens: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "token_vault",
				Subsystem: "vault",
				Name:      "valid_tokens",
				Help:      "Number of tokens currently flagged valid",
			},
		),
		JobRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "token_vault",
				Subsystem: "scheduler",
				Name:      "job_runs_total",
				Help:      "Total number of scheduled job runs",
			},
			[]string{"job"},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "token_vault",
				Subsystem: "scheduler",
				Name:      "job_duration_seconds",
				Help:      "Duration of scheduled job runs",
				Buckets:   defaultBuckets,
			},
			[]string{"job"},
		),
		JobErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "token_vault",
				Subsystem: "scheduler",
				Name:      "job_errors_total",
				Help:      "Total number of failed scheduled job runs",
			},
			[]string{"job"},
		),
		JobSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "token_vault",
				Subsystem: "scheduler",
				Name:      "job_skipped_total",
				Help:      "Total number of job runs skipped because the previous run was still going",
			},
			[]string{"job"},
		),
		BrokerRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "token_vault",
				Subsystem: "broker",
				Name:      "requests_total",
				Help:      "Total number of broker API requests",
			},
			[]string{"operation"},
		),
		BrokerErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "token_vault",
				Subsystem: "broker",
				Name:      "errors_total",
				Help:      "Total number of broker API errors",
			},
			[]string{"operation", "error_type"},
		),
		BrokerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "token_vault",
				Subsystem: "broker",
				Name:      "request_duration_seconds",
				Help:      "Duration of broker API requests",
				Buckets:   defaultBuckets,
			},
			[]string{"operation"},
		),
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "token_vault",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries",
				Buckets:   defaultBuckets,
			},
			[]string{"operation", "table"},
		),
		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "token_vault",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "Total number of database errors",
			},
			[]string{"operation", "table"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "token_vault",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "token_vault",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "token_vault",
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "token_vault",
				Subsystem: "circuit_breaker",
				Name:      "trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"service"},
		),
	}

	globalMetrics = m
	return m
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		globalMetrics = NewMetrics(nil)
	}
	return globalMetrics
}

// SetMetrics overrides the global metrics instance (useful for testing)
func SetMetrics(m *Metrics) {
	globalMetrics = m
}

// RecordTokenIssued increments the issued-token counter
func (m *Metrics) RecordTokenIssued(kind string, duration time.Duration) {
	m.TokenIssuedTotal.WithLabelValues(kind).Inc()
	m.TokenIssueDuration.Observe(duration.Seconds())
}

// RecordIssueError increments the issuance error counter
func (m *Metrics) RecordIssueError(reason string) {
	m.TokenIssueErrors.WithLabelValues(reason).Inc()
}

// RecordTokensExpired adds to the expired-token counter for a trigger
func (m *Metrics) RecordTokensExpired(trigger string, count int64) {
	if count > 0 {
		m.TokensExpiredTotal.WithLabelValues(trigger).Add(float64(count))
	}
}

// SetVaultGauges updates the accounts-by-status and valid-token gauges
func (m *Metrics) SetVaultGauges(active, expired, neverAuthenticated, validTokens int64) {
	m.AccountsByStatus.WithLabelValues("active").Set(float64(active))
	m.AccountsByStatus.WithLabelValues("expired").Set(float64(expired))
	m.AccountsByStatus.WithLabelValues("never_authenticated").Set(float64(neverAuthenticated))
	m.ValidTokens.Set(float64(validTokens))
}

// RecordJobRun records a completed scheduled job run
func (m *Metrics) RecordJobRun(job string, duration time.Duration, err error) {
	m.JobRunsTotal.WithLabelValues(job).Inc()
	m.JobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if err != nil {
		m.JobErrorsTotal.WithLabelValues(job).Inc()
	}
}

// RecordJobSkipped records a job run skipped due to overlap
func (m *Metrics) RecordJobSkipped(job string) {
	m.JobSkippedTotal.WithLabelValues(job).Inc()
}

// RecordBrokerRequest records a broker API request outcome
func (m *Metrics) RecordBrokerRequest(operation string, duration time.Duration, errorType string) {
	m.BrokerRequestsTotal.WithLabelValues(operation).Inc()
	m.BrokerDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if errorType != "" {
		m.BrokerErrorsTotal.WithLabelValues(operation, errorType).Inc()
	}
}

// RecordDBQuery records a database query duration
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database error
func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the current circuit breaker state gauge
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCircuitBreakerTrip increments the trip counter
func (m *Metrics) RecordCircuitBreakerTrip(service string) {
	m.CircuitBreakerTrips.WithLabelValues(service).Inc()
}

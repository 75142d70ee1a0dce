package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Attribution metrics
	AttributionQueries  *prometheus.CounterVec
	AttributionDuration *prometheus.HistogramVec
	CacheLookups        *prometheus.CounterVec
	SpendRecordsStored  prometheus.Gauge

	// Ingest metrics
	IngestJobsTotal       *prometheus.CounterVec
	IngestJobDuration     *prometheus.HistogramVec
	IngestJobsInProgress  prometheus.Gauge
	IngestRecordsLoaded   *prometheus.CounterVec
	IngestRecordsRejected *prometheus.CounterVec

	// External API metrics
	ExternalAPICalls    *prometheus.CounterVec
	ExternalAPIDuration *prometheus.HistogramVec
	ExternalAPIFailures *prometheus.CounterVec
}

// New registers the collectors with the default prometheus registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg, so tests can use a private registry
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		AttributionQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attribution_queries_total",
				Help: "Total number of attribution queries",
			},
			[]string{"group_by", "status"},
		),

		AttributionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "attribution_query_duration_seconds",
				Help:    "Attribution engine run time in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"group_by"},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attribution_cache_lookups_total",
				Help: "Attribution result cache lookups",
			},
			[]string{"result"},
		),

		SpendRecordsStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "spend_records_stored",
				Help: "Number of spend records currently held by the repository",
			},
		),

		IngestJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_jobs_total",
				Help: "Total number of spend ingest jobs",
			},
			[]string{"status", "stage"},
		),

		IngestJobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_job_duration_seconds",
				Help:    "Spend ingest job duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),

		IngestJobsInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_jobs_in_progress",
				Help: "Number of ingest jobs currently in progress",
			},
		),

		IngestRecordsLoaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_loaded_total",
				Help: "Total number of spend records loaded",
			},
			[]string{"source"},
		),

		IngestRecordsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_rejected_total",
				Help: "Total number of spend batches rejected as malformed",
			},
			[]string{"source", "error_type"},
		),

		ExternalAPICalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_calls_total",
				Help: "Total number of external API calls",
			},
			[]string{"api", "status"},
		),

		ExternalAPIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "external_api_duration_seconds",
				Help:    "External API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"api"},
		),

		ExternalAPIFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_failures_total",
				Help: "Total number of external API failures",
			},
			[]string{"api", "error_type"},
		),
	}
}

// HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Attribution query metrics
func (m *Metrics) RecordAttributionQuery(groupBy, status string, duration time.Duration) {
	m.AttributionQueries.WithLabelValues(groupBy, status).Inc()
	m.AttributionDuration.WithLabelValues(groupBy).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSpendRecordsStored(count int) {
	m.SpendRecordsStored.Set(float64(count))
}

// Ingest job metrics
func (m *Metrics) RecordIngestJob(status, stage string, duration time.Duration) {
	m.IngestJobsTotal.WithLabelValues(status, stage).Inc()
	m.IngestJobDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *Metrics) RecordIngestRecords(source string, count int) {
	m.IngestRecordsLoaded.WithLabelValues(source).Add(float64(count))
}

func (m *Metrics) RecordIngestRejection(source, errorType string) {
	m.IngestRecordsRejected.WithLabelValues(source, errorType).Inc()
}

// External API call metrics
func (m *Metrics) RecordExternalAPICall(api, status string, duration time.Duration) {
	m.ExternalAPICalls.WithLabelValues(api, status).Inc()
	m.ExternalAPIDuration.WithLabelValues(api).Observe(duration.Seconds())
}

// External API failure metrics
func (m *Metrics) RecordExternalAPIFailure(api, errorType string) {
	m.ExternalAPIFailures.WithLabelValues(api, errorType).Inc()
}

// Ingest jobs in progress counter
func (m *Metrics) IncIngestJobsInProgress() {
	m.IngestJobsInProgress.Inc()
}

func (m *Metrics) DecIngestJobsInProgress() {
	m.IngestJobsInProgress.Dec()
}

// HTTP requests in flight counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

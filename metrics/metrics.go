package metrics

import (
	"strconv"
	"time"

	"github.com/jrsteele09/go-telemed-client/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the API client.
// Tracks request outcomes and durations, cache effectiveness and session expiry.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     prometheus.Counter
	SessionExpiries *prometheus.CounterVec
	MonitorChecks   *prometheus.CounterVec
}

var _ cache.Observer = (*Metrics)(nil)

// New creates a Metrics instance registered with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telemed_client_requests_total",
			Help: "Total number of API requests by method and outcome status",
		}, []string{"method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telemed_client_request_duration_seconds",
			Help:    "Duration of API requests that reached the network",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telemed_client_cache_hits_total",
			Help: "Responses served from the response cache by data type",
		}, []string{"data_type"}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "telemed_client_cache_misses_total",
			Help: "Cacheable requests that had to go to the network",
		}),
		SessionExpiries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telemed_client_session_expiries_total",
			Help: "Detected session expiries by detecting source",
		}, []string{"source"}),
		MonitorChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telemed_client_monitor_checks_total",
			Help: "Session monitor identity checks by result",
		}, []string{"result"}),
	}
}

// ObserveRequest records a completed request. status 0 means no HTTP
// response was received.
func (m *Metrics) ObserveRequest(method string, status int, start time.Time) {
	label := "network_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.Requests.WithLabelValues(method, label).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (m *Metrics) CacheHit(dataType cache.DataType) {
	m.CacheHits.WithLabelValues(string(dataType)).Inc()
}

func (m *Metrics) CacheMiss() {
	m.CacheMisses.Inc()
}

// IncrementSessionExpired records a detected expiry (source is "dispatcher",
// "monitor" or "logout").
func (m *Metrics) IncrementSessionExpired(source string) {
	m.SessionExpiries.WithLabelValues(source).Inc()
}

// IncrementMonitorCheck records a monitor check result ("valid", "expired",
// "inconclusive", "throttled").
func (m *Metrics) IncrementMonitorCheck(result string) {
	m.MonitorChecks.WithLabelValues(result).Inc()
}

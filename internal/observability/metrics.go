package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/memchat/backend/internal/remote"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	Turns            *prometheus.CounterVec
	RemoteErrors     *prometheus.CounterVec
	MemoryAdmissions *prometheus.CounterVec
	Feedback         *prometheus.CounterVec
	TurnLatency      prometheus.Histogram
}

// NewMetrics registers the instruments on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the instruments on reg.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live chat sessions.",
		}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by status.",
		}, []string{"status"}),
		RemoteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_errors_total",
			Help:      "Remote service failures by service and operation.",
		}, []string{"service", "op"}),
		MemoryAdmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_admissions_total",
			Help:      "Admission decisions for user input.",
		}, []string{"decision"}),
		Feedback: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Feedback entries by polarity.",
		}, []string{"polarity"}),
		TurnLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end turn latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
	}
}

// ObserveTurn records one finished turn.
func (m *Metrics) ObserveTurn(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(status).Inc()
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

// ObserveRemoteError counts err against its service and operation. Errors
// that are not remote are counted under "unknown".
func (m *Metrics) ObserveRemoteError(err error) {
	if m == nil || err == nil {
		return
	}
	var re *remote.Error
	if errors.As(err, &re) {
		m.RemoteErrors.WithLabelValues(re.Service, re.Op).Inc()
		return
	}
	m.RemoteErrors.WithLabelValues("unknown", "unknown").Inc()
}

// ObserveAdmission counts a memory admission decision.
func (m *Metrics) ObserveAdmission(remembered bool) {
	if m == nil {
		return
	}
	decision := "skipped"
	if remembered {
		decision = "remembered"
	}
	m.MemoryAdmissions.WithLabelValues(decision).Inc()
}

// ObserveFeedback counts a feedback entry.
func (m *Metrics) ObserveFeedback(positive bool) {
	if m == nil {
		return
	}
	polarity := "negative"
	if positive {
		polarity = "positive"
	}
	m.Feedback.WithLabelValues(polarity).Inc()
}

// SetActiveSessions updates the live session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

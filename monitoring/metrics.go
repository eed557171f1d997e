package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors of the prediction path.
type Metrics struct {
	requests    *prometheus.CounterVec
	records     prometheus.Counter
	positives   prometheus.Counter
	reordered   prometheus.Counter
	latency     prometheus.Histogram
	probability prometheus.Histogram
}

// Request outcomes used as the "outcome" label.
const (
	OutcomeOK             = "ok"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeSchemaMismatch = "schema_mismatch"
	OutcomeThreshold      = "invalid_threshold"
	OutcomeInternal       = "internal_error"
)

// NewMetrics registers the collectors with reg. Passing a fresh registry keeps
// tests independent of the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "churnguard",
			Name:      "prediction_requests_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"outcome"}),
		records: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "churnguard",
			Name:      "predicted_records_total",
			Help:      "Records scored successfully.",
		}),
		positives: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "churnguard",
			Name:      "predicted_churn_total",
			Help:      "Records predicted to churn.",
		}),
		reordered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "churnguard",
			Name:      "reordered_records_total",
			Help:      "Records whose fields arrived out of model column order.",
		}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "churnguard",
			Name:      "prediction_duration_seconds",
			Help:      "Time spent validating, aligning and scoring a batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		probability: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "churnguard",
			Name:      "churn_probability",
			Help:      "Distribution of served churn probabilities.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
	}
}

// ObserveRequest records a finished request. A nil receiver is a no-op so
// callers do not need to guard optional metrics.
func (m *Metrics) ObserveRequest(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.latency.Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePredictions(probabilities []float64, predictions []int, reordered int) {
	if m == nil {
		return
	}
	m.records.Add(float64(len(probabilities)))
	m.reordered.Add(float64(reordered))
	for i, p := range probabilities {
		m.probability.Observe(p)
		if predictions[i] == 1 {
			m.positives.Inc()
		}
	}
}

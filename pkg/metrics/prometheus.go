package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SentiGate/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions         *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	validationRejects *prometheus.CounterVec
	staleReads        *prometheus.CounterVec
	latency           *prometheus.HistogramVec
	cacheAge          *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentigate_decisions_total",
				Help: "Emitted decisions by instrument and action",
			},
			[]string{"instrument", "action"},
		),
		eventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentigate_events_dropped_total",
				Help: "Inbound or outbound events lost, by kind and reason",
			},
			[]string{"kind", "reason"},
		),
		validationRejects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentigate_validation_rejects_total",
				Help: "Malformed inbound payloads rejected by the coordinator",
			},
			[]string{"kind"},
		),
		staleReads: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentigate_stale_reads_total",
				Help: "Cache reads that found only stale sentiment",
			},
			[]string{"instrument"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentigate_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cacheAge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentigate_sentiment_age_seconds",
				Help: "Age of the cached sentiment at last read",
			},
			[]string{"instrument"},
		),
	}
}

// RecordDecision counts an emitted decision.
func (r *Recorder) RecordDecision(instrument string, action models.Action) {
	r.decisions.WithLabelValues(instrument, string(action)).Inc()
}

// RecordEventDropped counts a lost event. The transport loss counter from the
// publish retry path lands here with reason "publish_exhausted".
func (r *Recorder) RecordEventDropped(kind, reason string) {
	r.eventsDropped.WithLabelValues(kind, reason).Inc()
}

// RecordValidationReject counts a malformed payload.
func (r *Recorder) RecordValidationReject(kind string) {
	r.validationRejects.WithLabelValues(kind).Inc()
}

// RecordStaleRead counts a read that found only stale data.
func (r *Recorder) RecordStaleRead(instrument string) {
	r.staleReads.WithLabelValues(instrument).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordCacheAge records the observed sentiment age at read time.
func (r *Recorder) RecordCacheAge(instrument string, seconds float64) {
	r.cacheAge.WithLabelValues(instrument).Set(seconds)
}

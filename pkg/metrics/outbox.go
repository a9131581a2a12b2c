package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records publisher behavior per event type.
type OutboxMetrics struct {
	published  *prometheus.CounterVec
	retried    *prometheus.CounterVec
	exhausted  *prometheus.CounterVec
	batchSize  prometheus.Histogram
	publishDur *prometheus.HistogramVec
}

// NewOutboxMetrics registers the outbox publisher metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox messages published successfully.",
	}, []string{"event_type"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_retried_total",
		Help: "Outbox publish attempts that failed and were scheduled for retry.",
	}, []string{"event_type"})
	exhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_failed_total",
		Help: "Outbox messages marked failed after exhausting retries.",
	}, []string{"event_type"})
	batchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_size",
		Help:    "Number of messages claimed per publish batch.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
	})
	publishDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_publish_duration_seconds",
		Help:    "Duration of individual broker publish calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	reg.MustRegister(published, retried, exhausted, batchSize, publishDur)
	return &OutboxMetrics{
		published:  published,
		retried:    retried,
		exhausted:  exhausted,
		batchSize:  batchSize,
		publishDur: publishDur,
	}
}

// IncPublished increments the published counter for the event type.
func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncRetried increments the retry counter for the event type.
func (m *OutboxMetrics) IncRetried(eventType string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncExhausted increments the terminal-failure counter for the event type.
func (m *OutboxMetrics) IncExhausted(eventType string) {
	if m == nil || m.exhausted == nil {
		return
	}
	m.exhausted.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// ObserveBatchSize records how many rows a publish pass claimed.
func (m *OutboxMetrics) ObserveBatchSize(n int) {
	if m == nil || m.batchSize == nil {
		return
	}
	m.batchSize.Observe(float64(n))
}

// ObservePublishDuration records one broker publish call.
func (m *OutboxMetrics) ObservePublishDuration(eventType string, d time.Duration) {
	if m == nil || m.publishDur == nil {
		return
	}
	m.publishDur.WithLabelValues(normalizeLabel(eventType)).Observe(d.Seconds())
}

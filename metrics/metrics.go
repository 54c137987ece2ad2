// Package metrics holds the Prometheus collectors for the mailbus pipeline.
//
// All methods are safe to call on a nil *Metrics, so library code can record
// unconditionally and callers opt in by passing a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	MessagesRouted   *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	RecordsPersisted *prometheus.CounterVec
	PersistFailures  *prometheus.CounterVec
	ConnectAttempts  *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MessagesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailbus_messages_routed_total",
			Help: "Messages enqueued on partition queues, by routing key",
		}, []string{"domain"}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailbus_messages_dropped_total",
			Help: "Messages dropped without persistence, by reason",
		}, []string{"reason"}),
		RecordsPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailbus_records_persisted_total",
			Help: "Records written to a bucket",
		}, []string{"bucket"}),
		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailbus_persist_failures_total",
			Help: "Failed persistence calls, by bucket and error code",
		}, []string{"bucket", "code"}),
		ConnectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailbus_connect_attempts_total",
			Help: "Connection attempts made against a bucket",
		}, []string{"bucket"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailbus_queue_depth",
			Help: "Undelivered messages per partition queue",
		}, []string{"queue"}),
	}
}

// Routed increments the routed counter for a routing key.
func (m *Metrics) Routed(domain string) {
	if m == nil {
		return
	}
	m.MessagesRouted.WithLabelValues(domain).Inc()
}

// Dropped increments the dropped counter.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// Persisted increments the persisted counter for a bucket.
func (m *Metrics) Persisted(bucket string) {
	if m == nil {
		return
	}
	m.RecordsPersisted.WithLabelValues(bucket).Inc()
}

// Failed increments the failure counter for a bucket and error code.
func (m *Metrics) Failed(bucket, code string) {
	if m == nil {
		return
	}
	m.PersistFailures.WithLabelValues(bucket, code).Inc()
}

// ConnectAttempted adds n connect attempts for a bucket.
func (m *Metrics) ConnectAttempted(bucket string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ConnectAttempts.WithLabelValues(bucket).Add(float64(n))
}

// SetQueueDepth records the current depth of a partition queue.
func (m *Metrics) SetQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

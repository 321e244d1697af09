package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bundle_queue_depth",
			Help: "Approximate number of pending tasks per queue",
		},
		[]string{"queue"},
	)
	QueueEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bundle_queue_enqueued_total",
			Help: "Tasks submitted grouped by outcome",
		},
		[]string{"kind", "status"},
	)
	QueueProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bundle_queue_processed_total",
			Help: "Total tasks processed grouped by status",
		},
		[]string{"kind", "status"},
	)
	QueueArchivedSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bundle_queue_archived_size",
			Help: "Number of tasks that exhausted their retries",
		},
		[]string{"queue"},
	)

	registerOnce sync.Once
)

// RegisterMetrics adds the queue collectors to reg once.
func RegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(QueueDepth, QueueEnqueuedTotal, QueueProcessedTotal, QueueArchivedSize)
	})
}

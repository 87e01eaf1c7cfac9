package metrics

import (
	"time"

	"enkfcore/pkg/nodeapi"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exports node I/O as Prometheus collectors. Label cardinality is
// bounded by the number of registered node types; member and case are never
// used as labels.
type Prometheus struct {
	ops      *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheus creates the collectors under namespace and registers them
// with reg. A nil reg leaves them unregistered.
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	if namespace == "" {
		namespace = "enkfcore"
	}
	p := &Prometheus{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_operations_total",
			Help:      "Node reads and writes, by operation, node type and status.",
		}, []string{"op", "impl", "status"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_bytes_total",
			Help:      "Bytes of node state moved, by operation and node type.",
		}, []string{"op", "impl"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_operation_duration_seconds",
			Help:      "Latency of node reads and writes including storage.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"op"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{p.ops, p.bytes, p.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *Prometheus) Observe(op string, impl nodeapi.ImplType, bytes int64, duration time.Duration, err error) {
	name := impl.String()
	p.ops.WithLabelValues(op, name, status(err)).Inc()
	if err == nil && bytes > 0 {
		p.bytes.WithLabelValues(op, name).Add(float64(bytes))
	}
	p.duration.WithLabelValues(op).Observe(duration.Seconds())
}

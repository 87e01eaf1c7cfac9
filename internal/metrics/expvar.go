package metrics

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"enkfcore/pkg/nodeapi"
)

var expvarSeq uint64

// Expvar publishes aggregate node I/O counters via expvar for deployments
// without a Prometheus scraper. Totals are keyed by "op:impl".
type Expvar struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	bytes     map[string]int64
	results   map[string]map[string]int64
}

// ExpvarSnapshot is a read-only view of the recorded metrics.
type ExpvarSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Bytes       map[string]int64            `json:"bytes_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvar constructs a recorder and publishes it under name. When name is
// empty a unique one is generated.
func NewExpvar(name string) *Expvar {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("enkfcore_node_io_%d", id)
	}
	rec := &Expvar{
		name:      name,
		durations: make(map[string]float64),
		bytes:     make(map[string]int64),
		results:   make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name.
func (r *Expvar) Name() string { return r.name }

func (r *Expvar) Observe(op string, impl nodeapi.ImplType, bytes int64, duration time.Duration, err error) {
	key := op + ":" + impl.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[key] += float64(duration) / float64(time.Millisecond)
	if err == nil {
		r.bytes[key] += bytes
	}
	if _, ok := r.results[key]; !ok {
		r.results[key] = make(map[string]int64, 2)
	}
	r.results[key][status(err)]++
}

// Snapshot returns a copy of the aggregated metrics.
func (r *Expvar) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	durations := make(map[string]float64, len(r.durations))
	for k, v := range r.durations {
		durations[k] = v
	}
	bytes := make(map[string]int64, len(r.bytes))
	for k, v := range r.bytes {
		bytes[k] = v
	}
	results := make(map[string]map[string]int64, len(r.results))
	for k, counts := range r.results {
		cp := make(map[string]int64, len(counts))
		for s, n := range counts {
			cp[s] = n
		}
		results[k] = cp
	}
	return ExpvarSnapshot{DurationsMS: durations, Bytes: bytes, Results: results, RecordedAt: time.Now().UTC()}
}

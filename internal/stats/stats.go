// Package stats implements the StatsCounters/Statistics sampler of spec
// §3/§4.8: three atomic counters sampled once per second into derived
// per-second rates, plus a Prometheus exposition of the same numbers
// (SPEC_FULL's additive DOMAIN STACK wiring).
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the derived view published once per second.
type Snapshot struct {
	PutsPerSecond   float64
	WritesPerSecond float64
	QueueBacklog    int64
}

// Statistics owns the monotonic counters and the last-published snapshot.
// Counters are atomic; the snapshot is guarded by a plain mutex since
// writes are bounded to once per second and readers accept best-effort
// freshness (spec §5).
type Statistics struct {
	putCount   atomic.Uint64
	writeCount atomic.Uint64
	backlog    atomic.Int64

	mu        sync.Mutex
	snapshot  Snapshot
	updated   bool
	lastPub   time.Time

	putsGauge    prometheus.Gauge
	writesGauge  prometheus.Gauge
	backlogGauge prometheus.Gauge
}

// New constructs Statistics and registers its three gauges against reg.
// A nil registry skips Prometheus registration entirely (useful in tests).
func New(reg prometheus.Registerer) *Statistics {
	s := &Statistics{lastPub: time.Now()}

	s.putsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stsdb_puts_per_second",
		Help: "Rate of ingested samples over the last publish interval.",
	})
	s.writesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stsdb_writes_per_second",
		Help: "Rate of rows written to per-metric stores over the last publish interval.",
	})
	s.backlogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stsdb_queue_backlog",
		Help: "Current depth of the sample queue.",
	})

	if reg != nil {
		reg.MustRegister(s.putsGauge, s.writesGauge, s.backlogGauge)
	}

	return s
}

// IncPut increments the put counter; called from QueueMetric on every
// producer thread.
func (s *Statistics) IncPut() {
	s.putCount.Add(1)
}

// IncWrite increments the write counter; called from the writer worker
// after a successful INSERT.
func (s *Statistics) IncWrite() {
	s.writeCount.Add(1)
}

// SetBacklog records the current queue depth observable gauge.
func (s *Statistics) SetBacklog(depth int64) {
	s.backlog.Store(depth)
}

// Process is the Statistics worker's tick: publish derived rates once at
// least a second has elapsed since the last publish, otherwise sleep
// briefly (spec §4.8).
func (s *Statistics) Process() {
	elapsed := time.Since(s.lastPub)
	if elapsed < time.Second {
		time.Sleep(50 * time.Millisecond)
		return
	}

	puts := s.putCount.Swap(0)
	writes := s.writeCount.Swap(0)
	backlog := s.backlog.Load()
	secs := elapsed.Seconds()

	s.mu.Lock()
	s.snapshot = Snapshot{
		PutsPerSecond:   float64(puts) / secs,
		WritesPerSecond: float64(writes) / secs,
		QueueBacklog:    backlog,
	}
	s.updated = true
	s.mu.Unlock()

	s.lastPub = time.Now()

	s.putsGauge.Set(s.snapshot.PutsPerSecond)
	s.writesGauge.Set(s.snapshot.WritesPerSecond)
	s.backlogGauge.Set(float64(backlog))
}

// Start and Stop are no-ops for Statistics: there is no setup/teardown
// beyond the counters themselves (spec §4.9's capability set still
// requires them to satisfy the Worker interface).
func (s *Statistics) Start() error { return nil }
func (s *Statistics) Stop()        {}

// GetStats copies the last snapshot into out. When onlyIfUpdated is true
// and no fresh snapshot has been published since the last call, returns
// false and leaves out untouched; otherwise copies and clears the
// updated flag.
func (s *Statistics) GetStats(out *Snapshot, onlyIfUpdated bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if onlyIfUpdated && !s.updated {
		return false
	}
	*out = s.snapshot
	s.updated = false
	return true
}

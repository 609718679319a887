package store

import (
	"sync"
	"sync/atomic"

	"github.com/jakinnaird/stsdb/internal/metric"
)

// sampleQueue is the MPSC FIFO of spec §3: many producers (HTTP handlers,
// the telnet multiplexer, the self-metric feedback loop) push; a single
// consumer (the writer worker) pops in bulk. depth is observable without
// taking the lock, for the Statistics gauge.
type sampleQueue struct {
	mu    sync.Mutex
	items []metric.Metric
	depthCounter atomic.Int64
}

func newSampleQueue() *sampleQueue {
	return &sampleQueue{}
}

func (q *sampleQueue) push(m metric.Metric) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.depthCounter.Add(1)
}

// popUpTo removes and returns up to n samples in FIFO order.
func (q *sampleQueue) popUpTo(n int) []metric.Metric {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]metric.Metric, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	q.depthCounter.Add(-int64(n))
	return batch
}

func (q *sampleQueue) depth() int64 {
	return q.depthCounter.Load()
}

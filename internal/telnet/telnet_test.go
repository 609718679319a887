package telnet

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakinnaird/stsdb/internal/metric"
)

type fakeSink struct {
	mu sync.Mutex
	ms []metric.Metric
}

func (f *fakeSink) QueueMetric(m metric.Metric) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ms = append(f.ms, m)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ms)
}

func TestDisabledOnZeroPort(t *testing.T) {
	sink := &fakeSink{}
	s := New("127.0.0.1", "0", sink)
	require.NoError(t, s.Start())
	assert.Nil(t, s.listener)
	s.Process() // should not panic/block meaningfully
	s.Stop()
}

func TestPutLineEnqueues(t *testing.T) {
	sink := &fakeSink{}
	s := New("127.0.0.1", "18923", sink)
	require.NoError(t, s.Start())
	defer s.Stop()

	go func() {
		for i := 0; i < 40; i++ {
			s.Process()
		}
	}()

	conn, err := net.Dial("tcp", "127.0.0.1:18923")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("put sys.cpu 1700000000 0.5 host=a\n"))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, sink.count())
	assert.Equal(t, "sys.cpu", sink.ms[0].Name)
}

func TestIsValidCharFiltersApostrophe(t *testing.T) {
	assert.False(t, isValidChar('\''))
	assert.True(t, isValidChar('a'))
	assert.True(t, isValidChar(' '))
	assert.True(t, isValidChar('='))
}

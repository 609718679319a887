package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProc struct {
	started  atomic.Bool
	stopped  atomic.Bool
	ticks    atomic.Int64
	startErr error
}

func (f *fakeProc) Start() error {
	f.started.Store(true)
	return f.startErr
}

func (f *fakeProc) Process() {
	f.ticks.Add(1)
	time.Sleep(time.Millisecond)
}

func (f *fakeProc) Stop() {
	f.stopped.Store(true)
}

func TestLifecycle(t *testing.T) {
	p := &fakeProc{}
	w := New("test", p)

	assert.Equal(t, Created, w.State())

	require.NoError(t, w.Launch())
	assert.True(t, p.started.Load())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Running, w.State())
	assert.Greater(t, p.ticks.Load(), int64(0))

	w.Stop()
	assert.True(t, p.stopped.Load())
	assert.Equal(t, Stopped, w.State())
}

func TestLaunchPropagatesStartError(t *testing.T) {
	p := &fakeProc{startErr: assert.AnError}
	w := New("test", p)

	err := w.Launch()
	require.Error(t, err)
	assert.Equal(t, Created, w.State())
}

func TestStopIsIdempotentFromCreated(t *testing.T) {
	p := &fakeProc{}
	w := New("test", p)
	w.Stop() // no Launch — should not panic or block
	assert.False(t, p.stopped.Load())
}

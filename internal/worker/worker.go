// Package worker implements the cooperative lifecycle framework of spec
// §4.9/§9: a small capability set replacing the original's ThreadProc
// inheritance, driven by a loop that owns one goroutine per worker and
// joins it on Stop, the way the teacher drives its background workers
// with wg.Go + a ticking loop in pkg/metricstore/checkpoint.go.
package worker

import (
	"sync"

	"github.com/jakinnaird/stsdb/pkg/log"
)

// Proc is the capability set a long-running component implements: Start
// runs once before the loop begins, Process runs repeatedly while the
// worker is running (and is responsible for its own pacing — typically
// sleeping briefly when idle), Stop runs once after the loop exits.
type Proc interface {
	Start() error
	Process()
	Stop()
}

// State is one of the lifecycle states named in spec §4.9.
type State int

const (
	Created State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker drives one Proc on its own goroutine between Launch and Stop.
type Worker struct {
	name string
	proc Proc

	mu    sync.Mutex
	state State

	stopCh chan struct{}
	doneCh chan struct{}
}

// New wraps proc, named for log messages. The worker starts in the
// Created state; call Launch to run Start and begin the Process loop.
func New(name string, proc Proc) *Worker {
	return &Worker{name: name, proc: proc, state: Created}
}

// Launch runs proc.Start() synchronously (construction-time failures are
// fatal per spec §7 and are returned to the caller, typically the
// Kernel), then spawns the Process loop goroutine.
func (w *Worker) Launch() error {
	w.mu.Lock()
	if w.state != Created {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.proc.Start(); err != nil {
		return err
	}

	w.mu.Lock()
	w.state = Running
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run()
	return nil
}

func (w *Worker) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		default:
			w.proc.Process()
		}
	}
}

// Stop flips running to false and joins the goroutine, then runs
// proc.Stop() once, per spec §4.9.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state != Running {
		w.mu.Unlock()
		return
	}
	w.state = Stopping
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.proc.Stop()

	w.mu.Lock()
	w.state = Stopped
	w.mu.Unlock()

	log.Debugf("worker %q stopped", w.name)
}

// State reports the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

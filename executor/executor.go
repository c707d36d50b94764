// Package executor ties a topology to a worker and drives the
// idle/running state machine around a single execution: Execute
// transitions idle -> running, and WaitFinish blocks for completion
// and transitions back to idle.
package executor

import (
	"sync"

	"go.lepak.sg/kannon/kerr"
	"go.lepak.sg/kannon/topology"
	"go.lepak.sg/kannon/worker"
)

type phase int

const (
	idle phase = iota
	running
)

// Executor holds a swappable topology and worker, and drives one
// execution at a time. The zero value is not usable; use New.
type Executor struct {
	mu    sync.Mutex
	phase phase
	top   *topology.Topology
	wrk   worker.Worker
}

// New returns an idle Executor with no topology or worker attached.
func New() *Executor {
	return &Executor{}
}

// ExchangeTopology attaches top and returns whatever topology was
// previously attached (nil if none). It fails with
// kerr.ErrAlreadyExecuted if an execution is currently running - the
// topology may only be replaced while the executor is idle.
func (e *Executor) ExchangeTopology(top *topology.Topology) (*topology.Topology, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == running {
		return nil, kerr.ErrAlreadyExecuted
	}
	old := e.top
	e.top = top
	return old, nil
}

// DetachTopology removes and returns the currently attached topology.
// It fails with kerr.ErrAlreadyExecuted while an execution is running.
func (e *Executor) DetachTopology() (*topology.Topology, error) {
	return e.ExchangeTopology(nil)
}

// ExchangeWorker attaches w and returns whatever worker was
// previously attached (nil if none). It fails with
// kerr.ErrAlreadyExecuted if an execution is currently running - the
// worker may only be replaced while the executor is idle.
func (e *Executor) ExchangeWorker(w worker.Worker) (worker.Worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == running {
		return nil, kerr.ErrAlreadyExecuted
	}
	old := e.wrk
	e.wrk = w
	return old, nil
}

// DetachWorker removes and returns the currently attached worker. It
// fails with kerr.ErrAlreadyExecuted while an execution is running.
func (e *Executor) DetachWorker() (worker.Worker, error) {
	return e.ExchangeWorker(nil)
}

// Execute seeds the attached worker from the attached topology and
// starts it, transitioning the executor from idle to running. It
// fails with kerr.ErrAlreadyExecuted if already running, with
// kerr.ErrInvalidGroupHandle if no topology is attached, and with
// kerr.ErrEmptyWorker if no worker is attached.
func (e *Executor) Execute() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == running {
		return kerr.ErrAlreadyExecuted
	}
	if e.top == nil {
		return kerr.ErrInvalidGroupHandle
	}
	if e.wrk == nil {
		return kerr.ErrEmptyWorker
	}

	if err := e.wrk.Ready(e.top); err != nil {
		return err
	}
	if err := e.wrk.Execute(); err != nil {
		return err
	}

	e.phase = running
	return nil
}

// WaitFinish blocks until the running execution completes, then
// transitions the executor back to idle. It fails with
// kerr.ErrAlreadyIdle if nothing is running.
func (e *Executor) WaitFinish() error {
	e.mu.Lock()
	if e.phase != running {
		e.mu.Unlock()
		return kerr.ErrAlreadyIdle
	}
	w := e.wrk
	e.mu.Unlock()

	w.WaitFinish()

	e.mu.Lock()
	e.phase = idle
	e.mu.Unlock()
	return nil
}

// Running reports whether an execution is currently in flight.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == running
}

package worker

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.lepak.sg/kannon/chops"
	"go.lepak.sg/kannon/topology"
)

// SequentialWorker runs a topology to completion on the goroutine
// that calls Execute, using a single FIFO queue seeded from the
// topology's root groups and refilled as groups are released.
type SequentialWorker struct {
	queue     chan *topology.TaskNode
	taskCount atomic.Int64
}

// NewSequential returns a SequentialWorker. Call Ready before Execute.
func NewSequential() *SequentialWorker {
	return &SequentialWorker{}
}

// Ready implements Worker.
func (w *SequentialWorker) Ready(top *topology.Topology) error {
	capHint := top.TaskCount()
	if capHint == 0 {
		capHint = 1
	}

	w.queue = make(chan *topology.TaskNode, capHint)
	w.taskCount.Store(int64(top.TaskCount()))

	for _, gn := range top.RootGroups() {
		if err := w.enqueueGroup(gn); err != nil {
			return err
		}
	}
	return nil
}

// Execute implements Worker. It drains the queue synchronously,
// running each task and applying the completion protocol, until the
// queue is empty.
func (w *SequentialWorker) Execute() error {
	if w.queue == nil {
		return fmt.Errorf("worker: sequential worker not ready")
	}

	for {
		tn, status := chops.TryRecv(w.queue).Get()
		if status != chops.Ok {
			if remaining := w.taskCount.Load(); remaining != 0 {
				return fmt.Errorf("worker: sequential queue drained with %d tasks outstanding", remaining)
			}
			return nil
		}

		tn.Run()
		w.taskCount.Add(-1)

		var enqueueErr error
		completeTask(tn, func(gn *topology.GroupNode) {
			if err := w.enqueueGroup(gn); err != nil && enqueueErr == nil {
				enqueueErr = err
			}
		})
		if enqueueErr != nil {
			return enqueueErr
		}
	}
}

func (w *SequentialWorker) enqueueGroup(gn *topology.GroupNode) error {
	for _, tn := range gn.Tasks() {
		if chops.TrySend(w.queue, tn) != chops.Ok {
			return fmt.Errorf("worker: sequential queue rejected task %q: queue full", tn.Name())
		}
	}
	return nil
}

// WaitFinish implements Worker. For SequentialWorker it returns
// immediately once Execute has returned, since Execute itself drains
// the topology to completion; it only spins if called concurrently
// with an Execute still in flight on another goroutine.
func (w *SequentialWorker) WaitFinish() {
	backoff := time.Microsecond
	for w.taskCount.Load() != 0 {
		time.Sleep(backoff)
		if backoff < 10*time.Millisecond {
			backoff *= 2
		}
	}
}

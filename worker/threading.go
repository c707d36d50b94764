package worker

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.lepak.sg/kannon/batcher"
	"go.lepak.sg/kannon/chops"
	"go.lepak.sg/kannon/topology"
)

// releaseBatchInterval bounds how long a newly-released group can sit
// before its tasks are handed to a worker, when fewer than N groups
// become ready within the window.
const releaseBatchInterval = 200 * time.Microsecond

// ThreadingWorker runs a topology across a fixed pool of goroutines.
// Each goroutine pulls from its own local queue first, then from a
// shared injector queue, then tries to steal from a sibling's local
// queue; a goroutine that finds nothing anywhere parks until a newly
// released group wakes it.
//
// Newly-released groups are not dispatched one at a time: they pass
// through a batcher.Batch stage first (threshold N, interval
// releaseBatchInterval) so that when many groups become ready within
// the same instant - the common case at a wide fan-in join - workers
// are woken and queues refilled once per batch instead of once per
// group.
type ThreadingWorker struct {
	n      int
	locals []chan *topology.TaskNode
	inject chan *topology.TaskNode
	parked *blockedThreads

	taskCount atomic.Int64
	started   atomic.Bool
	finishOne sync.Once

	workersWG sync.WaitGroup
	batchWG   sync.WaitGroup

	readyIn  chan *topology.GroupNode
	readyOut chan []*topology.GroupNode
}

// NewThreading returns a ThreadingWorker with a fixed pool of n
// goroutines. n is clamped to at least 1.
func NewThreading(n int) *ThreadingWorker {
	if n < 1 {
		n = 1
	}
	return &ThreadingWorker{n: n}
}

// NewThreadingAuto returns a ThreadingWorker sized to GOMAXPROCS.
func NewThreadingAuto() *ThreadingWorker {
	return NewThreading(runtime.GOMAXPROCS(0))
}

// Ready implements Worker.
func (w *ThreadingWorker) Ready(top *topology.Topology) error {
	taskCapHint := top.TaskCount()
	if taskCapHint == 0 {
		taskCapHint = 1
	}
	groupCapHint := len(top.Nodes())
	if groupCapHint == 0 {
		groupCapHint = 1
	}

	w.inject = make(chan *topology.TaskNode, taskCapHint)
	w.locals = make([]chan *topology.TaskNode, w.n)
	for i := range w.locals {
		w.locals[i] = make(chan *topology.TaskNode, taskCapHint)
	}
	w.parked = newBlockedThreads(w.n)
	w.taskCount.Store(int64(top.TaskCount()))

	w.readyIn = make(chan *topology.GroupNode, groupCapHint)
	w.readyOut = make(chan []*topology.GroupNode, w.n)

	w.batchWG.Add(2)
	go func() {
		defer w.batchWG.Done()
		batcher.Batch(w.readyIn, w.readyOut, w.n, releaseBatchInterval, false)
	}()
	go func() {
		defer w.batchWG.Done()
		for batch := range w.readyOut {
			w.dispatchBatch(batch)
		}
	}()

	for _, gn := range top.RootGroups() {
		w.readyIn <- gn
	}

	return nil
}

// Execute implements Worker: it starts the worker pool and returns
// immediately. Call WaitFinish to block for completion.
func (w *ThreadingWorker) Execute() error {
	if w.inject == nil {
		return fmt.Errorf("worker: threading worker not ready")
	}
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("worker: threading worker already executing")
	}

	for id := 0; id < w.n; id++ {
		id := id
		w.workersWG.Add(1)
		go w.run(id)
	}
	return nil
}

// WaitFinish implements Worker.
func (w *ThreadingWorker) WaitFinish() {
	w.workersWG.Wait()
	w.batchWG.Wait()
}

func (w *ThreadingWorker) run(id int) {
	defer w.workersWG.Done()

	for {
		if w.taskCount.Load() == 0 {
			return
		}

		tn, ok := w.nextTask(id)
		if !ok {
			// Mark parked before the final recheck, not after: a
			// release that lands between the first nextTask miss and
			// this point must still find id in the parked set, or its
			// wakeup is lost for good.
			w.parked.markParked(id)
			tn, ok = w.nextTask(id)
			if !ok {
				w.parked.wait(id)
				w.parked.clearParked(id)
				continue
			}
			w.parked.clearParked(id)
		}

		tn.Run()
		remaining := w.taskCount.Add(-1)

		completeTask(tn, w.release)

		if remaining == 0 {
			w.finish()
			return
		}
	}
}

func (w *ThreadingWorker) nextTask(id int) (*topology.TaskNode, bool) {
	if v, status := chops.TryRecv(w.locals[id]).Get(); status == chops.Ok {
		return v, true
	}
	if v, status := chops.TryRecv(w.inject).Get(); status == chops.Ok {
		return v, true
	}
	for i := 1; i < w.n; i++ {
		victim := (id + i) % w.n
		if v, status := chops.TryRecv(w.locals[victim]).Get(); status == chops.Ok {
			return v, true
		}
	}
	return nil, false
}

func (w *ThreadingWorker) release(gn *topology.GroupNode) {
	chops.TrySend(w.readyIn, gn)
}

func (w *ThreadingWorker) dispatchBatch(batch []*topology.GroupNode) {
	total := 0
	for i, gn := range batch {
		for _, tn := range gn.Tasks() {
			if chops.TrySend(w.inject, tn) != chops.Ok {
				// Injector momentarily full: fall back to a local
				// queue, round-robin across groups in the batch so no
				// single worker is flooded.
				w.locals[i%w.n] <- tn
			}
			total++
		}
	}
	w.parked.unparkUpTo(min(total, w.n))
}

func (w *ThreadingWorker) finish() {
	w.finishOne.Do(func() {
		close(w.readyIn)
		w.parked.unparkAll()
	})
}

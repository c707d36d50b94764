// Package worker implements the two scheduling strategies an Executor
// can drive a topology with: SequentialWorker, a single-goroutine FIFO,
// and ThreadingWorker, a fixed pool of goroutines sharing a
// work-stealing injector queue with per-worker local queues and a
// park/unpark idle path.
//
// Both workers share the same wavefront completion protocol: a task
// finishing decrements its group's remaining-task counter; if that
// reaches zero, every successor group's remaining-predecessor counter
// is decremented, and any successor that reaches zero has its tasks
// handed back to the worker to schedule.
package worker

import "go.lepak.sg/kannon/topology"

// Worker executes a frozen topology to completion.
type Worker interface {
	// Ready seeds the worker's internal queues from top's root
	// groups. It must be called exactly once, before Execute.
	Ready(top *topology.Topology) error

	// Execute runs the topology. SequentialWorker runs synchronously
	// on the calling goroutine and only returns once every task has
	// completed; ThreadingWorker starts its pool and returns
	// immediately, leaving WaitFinish to block for completion.
	Execute() error

	// WaitFinish blocks until every task in the topology has run (or
	// been silently skipped because it was released).
	WaitFinish()
}

// completeTask implements the wavefront release protocol common to
// both workers: once a task has run, finish its owning group node,
// and if that was the group's last outstanding task, release every
// successor whose own remaining-predecessor count also reaches zero.
func completeTask(tn *topology.TaskNode, release func(*topology.GroupNode)) {
	owner := tn.Owner()
	if !owner.FinishTask() {
		return
	}

	for _, succ := range owner.Successors() {
		if succ.ReleasePredecessor() {
			release(succ)
		}
	}
}

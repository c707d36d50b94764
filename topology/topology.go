// Package topology freezes a set of groups into an immutable
// execution graph: every live group becomes a GroupNode carrying
// atomic remaining-task and remaining-predecessor counters, and every
// live task in it becomes a TaskNode. Cycle detection runs once, at
// freeze time, on a throwaway graph.AdjacencyListDigraph built from
// the groups' successor edges, so a worker never has to discover a
// cycle mid-run.
package topology

import (
	"fmt"
	"sync/atomic"

	"go.lepak.sg/kannon/graph"
	"go.lepak.sg/kannon/group"
	"go.lepak.sg/kannon/kerr"
	"go.lepak.sg/kannon/task"
)

// TaskNode is one task in a frozen topology.
type TaskNode struct {
	handle *task.Handle
	owner  *GroupNode
}

// Name returns the underlying task's name, or "" if it has since been
// released.
func (n *TaskNode) Name() string {
	return n.handle.Name()
}

// Owner returns the group node this task belongs to.
func (n *TaskNode) Owner() *GroupNode {
	return n.owner
}

// Run invokes the underlying task through its handle, returning false
// without error if the task was released since the topology froze.
func (n *TaskNode) Run() bool {
	return n.handle.Call()
}

// GroupNode is one group in a frozen topology, holding the atomic
// counters the wavefront-release completion protocol decrements.
type GroupNode struct {
	handle *group.Handle
	name   string
	tasks  []*TaskNode

	remainingTasks atomic.Uint32
	remainingPreds atomic.Uint32

	successors []*GroupNode
}

// Name returns the underlying group's name, captured at freeze time.
func (n *GroupNode) Name() string {
	return n.name
}

// GroupID returns the process-wide unique id of the underlying group.
func (n *GroupNode) GroupID() uint64 {
	return n.handle.ID()
}

// Tasks returns every task node belonging to this group.
func (n *GroupNode) Tasks() []*TaskNode {
	return n.tasks
}

// Successors returns the group nodes that this node has a precedence
// edge into.
func (n *GroupNode) Successors() []*GroupNode {
	return n.successors
}

// RemainingTasks returns the current value of the remaining-task
// counter, mostly useful for tests and debug logging.
func (n *GroupNode) RemainingTasks() uint32 {
	return n.remainingTasks.Load()
}

// RemainingPredecessors returns the current value of the
// remaining-predecessor counter.
func (n *GroupNode) RemainingPredecessors() uint32 {
	return n.remainingPreds.Load()
}

// FinishTask records that one of this node's tasks has completed
// (Release-ordered, per the wavefront completion protocol) and
// reports whether that was the last outstanding task in the group.
func (n *GroupNode) FinishTask() bool {
	return n.remainingTasks.Add(^uint32(0)) == 0
}

// ReleasePredecessor records that one of this node's predecessors has
// fully completed and reports whether that was the last outstanding
// predecessor, meaning this node's tasks are now ready to run.
func (n *GroupNode) ReleasePredecessor() bool {
	return n.remainingPreds.Add(^uint32(0)) == 0
}

// Topology is a frozen, immutable snapshot of a group graph, ready to
// be handed to a Worker.
type Topology struct {
	nodes      []*GroupNode
	rootGroups []*GroupNode
	taskCount  int
}

// TaskCount returns the total number of task nodes across every group
// node in the topology.
func (t *Topology) TaskCount() int {
	return t.taskCount
}

// Nodes returns every group node in the topology, in the order their
// groups were enumerated when the topology was built.
func (t *Topology) Nodes() []*GroupNode {
	return t.nodes
}

// RootGroups returns the group nodes with no outstanding predecessors,
// the entry points a worker seeds its queue with.
func (t *Topology) RootGroups() []*GroupNode {
	return t.rootGroups
}

// Build freezes groups into a new Topology. It fails with
// kerr.ErrNoValidatedGroups if none of the groups are still live, and
// with graph.ErrCycleDetected if the live groups' precedence edges
// form a cycle.
func Build(groups []*group.Group) (*Topology, error) {
	return build(groups, nil)
}

// RebuildFrom freezes groups into a new Topology, reusing a
// GroupNode's allocation - its *GroupNode pointer and its tasks
// slice's backing array - whenever prev held a node for the same
// still-live group id, instead of allocating fresh ones. This exists
// as a distinct entry point from Build so that a caller driving a
// long-lived scheduler (add groups, run, add more groups, run again)
// can express that intent explicitly; prev may be nil, in which case
// RebuildFrom behaves exactly like Build. Reused counters are always
// reset from scratch, so there is no stale-counter carryover across
// generations - only the allocations are shared, never the state.
func RebuildFrom(prev *Topology, groups []*group.Group) (*Topology, error) {
	var reuse map[uint64]*GroupNode
	if prev != nil {
		reuse = make(map[uint64]*GroupNode, len(prev.nodes))
		for _, gn := range prev.nodes {
			reuse[gn.GroupID()] = gn
		}
	}
	return build(groups, reuse)
}

func build(groups []*group.Group, reuse map[uint64]*GroupNode) (*Topology, error) {
	live := make([]*group.Group, 0, len(groups))
	for _, g := range groups {
		if g != nil && g.Alive() {
			live = append(live, g)
		}
	}
	if len(live) == 0 {
		return nil, kerr.ErrNoValidatedGroups
	}

	liveByID := make(map[uint64]*group.Group, len(live))
	for _, g := range live {
		liveByID[g.ID()] = g
	}

	if err := checkAcyclic(live, liveByID); err != nil {
		return nil, err
	}

	nodes := make([]*GroupNode, 0, len(live))
	nodeByID := make(map[uint64]*GroupNode, len(live))
	taskCount := 0

	for _, g := range live {
		gn, reused := reuse[g.ID()]
		if !reused {
			gn = &GroupNode{}
		}
		gn.handle = g.Handle()
		gn.name = g.Name()
		gn.successors = gn.successors[:0]

		taskHandles := g.TaskHandles()
		if cap(gn.tasks) >= len(taskHandles) {
			gn.tasks = gn.tasks[:0]
		} else {
			gn.tasks = make([]*TaskNode, 0, len(taskHandles))
		}
		for _, th := range taskHandles {
			gn.tasks = append(gn.tasks, &TaskNode{handle: th, owner: gn})
		}
		gn.remainingTasks.Store(uint32(len(taskHandles)))
		gn.remainingPreds.Store(0)

		taskCount += len(taskHandles)
		nodes = append(nodes, gn)
		nodeByID[g.ID()] = gn
	}

	for _, g := range live {
		gn := nodeByID[g.ID()]
		for _, succ := range g.Successors() {
			succNode, ok := nodeByID[succ.ID()]
			if !ok {
				// Successor was released between the edge being added
				// and the topology freezing; silently drop it, same
				// as group.Manager.RearrangeGroups would have.
				continue
			}
			gn.successors = append(gn.successors, succNode)
			succNode.remainingPreds.Add(1)
		}
	}

	var roots []*GroupNode
	for _, gn := range nodes {
		if gn.remainingPreds.Load() == 0 {
			roots = append(roots, gn)
		}
	}

	return &Topology{nodes: nodes, rootGroups: roots, taskCount: taskCount}, nil
}

func checkAcyclic(live []*group.Group, liveByID map[uint64]*group.Group) error {
	dg := graph.NewAdjacencyListDigraph[uint64]()
	for _, g := range live {
		dg.AddNode(g.ID())
	}
	for _, g := range live {
		for _, succ := range g.Successors() {
			if _, ok := liveByID[succ.ID()]; ok {
				dg.AddEdge(g.ID(), succ.ID())
			}
		}
	}

	_, err := dg.TopologicalOrder()
	return err
}

func (t *Topology) String() string {
	return fmt.Sprintf("topology.Topology{groups=%d, tasks=%d, roots=%d}",
		len(t.nodes), t.taskCount, len(t.rootGroups))
}

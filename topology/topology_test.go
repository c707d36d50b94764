package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.lepak.sg/kannon/graph"
	"go.lepak.sg/kannon/group"
	"go.lepak.sg/kannon/kerr"
)

func TestBuild_NoValidatedGroups(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, kerr.ErrNoValidatedGroups)
}

func TestBuild_SingleGroup(t *testing.T) {
	m := group.NewManager()
	g, _ := m.CreateGroup("only")
	_, err := g.CreateTask("t1", func() {})
	assert.NoError(t, err)
	_, err = g.CreateTask("t2", func() {})
	assert.NoError(t, err)

	top, err := Build(m.Groups())
	assert.NoError(t, err)
	assert.Equal(t, 2, top.TaskCount())
	assert.Len(t, top.RootGroups(), 1)
	assert.Equal(t, uint32(2), top.RootGroups()[0].RemainingTasks())
}

func TestBuild_EmptyGroupGetsSentinelTask(t *testing.T) {
	m := group.NewManager()
	_, err := m.CreateGroup("empty")
	assert.NoError(t, err)

	top, err := Build(m.Groups())
	assert.NoError(t, err)
	assert.Equal(t, 1, top.TaskCount())
	assert.Equal(t, "_", top.Nodes()[0].Tasks()[0].Name())
}

func TestBuild_DiamondPrecedence(t *testing.T) {
	m := group.NewManager()
	a, _ := m.CreateGroup("a")
	b, _ := m.CreateGroup("b")
	c, _ := m.CreateGroup("c")
	d, _ := m.CreateGroup("d")

	assert.NoError(t, a.Precede(b.Handle()))
	assert.NoError(t, a.Precede(c.Handle()))
	assert.NoError(t, b.Precede(d.Handle()))
	assert.NoError(t, c.Precede(d.Handle()))

	for _, g := range []*group.Group{a, b, c, d} {
		_, err := g.CreateTask(g.Name()+"-t", func() {})
		assert.NoError(t, err)
	}

	top, err := Build(m.Groups())
	assert.NoError(t, err)
	assert.Len(t, top.RootGroups(), 1)
	assert.Equal(t, "a", top.RootGroups()[0].Name())
	assert.Equal(t, uint32(2), byName(top, "d").RemainingPredecessors())
}

func TestBuild_CycleDetected(t *testing.T) {
	m := group.NewManager()
	a, _ := m.CreateGroup("a")
	b, _ := m.CreateGroup("b")
	assert.NoError(t, a.Precede(b.Handle()))
	assert.NoError(t, b.Precede(a.Handle()))

	_, err := Build(m.Groups())
	assert.ErrorIs(t, err, graph.ErrCycleDetected)
}

func TestGroupNode_CompletionProtocol(t *testing.T) {
	m := group.NewManager()
	a, _ := m.CreateGroup("a")
	b, _ := m.CreateGroup("b")
	assert.NoError(t, a.Precede(b.Handle()))
	_, _ = a.CreateTask("t", func() {})
	_, _ = b.CreateTask("t", func() {})

	top, err := Build(m.Groups())
	assert.NoError(t, err)

	root := byName(top, "a")
	assert.True(t, root.FinishTask())

	succ := root.Successors()[0]
	assert.True(t, succ.ReleasePredecessor())
	assert.Equal(t, uint32(0), succ.RemainingPredecessors())
}

func TestRebuildFrom_NilPrevBehavesLikeBuild(t *testing.T) {
	m := group.NewManager()
	g, _ := m.CreateGroup("only")
	_, err := g.CreateTask("t1", func() {})
	assert.NoError(t, err)

	top, err := RebuildFrom(nil, m.Groups())
	assert.NoError(t, err)
	assert.Equal(t, 1, top.TaskCount())
}

func TestRebuildFrom_ReusesGroupNodeAllocation(t *testing.T) {
	m := group.NewManager()
	a, _ := m.CreateGroup("a")
	b, _ := m.CreateGroup("b")
	assert.NoError(t, a.Precede(b.Handle()))
	_, err := a.CreateTask("a-t", func() {})
	assert.NoError(t, err)
	_, err = b.CreateTask("b-t", func() {})
	assert.NoError(t, err)

	first, err := Build(m.Groups())
	assert.NoError(t, err)

	firstA := byName(first, "a")
	firstB := byName(first, "b")

	// Drain the counters as a real run would, to show RebuildFrom
	// resets them from scratch rather than inheriting stale state.
	assert.True(t, firstA.FinishTask())
	assert.True(t, firstB.ReleasePredecessor())
	assert.True(t, firstB.FinishTask())

	_, err = b.CreateTask("b-t2", func() {})
	assert.NoError(t, err)

	second, err := RebuildFrom(first, m.Groups())
	assert.NoError(t, err)

	secondA := byName(second, "a")
	secondB := byName(second, "b")

	assert.Same(t, firstA, secondA)
	assert.Same(t, firstB, secondB)
	assert.Equal(t, uint32(1), secondA.RemainingTasks())
	assert.Equal(t, uint32(2), secondB.RemainingTasks())
	assert.Equal(t, uint32(1), secondB.RemainingPredecessors())
	assert.Len(t, secondB.Tasks(), 2)
}

func TestRebuildFrom_DropsGroupAbsentFromNewList(t *testing.T) {
	m := group.NewManager()
	a, _ := m.CreateGroup("a")
	b, err := m.CreateGroup("b")
	assert.NoError(t, err)
	_, err = a.CreateTask("a-t", func() {})
	assert.NoError(t, err)
	_, err = b.CreateTask("b-t", func() {})
	assert.NoError(t, err)

	first, err := Build(m.Groups())
	assert.NoError(t, err)

	remaining := []*group.Group{a}
	second, err := RebuildFrom(first, remaining)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(second.Nodes()))
	assert.Equal(t, "a", second.Nodes()[0].Name())
}

func byName(top *Topology, name string) *GroupNode {
	for _, n := range top.Nodes() {
		if n.Name() == name {
			return n
		}
	}
	return nil
}

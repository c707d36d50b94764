// Package group implements Group, the unordered bag of tasks that is
// the unit of precedence in a topology, and Manager, which owns
// the set of live groups and lets a caller wire precedence edges
// between them before freezing everything into a topology.
package group

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"go.lepak.sg/kannon/kerr"
	"go.lepak.sg/kannon/task"
)

// nextID hands out process-wide unique group ids. The original design
// left id generation as an open question; a single atomic counter is
// the simplest answer that still lets GroupManager order groups by
// creation and lets Group.Precede/Succeed use id order to avoid
// lock-order deadlocks between concurrently-linked groups.
var nextID atomic.Uint64

// state is the allocation a Group and its Handles share, the same
// weak-handle pattern task.state uses: Handle holds a pointer to
// state directly, and Group's finalizer flips alive to false once the
// Group wrapper becomes unreachable.
type state struct {
	mu    sync.Mutex
	id    uint64
	name  string
	alive atomic.Bool

	empty *task.Task
	tasks []*task.Handle

	predecessors []*Handle
	successors   []*Handle
}

// Group is an unordered collection of tasks. Tasks within a group have
// no ordering guarantees relative to each other; ordering only exists
// between groups, via Precede/Succeed.
type Group struct {
	st *state
}

func newGroup(name string) (*Group, error) {
	if name == "" {
		return nil, kerr.ErrInvalidItemName
	}

	st := &state{
		id:    nextID.Add(1),
		name:  name,
		empty: task.NewEmpty(),
	}
	st.alive.Store(true)

	g := &Group{st: st}
	runtime.SetFinalizer(g, func(g *Group) {
		g.st.alive.Store(false)
	})

	return g, nil
}

// ID returns the group's process-wide unique id.
func (g *Group) ID() uint64 {
	return g.st.id
}

// Name returns the group's name.
func (g *Group) Name() string {
	return g.st.name
}

// Alive reports whether the group has not yet been garbage collected.
func (g *Group) Alive() bool {
	return g.st.alive.Load()
}

// Handle returns a weak handle to the group.
func (g *Group) Handle() *Handle {
	return &Handle{id: g.st.id, st: g.st}
}

// CreateTask adds a new closure-backed task to the group and returns
// ownership of it to the caller; the group only ever keeps a weak
// handle, so dropping the returned Task releases it from the group
// too.
func (g *Group) CreateTask(name string, f func()) (*task.Task, error) {
	t, err := task.FromClosure(name, f)
	if err != nil {
		return nil, err
	}
	g.addTask(t)
	return t, nil
}

// CreateTaskMethod adds a new immutable-method-backed task to the
// group. It is a free function, not a method on Group, because Go
// methods cannot introduce their own type parameters.
func CreateTaskMethod[T any](g *Group, name string, obj *T, f func(*T)) (*task.Task, error) {
	t, err := task.FromMethod(name, obj, f)
	if err != nil {
		return nil, err
	}
	g.addTask(t)
	return t, nil
}

// CreateTaskMethodMut adds a new mutable-method-backed task to the
// group. See CreateTaskMethod for why this is a free function.
func CreateTaskMethodMut[T any](g *Group, name string, obj *T, f func(*T)) (*task.Task, error) {
	t, err := task.FromMethodMut(name, obj, f)
	if err != nil {
		return nil, err
	}
	g.addTask(t)
	return t, nil
}

func (g *Group) addTask(t *task.Task) {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	g.st.tasks = append(g.st.tasks, t.Handle())
}

// TaskHandles returns weak handles to every live task in the group,
// in creation order. If the group has no live tasks, it returns a
// single handle to the group's sentinel empty task, so that every
// group contributes at least one task node to a topology.
func (g *Group) TaskHandles() []*task.Handle {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()

	live := make([]*task.Handle, 0, len(g.st.tasks))
	for _, h := range g.st.tasks {
		if h.Alive() {
			live = append(live, h)
		}
	}
	if len(live) == 0 {
		live = append(live, g.st.empty.Handle())
	}
	return live
}

// Successors returns a snapshot of the group's precedence successors.
// Edges to groups that have since been released stay in the list until
// Manager.RearrangeGroups purges them.
func (g *Group) Successors() []*Handle {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	out := make([]*Handle, len(g.st.successors))
	copy(out, g.st.successors)
	return out
}

// Predecessors returns a snapshot of the group's precedence
// predecessors, including edges to released groups not yet purged by
// Manager.RearrangeGroups.
func (g *Group) Predecessors() []*Handle {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	out := make([]*Handle, len(g.st.predecessors))
	copy(out, g.st.predecessors)
	return out
}

// Precede adds a precedence edge so that g runs before the group
// referenced by other. It fails with ErrInvalidGroupHandle if other
// has been released, and with ErrInvalidChaining if the edge would be
// a self-edge or duplicate an edge already present.
func (g *Group) Precede(other *Handle) error {
	return g.addEdge(other, true)
}

// Succeed adds a precedence edge so that g runs after the group
// referenced by other. See Precede for the error cases.
func (g *Group) Succeed(other *Handle) error {
	return g.addEdge(other, false)
}

func (g *Group) addEdge(otherHandle *Handle, gPrecedesOther bool) error {
	otherSt, ok := otherHandle.resolve()
	if !ok {
		return kerr.ErrInvalidGroupHandle
	}

	selfSt := g.st
	if otherSt.id == selfSt.id {
		return kerr.ErrInvalidChaining
	}

	// Lock in ascending id order regardless of which side is "self",
	// so two goroutines linking the same pair of groups in opposite
	// order can never deadlock against each other.
	first, second := selfSt, otherSt
	if second.id < first.id {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if hasID(selfSt.successors, otherSt.id) || hasID(selfSt.predecessors, otherSt.id) {
		return kerr.ErrInvalidChaining
	}

	selfHandle := &Handle{id: selfSt.id, st: selfSt}
	otherResolved := &Handle{id: otherSt.id, st: otherSt}

	if gPrecedesOther {
		selfSt.successors = append(selfSt.successors, otherResolved)
		otherSt.predecessors = append(otherSt.predecessors, selfHandle)
	} else {
		selfSt.predecessors = append(selfSt.predecessors, otherResolved)
		otherSt.successors = append(otherSt.successors, selfHandle)
	}

	return nil
}

func hasID(handles []*Handle, id uint64) bool {
	return slices.ContainsFunc(handles, func(h *Handle) bool { return h.id == id })
}

// Handle is a weak reference to a Group, comparable by id: two
// handles obtained from the same group compare Equal even if the
// group itself has since been released.
type Handle struct {
	id uint64
	st *state
}

// ID returns the id of the referenced group, which remains valid even
// after the group is released.
func (h *Handle) ID() uint64 {
	if h == nil {
		return 0
	}
	return h.id
}

// Alive reports whether the referenced group has not yet been
// released.
func (h *Handle) Alive() bool {
	_, ok := h.resolve()
	return ok
}

// Equal reports whether two handles reference the same group id.
func (h *Handle) Equal(other *Handle) bool {
	return h != nil && other != nil && h.id == other.id
}

func (h *Handle) resolve() (*state, bool) {
	if h == nil || h.st == nil || !h.st.alive.Load() {
		return nil, false
	}
	return h.st, true
}

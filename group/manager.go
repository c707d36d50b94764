package group

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.lepak.sg/kannon/lmap"
	"go.lepak.sg/kannon/parallel"
	slicesx "go.lepak.sg/kannon/slices"
)

// Manager owns the set of live groups created through it, in creation
// order, so that a topology built from Groups() enumerates root
// groups in the same order a caller created them.
type Manager struct {
	mu     sync.Mutex
	groups *lmap.LinkedMap[uint64, *Group]

	// lastPurged records, for diagnostic purposes only, the ids of
	// groups whose edge lists were touched by the last RearrangeGroups
	// call.
	lastPurged []uint64
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{groups: lmap.New[uint64, *Group]()}
}

// CreateGroup creates a new, empty group and registers it with the
// manager.
func (m *Manager) CreateGroup(name string) (*Group, error) {
	g, err := newGroup(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.groups.Set(g.st.id, g, false)
	m.mu.Unlock()

	return g, nil
}

// Groups returns every group registered with the manager, live or
// not, in creation order. Callers that need only live groups should
// call RearrangeGroups first, or filter with Group.Alive.
func (m *Manager) Groups() []*Group {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Group, 0, m.groups.Len())
	m.groups.ForEach(func(_ uint64, g *Group) bool {
		out = append(out, g)
		return true
	})
	return out
}

// Len returns the number of groups currently registered.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups.Len()
}

// RearrangeGroups drops every released group from the manager's
// bookkeeping and purges dangling precedence edges that pointed at
// them from the groups that remain. Edge purging is farmed out to a
// bounded worker pool since a long-running scheduler may accumulate a
// large number of live groups between compactions.
func (m *Manager) RearrangeGroups() {
	m.mu.Lock()
	var live []*Group
	var dead []uint64
	m.groups.ForEach(func(id uint64, g *Group) bool {
		if g.Alive() {
			live = append(live, g)
		} else {
			dead = append(dead, id)
		}
		return true
	})
	for _, id := range dead {
		m.groups.Delete(id)
	}
	m.mu.Unlock()

	if len(dead) == 0 || len(live) == 0 {
		m.mu.Lock()
		m.lastPurged = nil
		m.mu.Unlock()
		return
	}

	released := make(map[uint64]struct{}, len(dead))
	for _, id := range dead {
		released[id] = struct{}{}
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(live) {
		workers = len(live)
	}

	purged, err := parallel.MapBoundedPool(context.Background(), live,
		func(_ int, g *Group) []uint64 {
			return purgeReleased(g, released)
		}, workers)
	if err != nil {
		// context.Background() never cancels; this is unreachable.
		panic(fmt.Sprintf("group: rearrange groups: %v", err))
	}

	m.mu.Lock()
	m.lastPurged = slicesx.Flatten(purged, nil)
	m.mu.Unlock()
}

// purgeReleased drops any edge in g pointing at an id in released,
// returning the id of g itself once for every edge it dropped, for
// RearrangeGroups' diagnostic log.
func purgeReleased(g *Group, released map[uint64]struct{}) []uint64 {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()

	var touched []uint64
	g.st.successors, touched = filterHandles(g.st.successors, released, g.st.id, touched)
	g.st.predecessors, touched = filterHandles(g.st.predecessors, released, g.st.id, touched)
	return touched
}

func filterHandles(handles []*Handle, released map[uint64]struct{}, selfID uint64, touched []uint64) ([]*Handle, []uint64) {
	out := handles[:0]
	for _, h := range handles {
		if _, dead := released[h.id]; dead {
			touched = append(touched, selfID)
			continue
		}
		out = append(out, h)
	}
	return out, touched
}

// RearrangeTasks drops released task handles from every live group's
// task list. Unlike RearrangeGroups it does not remove anything from
// the manager itself, since tasks are owned by groups, not the
// manager.
func (m *Manager) RearrangeTasks() {
	for _, g := range m.Groups() {
		if !g.Alive() {
			continue
		}
		g.compactTasks()
	}
}

func (g *Group) compactTasks() {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()

	live := g.st.tasks[:0]
	for _, h := range g.st.tasks {
		if h.Alive() {
			live = append(live, h)
		}
	}
	g.st.tasks = live
}

// String renders a short summary of the manager's live group count,
// useful in logs.
func (m *Manager) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("group.Manager{groups=%d, lastPurged=%d}", m.groups.Len(), len(m.lastPurged))
}

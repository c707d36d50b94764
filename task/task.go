// Package task implements the callable unit scheduled by a group: a
// name plus a closure, bound once at construction and invoked through
// a weak handle so that a released task is silently skipped rather
// than panicking a worker mid-run.
package task

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.lepak.sg/kannon/kerr"
)

// emptyName is the reserved name of the sentinel task a group runs in
// place of an empty task list, so that every group has at least one
// task node to account for in a topology.
const emptyName = "_"

// state is the allocation a Task and its handles share. Task holds the
// only strong reference; TaskHandle holds a pointer to state directly,
// the same way a Rust Weak points at the allocation behind an Arc
// without keeping it alive. When the owning Task becomes unreachable,
// its finalizer flips alive to false so every outstanding handle
// starts reporting "released" instead of dereferencing freed memory.
type state struct {
	mu    sync.Mutex
	name  string
	call  func()
	alive atomic.Bool
}

// Task is a named, callable unit of work. The zero value is not
// usable; construct one with FromClosure, FromMethod or FromMethodMut.
type Task struct {
	st *state
}

func newTask(name string, call func()) (*Task, error) {
	if name == "" {
		return nil, kerr.ErrInvalidItemName
	}

	st := &state{name: name, call: call}
	st.alive.Store(true)

	t := &Task{st: st}
	runtime.SetFinalizer(t, func(t *Task) {
		t.st.alive.Store(false)
	})

	return t, nil
}

// FromClosure builds a task that invokes f with no bound receiver.
func FromClosure(name string, f func()) (*Task, error) {
	return newTask(name, f)
}

// FromMethod builds a task bound to an immutable method call on obj:
// f is expected to only read through obj. Go has no borrow checker to
// enforce this, so it is a documentation-only distinction from
// FromMethodMut; callers that need real exclusivity must still
// synchronize obj themselves, the same way they would for any shared
// pointer used from multiple goroutines.
func FromMethod[T any](name string, obj *T, f func(*T)) (*Task, error) {
	return newTask(name, func() { f(obj) })
}

// FromMethodMut builds a task bound to a mutating method call on obj.
// See FromMethod for the caveat about Go's lack of borrow checking.
func FromMethodMut[T any](name string, obj *T, f func(*T)) (*Task, error) {
	return newTask(name, func() { f(obj) })
}

// NewEmpty builds the sentinel task a group substitutes for an empty
// task list. It always succeeds and always runs as a no-op.
func NewEmpty() *Task {
	t, err := newTask(emptyName, func() {})
	if err != nil {
		// emptyName is non-empty by construction; this can't happen.
		panic(err)
	}
	return t
}

// Name returns the task's name.
func (t *Task) Name() string {
	return t.st.name
}

// Alive reports whether the task has not yet been garbage collected.
func (t *Task) Alive() bool {
	return t.st.alive.Load()
}

// Call invokes the task's bound closure directly, serialized against
// any other concurrent Call/Handle-based invocation of the same task.
func (t *Task) Call() {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	t.st.call()
}

// Handle returns a weak handle to the task. The handle does not keep
// the task alive and reports itself released once the task is gone.
func (t *Task) Handle() *Handle {
	return &Handle{st: t.st}
}

// Handle is a weak reference to a Task. It is safe to hold a Handle
// past the lifetime of the Task it was created from; Call simply
// becomes a no-op reporting false.
type Handle struct {
	st *state
}

// Alive reports whether the referenced task is still live.
func (h *Handle) Alive() bool {
	return h != nil && h.st != nil && h.st.alive.Load()
}

// Name returns the referenced task's name, or "" if the task has been
// released.
func (h *Handle) Name() string {
	if !h.Alive() {
		return ""
	}
	return h.st.name
}

// Call invokes the referenced task if it is still live, returning
// true if it ran. A released handle is silently skipped and returns
// false; callers must not treat that as an error.
func (h *Handle) Call() bool {
	if !h.Alive() {
		return false
	}

	h.st.mu.Lock()
	defer h.st.mu.Unlock()

	// Re-check under the lock: the task may have been finalized while
	// this goroutine was waiting to acquire it.
	if !h.st.alive.Load() {
		return false
	}

	h.st.call()
	return true
}

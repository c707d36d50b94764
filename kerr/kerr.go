// Package kerr collects the sentinel errors shared across task, group,
// topology, worker and executor. Keeping them in one leaf package lets
// callers use errors.Is without importing the package that happens to
// construct the value.
package kerr

import "errors"

var (
	// ErrInvalidItemName is returned when a task or group is created
	// with an empty name.
	ErrInvalidItemName = errors.New("kannon: invalid item name")

	// ErrInvalidChaining is returned by Group.Precede/Succeed when the
	// edge would be a self-edge or duplicates an edge already present.
	ErrInvalidChaining = errors.New("kannon: invalid chaining")

	// ErrInvalidGroupHandle is returned when an operation is attempted
	// against a GroupHandle whose group has already been released.
	ErrInvalidGroupHandle = errors.New("kannon: invalid group handle")

	// ErrNoValidatedGroups is returned by topology.Build/RebuildFrom
	// when none of the supplied groups are still live.
	ErrNoValidatedGroups = errors.New("kannon: no validated groups")

	// ErrEmptyWorker is returned by Executor.Execute when no worker
	// has been attached.
	ErrEmptyWorker = errors.New("kannon: empty worker")

	// ErrAlreadyExecuted is returned by Executor.Execute when the
	// executor is already running a topology.
	ErrAlreadyExecuted = errors.New("kannon: already executed")

	// ErrAlreadyIdle is returned by Executor.WaitFinish when the
	// executor is not currently running anything.
	ErrAlreadyIdle = errors.New("kannon: already idle")
)

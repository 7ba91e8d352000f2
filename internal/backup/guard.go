package backup

import "sync/atomic"

// Guard admits at most one backup or restore at a time. Acquisition never
// blocks: a busy guard is reported to the caller immediately.
type Guard struct {
	held atomic.Bool
}

var processGuard = &Guard{}

// ProcessGuard returns the guard shared by every engine in this process
func ProcessGuard() *Guard {
	return processGuard
}

// NewGuard returns an independent guard
func NewGuard() *Guard {
	return &Guard{}
}

// TryAcquire takes the guard if it is free
func (g *Guard) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release frees the guard. Releasing a free guard is a no-op.
func (g *Guard) Release() {
	g.held.Store(false)
}

// Held reports whether an operation currently owns the guard
func (g *Guard) Held() bool {
	return g.held.Load()
}

// Run executes fn while holding the guard. The guard is released when fn
// returns or panics.
func (g *Guard) Run(operation string, fn func() error) error {
	if !g.TryAcquire() {
		return NewConflictError("cannot start " + operation + ": another backup or restore is already running").
			WithContext("operation", operation)
	}
	defer g.Release()
	return fn()
}

// Package session implements the Session Registry and Expiry Supervisor
// (spec.md §4.5, §4.6): a concurrent map from session id to Browser, with
// per-Browser armed idle-expiry tasks.
package session

import (
	"sync"
	"time"

	"github.com/sessiondriver/sessiondriver/internal/launcher"
	"github.com/sessiondriver/sessiondriver/internal/types"
)

// Browser is the registry value: a backend address, its owning subprocess
// handle, and the currently armed expiry task (spec.md §3).
//
// Invariant (spec.md §3.1): every live Browser has exactly one armed
// expiry task at any time. Rearm and cancellation are serialized by mu so
// per-session timer swaps never race each other, without stalling the
// whole registry (spec.md §5).
type Browser struct {
	ID        types.SessionID
	Address   string
	Process   *launcher.Process
	CreatedAt time.Time

	mu         sync.Mutex
	generation uint64
	timer      *time.Timer
	expiresAt  time.Time
}

// arm schedules a new expiry task that will call onFire(generation) after
// tti, replacing whatever task was previously armed. Must be called with
// mu held by the caller (Browser.Rearm/Registry.Insert), since both the generation
// bump and timer swap must happen atomically together.
func (b *Browser) arm(tti time.Duration, onFire func(gen uint64)) {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.generation++
	gen := b.generation
	b.timer = time.AfterFunc(tti, func() { onFire(gen) })
	b.expiresAt = time.Now().Add(tti)
}

// IdleRemaining returns how long this Browser has left before its armed
// expiry task fires, for display purposes (e.g. the dashboard). It can go
// negative in the brief window between a timer firing and its removal
// being observed.
func (b *Browser) IdleRemaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Until(b.expiresAt)
}

// Rearm cancels the currently armed task and arms a fresh one, per the
// rearm protocol in spec.md §4.6: abort, spawn, swap, all under this
// Browser's own lock so no race can produce two live timers.
func (b *Browser) Rearm(tti time.Duration, onFire func(gen uint64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arm(tti, onFire)
}

// currentGeneration returns the generation of the timer currently armed,
// used by a firing task to check it is still the live one (spec.md Design
// Notes: rearm-vs-fire race).
func (b *Browser) currentGeneration() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// disarm stops the currently armed timer without replacing it, used on
// explicit delete.
func (b *Browser) disarm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}

// Close terminates the Browser's subprocess and disarms its expiry task.
// Per spec.md invariant 2, both must be dropped before removal is
// observable to a caller awaiting Delete/fire-driven cleanup.
func (b *Browser) Close() error {
	b.disarm()
	if b.Process != nil {
		return b.Process.Kill()
	}
	return nil
}

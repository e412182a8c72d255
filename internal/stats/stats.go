// Package stats tracks per-session request activity: request counts,
// last-activity time, and average forward latency, keyed by session id.
package stats

import (
	"sync"
	"time"

	"github.com/sessiondriver/sessiondriver/internal/types"
)

// Entry holds the running counters for one session.
type Entry struct {
	Requests     int64
	LastActivity time.Time
	totalLatency time.Duration
}

// AverageLatency returns the mean forward latency observed for this
// session, or zero if no requests have completed yet.
func (e Entry) AverageLatency() time.Duration {
	if e.Requests == 0 {
		return 0
	}
	return e.totalLatency / time.Duration(e.Requests)
}

// Tracker is a mutex-guarded map of per-session Entry counters.
type Tracker struct {
	mu      sync.Mutex
	entries map[types.SessionID]*Entry
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{entries: make(map[types.SessionID]*Entry)}
}

// Record registers one completed forward for id, updating its running
// average latency and last-activity timestamp.
func (t *Tracker) Record(id types.SessionID, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		e = &Entry{}
		t.entries[id] = e
	}
	e.Requests++
	e.totalLatency += latency
	e.LastActivity = time.Now()
}

// Snapshot returns e's current counters, or false if id has no recorded
// activity yet.
func (t *Tracker) Snapshot(id types.SessionID) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Forget drops id's counters, called when a session is removed so the map
// does not grow without bound over the process lifetime.
func (t *Tracker) Forget(id types.SessionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len returns the number of sessions with recorded activity.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

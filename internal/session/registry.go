package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sessiondriver/sessiondriver/internal/launcher"
	"github.com/sessiondriver/sessiondriver/internal/types"
)

// Registry is the concurrent map from session id to Browser (spec.md
// §4.5). Readers acquire shared access for lookups; mutators acquire
// exclusive access. Per-Browser expiry rearm is guarded by the Browser's
// own lock, so rearming one session never stalls lookups of others.
type Registry struct {
	mu       sync.RWMutex
	browsers map[types.SessionID]*Browser
	byAddr   map[string]types.SessionID
	tti      time.Duration

	onExpired func(b *Browser)
}

// New creates an empty Registry with the given time-to-idle.
func New(tti time.Duration) *Registry {
	return &Registry{
		browsers: make(map[types.SessionID]*Browser),
		byAddr:   make(map[string]types.SessionID),
		tti:      tti,
	}
}

// OnExpired registers a callback invoked after a session is removed by its
// own idle-expiry timer firing (not by an explicit DELETE, which the
// dispatcher already accounts for itself). Used to keep metrics and
// per-session stats in sync with TTI-driven removals. Must be called
// before the registry starts receiving activity; not safe to change
// concurrently with expiry firing.
func (r *Registry) OnExpired(fn func(b *Browser)) {
	r.onExpired = fn
}

// Insert adds a new Browser to the registry, keyed by id, with a freshly
// armed expiry task. Returns ErrSessionAlreadyExists if id is already
// registered, or ErrDuplicateAddress if another live Browser already owns
// address (spec.md invariant 4).
func (r *Registry) Insert(id types.SessionID, address string, proc *launcher.Process) (*Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.browsers[id]; exists {
		return nil, types.ErrSessionAlreadyExists
	}
	if _, exists := r.byAddr[address]; exists {
		return nil, types.ErrDuplicateAddress
	}

	b := &Browser{ID: id, Address: address, Process: proc, CreatedAt: time.Now()}
	b.mu.Lock()
	b.arm(r.tti, r.expiryFired(id))
	b.mu.Unlock()

	r.browsers[id] = b
	r.byAddr[address] = id

	log.Info().Str("session_id", id.String()).Str("address", address).Int("total_sessions", len(r.browsers)).
		Msg("session created")
	return b, nil
}

// Lookup returns the Browser for id without touching its expiry timer.
func (r *Registry) Lookup(id types.SessionID) (*Browser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.browsers[id]
	return b, ok
}

// Rearm looks up id and, if present, rearms its expiry task (spec.md
// §4.7 cases 4 and 5: every activity request on a live session rearms
// it). Returns false if no such session exists.
func (r *Registry) Rearm(id types.SessionID) (*Browser, bool) {
	r.mu.RLock()
	b, ok := r.browsers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	b.Rearm(r.tti, r.expiryFired(id))
	return b, true
}

// Remove takes id out of the registry without closing its Browser,
// returning it to the caller so a still-live subprocess can answer one
// last request (spec.md §4.7 case 3: DELETE removes the entry first,
// then forwards to the backend, and only kills the subprocess after).
// Returns false if no such session existed.
func (r *Registry) Remove(id types.SessionID) (*Browser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.browsers[id]
	if !ok {
		return nil, false
	}
	delete(r.browsers, id)
	delete(r.byAddr, b.Address)
	return b, true
}

// Delete removes id from the registry (if present), then closes its
// Browser (kill subprocess, cancel expiry task). Returns false if no such
// session existed. Safe to race with a firing expiry task: only one of
// the two ever observes the entry and performs the removal.
func (r *Registry) Delete(id types.SessionID) bool {
	b, ok := r.Remove(id)
	if !ok {
		return false
	}

	if err := b.Close(); err != nil {
		log.Warn().Err(err).Str("session_id", id.String()).Msg("error closing session on delete")
	}
	log.Info().Str("session_id", id.String()).Dur("lifetime", time.Since(b.CreatedAt)).Msg("session removed")
	return true
}

// expiryFired returns the callback armed into a Browser's timer. It
// implements the Design Notes' cyclic-ownership break: the task captures
// only a back-reference to the Registry and the session id by value, not
// a reference to its own Browser entry, and performs lookup-then-remove.
// The generation check is the rearm-vs-fire race guard: a timer that
// fires after it was already superseded by a rearm is a no-op.
func (r *Registry) expiryFired(id types.SessionID) func(gen uint64) {
	return func(gen uint64) {
		r.mu.RLock()
		b, ok := r.browsers[id]
		r.mu.RUnlock()
		if !ok {
			return
		}
		if b.currentGeneration() != gen {
			return
		}
		if r.Delete(id) && r.onExpired != nil {
			r.onExpired(b)
		}
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.browsers)
}

// Snapshot returns a point-in-time copy of the registry's Browsers, for
// the dashboard and stats views. The returned slice shares no mutable
// state with the registry beyond the Browser pointers themselves.
func (r *Registry) Snapshot() []*Browser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Browser, 0, len(r.browsers))
	for _, b := range r.browsers {
		out = append(out, b)
	}
	return out
}

// Close tears down every live Browser in parallel (bounded concurrency),
// for graceful shutdown (spec.md §5).
func (r *Registry) Close() error {
	r.mu.Lock()
	ids := make([]types.SessionID, 0, len(r.browsers))
	for id := range r.browsers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	eg := new(errgroup.Group)
	eg.SetLimit(8)
	for _, id := range ids {
		id := id
		eg.Go(func() error {
			r.Delete(id)
			return nil
		})
	}
	return eg.Wait()
}

package session

import (
	"sort"
	"sync"
)

// Registry maps session ids to sessions. Every method takes one exclusive
// lock and holds it only for map and field manipulation; callers must not
// perform I/O from inside a Mutate callback.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Insert stores s under s.ID and returns the session it replaced, if any.
// The caller is responsible for terminating a replaced session's process.
func (r *Registry) Insert(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[s.ID]
	r.sessions[s.ID] = s
	return prev
}

// Remove deletes the session with the given id and returns it.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Snapshot returns a copy of the session's status and scrollback.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// Mutate applies f to the session with the given id under the registry
// lock. It reports whether the session was present.
func (r *Registry) Mutate(id string, f func(s *Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	f(s)
	return true
}

// mutateIfCurrent applies f only while s is the entry registered under its
// id. A pump whose session was killed or replaced must not touch the entry
// that took its place.
func (r *Registry) mutateIfCurrent(s *Session, f func(s *Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.ID] != s {
		return false
	}
	f(s)
	return true
}

// lookup returns the registered session and its status.
func (r *Registry) lookup(id string) (*Session, Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, "", false
	}
	return s, s.Status, true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshots returns copies of every registered session ordered by id.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.snapshot())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// drain removes and returns every registered session.
func (r *Registry) drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, s)
		delete(r.sessions, id)
	}
	return out
}

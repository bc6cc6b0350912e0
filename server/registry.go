package server

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// Registry is the shared mapping from session key to live session. It is
// written by the protocol engine on connect/disconnect and read by the grid
// broadcaster. Range iterates a point-in-time view without locking out
// writers, so stale reads during a broadcast are possible; the broadcaster
// skips sessions that are no longer open.
type Registry struct {
	sessions *xsync.Map[string, *Session]
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: xsync.NewMap[string, *Session](),
	}
}

// Add registers a live session under its key.
func (r *Registry) Add(s *Session) {
	r.sessions.Store(s.Key, s)
}

// Remove deletes the session with the given key. It reports whether the key
// was present, making removal idempotent for the close path.
func (r *Registry) Remove(key string) bool {
	_, present := r.sessions.LoadAndDelete(key)
	return present
}

// Get returns the session with the given key, if registered.
func (r *Registry) Get(key string) (*Session, bool) {
	return r.sessions.Load(key)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Range calls fn for each registered session until fn returns false.
func (r *Registry) Range(fn func(s *Session) bool) {
	r.sessions.Range(func(_ string, s *Session) bool {
		return fn(s)
	})
}

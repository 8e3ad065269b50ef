// Package realtime is the live side of the chat: which users hold open
// websocket connections, how presence follows from that, and how events
// fan out to those connections.
package realtime

import (
	"errors"
	"slices"
	"sync"
)

// Delivery failures. Broadcasts log and count them; nobody else sees them.
var (
	ErrConnClosed  = errors.New("connection closed")
	ErrSendTimeout = errors.New("send timed out")
)

// Handle is one live connection. Send must be safe for concurrent use and
// must not block past its own timeout. Close must be idempotent.
type Handle interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// Registry maps usernames to their live handles. A username has an entry
// exactly when it has at least one handle, and a handle belongs to at most
// one username.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]map[Handle]struct{}
	owners  map[Handle]string
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]map[Handle]struct{}),
		owners:  make(map[Handle]string),
	}
}

// Add registers h under username and reports whether this created the
// entry, i.e. the user just went from zero connections to one. Adding a
// handle that is already registered changes nothing and reports false.
func (r *Registry) Add(username string, h Handle) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, owned := r.owners[h]; owned {
		return false
	}
	entry, ok := r.entries[username]
	if !ok {
		entry = make(map[Handle]struct{})
		r.entries[username] = entry
	}
	entry[h] = struct{}{}
	r.owners[h] = username
	return !ok
}

// Remove drops h from username's entry and reports whether that emptied
// it. The entry is deleted in the same critical section, so exactly one
// Remove per online period reports true. Removing an unknown handle, or a
// handle under a different username, is a no-op that reports false.
func (r *Registry) Remove(username string, h Handle) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owners[h]; !ok || owner != username {
		return false
	}
	delete(r.owners, h)
	entry := r.entries[username]
	delete(entry, h)
	if len(entry) == 0 {
		delete(r.entries, username)
		return true
	}
	return false
}

// HandlesFor returns a snapshot of username's handles, empty if offline.
func (r *Registry) HandlesFor(username string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry := r.entries[username]
	handles := make([]Handle, 0, len(entry))
	for h := range entry {
		handles = append(handles, h)
	}
	return handles
}

// AllEntries returns a snapshot of every entry. The maps and slices are
// copies; mutating them does not touch the registry.
func (r *Registry) AllEntries() map[string][]Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]Handle, len(r.entries))
	for username, entry := range r.entries {
		handles := make([]Handle, 0, len(entry))
		for h := range entry {
			handles = append(handles, h)
		}
		out[username] = handles
	}
	return out
}

// IsOnline is the live presence answer.
func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[username]
	return ok
}

// Online returns the usernames with at least one handle, sorted.
func (r *Registry) Online() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for username := range r.entries {
		names = append(names, username)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// ConnectionCount is the total number of registered handles.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners)
}

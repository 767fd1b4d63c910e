package server

import (
	"sort"
	"sync"

	"github.com/Tyrowin/relaychat/internal/identity"
)

// Registry is the authoritative set of open connections. Every mutation and
// every full enumeration takes the same mutex, so an enumeration never sees
// a half-registered client and never reaches a client after Unregister has
// returned.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]*Client
	byUser map[string]map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Client),
		byUser: make(map[string]map[string]*Client),
	}
}

// Register adds an unbound client under its handle.
func (r *Registry) Register(c *Client) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[c.handle]; exists {
		return "", ErrDuplicateHandle
	}
	r.conns[c.handle] = c
	return c.handle, nil
}

// Bind attaches id to the connection. It reports false, without changing
// anything, when the handle is unknown, the identity is empty, or the
// connection is already bound.
func (r *Registry) Bind(handle string, id identity.Identity) bool {
	if !id.Valid() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[handle]
	if !ok || !c.bindIdentity(id) {
		return false
	}

	m := r.byUser[id.UserID]
	if m == nil {
		m = make(map[string]*Client)
		r.byUser[id.UserID] = m
	}
	m[handle] = c
	return true
}

// Unregister removes the connection and returns it. The boolean is false
// when the handle was not registered.
func (r *Registry) Unregister(handle string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[handle]
	if !ok {
		return nil, false
	}
	delete(r.conns, handle)

	if id, bound := c.Identity(); bound {
		if m := r.byUser[id.UserID]; m != nil {
			delete(m, handle)
			if len(m) == 0 {
				delete(r.byUser, id.UserID)
			}
		}
	}
	return c, true
}

// ForEach calls f for every registered client while holding the registry
// lock. f must not block or call back into the registry.
func (r *Registry) ForEach(f func(*Client)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.conns {
		f(c)
	}
}

// FilterByUserID returns the handles of live connections bound to userID.
func (r *Registry) FilterByUserID(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.byUser[userID]
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for handle := range m {
		out = append(out, handle)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered connections, bound or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Roster returns the identities of all bound connections, one entry per
// user, sorted by user id.
func (r *Registry) Roster() []identity.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

func (r *Registry) rosterLocked() []identity.Identity {
	out := make([]identity.Identity, 0, len(r.byUser))
	for _, m := range r.byUser {
		for _, c := range m {
			id, _ := c.Identity()
			out = append(out, id)
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// deliverToUser enqueues payload on every connection bound to userID. It
// returns how many enqueues succeeded and the clients whose queue was full.
func (r *Registry) deliverToUser(userID string, payload []byte) (int, []*Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	var failed []*Client
	for _, c := range r.byUser[userID] {
		if c.enqueue(payload) {
			delivered++
		} else {
			failed = append(failed, c)
		}
	}
	return delivered, failed
}

// pushRoster computes the roster and enqueues its encoding on every
// registered connection in one critical section.
func (r *Registry) pushRoster(encode func([]identity.Identity) ([]byte, error)) ([]*Client, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := encode(r.rosterLocked())
	if err != nil {
		return nil, 0, err
	}

	var failed []*Client
	for _, c := range r.conns {
		if !c.enqueue(payload) {
			failed = append(failed, c)
		}
	}
	return failed, len(r.conns), nil
}

// drain removes every connection and returns them.
func (r *Registry) drain() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.conns = make(map[string]*Client)
	r.byUser = make(map[string]map[string]*Client)
	return out
}

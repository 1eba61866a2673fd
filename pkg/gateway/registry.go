package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/mahaj/dupahar-dm/pkg/model"
)

type binding struct {
	session model.Session
	ch      *Channel
}

// Registry maps each online user to its single live channel. It is the only
// source of truth for presence. All access goes through one mutex, held for
// map operations only.
type Registry struct {
	mu    sync.Mutex
	seq   uint64
	users map[string]*binding // user id -> binding
	conns map[string]*binding // connection id -> binding

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*binding),
		conns: make(map[string]*binding),
		now:   time.Now,
	}
}

// Bind makes ch the live channel of userID and returns the new session along
// with the channel it replaced, if any. The caller closes the replaced channel.
func (r *Registry) Bind(userID string, ch *Channel) (model.Session, *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A channel carries at most one identity.
	if b, ok := r.conns[ch.ID()]; ok && b.session.UserID != userID {
		delete(r.users, b.session.UserID)
	}

	r.seq++
	b := &binding{
		session: model.Session{
			ConnectionID:    ch.ID(),
			UserID:          userID,
			AuthenticatedAt: r.now().UTC(),
			Seq:             r.seq,
		},
		ch: ch,
	}

	var prev *Channel
	if old, ok := r.users[userID]; ok {
		delete(r.conns, old.session.ConnectionID)
		if old.ch != ch {
			prev = old.ch
		}
	}
	r.users[userID] = b
	r.conns[ch.ID()] = b
	return b.session, prev
}

// Unbind removes the session of connID, but only while it is still the live
// binding. A connection that has been superseded unbinds nothing.
func (r *Registry) Unbind(connID string) (model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.conns[connID]
	if !ok {
		return model.Session{}, false
	}
	delete(r.conns, connID)
	if cur, ok := r.users[b.session.UserID]; ok && cur == b {
		delete(r.users, b.session.UserID)
	}
	return b.session, true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok
}

// Snapshot returns the online user ids, sorted.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}

// SessionFor returns the session bound to connID.
func (r *Registry) SessionFor(connID string) (model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.conns[connID]
	if !ok {
		return model.Session{}, false
	}
	return b.session, true
}

// Lookup returns the live channel of userID.
func (r *Registry) Lookup(userID string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.users[userID]
	if !ok {
		return nil, false
	}
	return b.ch, true
}

// Others returns the live channels of every user except userID.
func (r *Registry) Others(userID string) []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Channel, 0, len(r.users))
	for id, b := range r.users {
		if id != userID {
			out = append(out, b.ch)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

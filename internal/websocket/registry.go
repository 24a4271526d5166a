package websocket

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

// shardCount sizes the lock shards for the registry and room index.
// Contention is scoped to one user or one room, never the whole hub.
const shardCount = 32

func shardIndex(id uuid.UUID) int {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return int(h.Sum32() % shardCount)
}

// Registry maps a user identity to the set of live connections for that
// user. A user may hold several sessions at once (multi-device); the
// registry is where the 0↔1 presence crossings are detected.
type Registry struct {
	shards [shardCount]registryShard
}

type registryShard struct {
	mu    sync.RWMutex
	users map[uuid.UUID]map[*Client]bool
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].users = make(map[uuid.UUID]map[*Client]bool)
	}
	return r
}

// Register adds a connection to its user's session set. It returns true
// when this is the user's first live connection, i.e. the 0→1 crossing.
func (r *Registry) Register(c *Client) bool {
	s := &r.shards[shardIndex(c.UserID())]
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := s.users[c.UserID()]
	if conns == nil {
		conns = make(map[*Client]bool)
		s.users[c.UserID()] = conns
	}
	first := len(conns) == 0
	conns[c] = true
	return first
}

// Unregister removes a connection. It is idempotent: removing a
// connection that never completed registration is a no-op. It returns
// true when the user's last connection went away, i.e. the 1→0 crossing.
func (r *Registry) Unregister(c *Client) bool {
	s := &r.shards[shardIndex(c.UserID())]
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[c.UserID()]
	if !ok || !conns[c] {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(s.users, c.UserID())
		return true
	}
	return false
}

// ConnectionCount returns the number of live connections for a user
func (r *Registry) ConnectionCount(userID uuid.UUID) int {
	s := &r.shards[shardIndex(userID)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID])
}

// ConnectionsOf returns a snapshot of a user's live connections
func (r *Registry) ConnectionsOf(userID uuid.UUID) []*Client {
	s := &r.shards[shardIndex(userID)]
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := make([]*Client, 0, len(s.users[userID]))
	for c := range s.users[userID] {
		conns = append(conns, c)
	}
	return conns
}

// ForEach visits a snapshot of every live connection. Used for the
// global presence broadcast; fn must not block.
func (r *Registry) ForEach(fn func(*Client)) {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		conns := make([]*Client, 0)
		for _, set := range s.users {
			for c := range set {
				conns = append(conns, c)
			}
		}
		s.mu.RUnlock()

		for _, c := range conns {
			fn(c)
		}
	}
}

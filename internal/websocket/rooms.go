package websocket

import (
	"sync"

	"github.com/google/uuid"
)

// RoomIndex maps a conversation to the set of connections subscribed to
// its events. Rooms exist implicitly: the first join creates one, the
// last leave prunes it. Membership is always a subset of live
// connections because the disconnect path calls LeaveAll before the
// registry entry is released.
type RoomIndex struct {
	shards [shardCount]roomShard
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Client]bool
}

// NewRoomIndex creates an empty room membership index
func NewRoomIndex() *RoomIndex {
	ri := &RoomIndex{}
	for i := range ri.shards {
		ri.shards[i].rooms = make(map[uuid.UUID]map[*Client]bool)
	}
	return ri
}

// Join adds a connection to a room. Joining an already-joined room is a
// no-op. It returns true when the room came into existence with this
// member, so the hub can attach its event subscription.
func (ri *RoomIndex) Join(c *Client, roomID uuid.UUID) bool {
	s := &ri.shards[shardIndex(roomID)]
	s.mu.Lock()
	members := s.rooms[roomID]
	created := members == nil
	if created {
		members = make(map[*Client]bool)
		s.rooms[roomID] = members
	}
	members[c] = true
	s.mu.Unlock()

	c.trackRoom(roomID)
	return created
}

// Leave removes a connection from a room. Leaving a room the connection
// never joined is a no-op. It returns true when the room emptied and was
// pruned.
func (ri *RoomIndex) Leave(c *Client, roomID uuid.UUID) bool {
	c.untrackRoom(roomID)

	s := &ri.shards[shardIndex(roomID)]
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.rooms[roomID]
	if !ok || !members[c] {
		return false
	}
	delete(members, c)
	if len(members) == 0 {
		delete(s.rooms, roomID)
		return true
	}
	return false
}

// LeaveAll removes a connection from every room it had joined and
// returns the rooms that emptied. Called on the disconnect path; once a
// room's removal completes, no Members snapshot includes the connection.
func (ri *RoomIndex) LeaveAll(c *Client) []uuid.UUID {
	var emptied []uuid.UUID
	for _, roomID := range c.Rooms() {
		if ri.Leave(c, roomID) {
			emptied = append(emptied, roomID)
		}
	}
	return emptied
}

// Members returns a snapshot of the room's current members. The snapshot
// is computed fresh at every publish so a fan-out never sees a
// connection that already disconnected.
func (ri *RoomIndex) Members(roomID uuid.UUID) []*Client {
	s := &ri.shards[shardIndex(roomID)]
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]*Client, 0, len(s.rooms[roomID]))
	for c := range s.rooms[roomID] {
		members = append(members, c)
	}
	return members
}

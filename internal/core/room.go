package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/metrics"
)

// Router tracks which connections are joined to which rooms and fans events out to them.
// A connection may be joined to any number of rooms.
type Router struct {
	mu          sync.RWMutex
	clients     map[string]*Client            // connection id -> client
	rooms       map[string]map[string]*Client // room -> connection id -> client
	memberships map[string]map[string]struct{}

	metrics *metrics.Metrics
	log     *zerolog.Logger
}

// NewRouter constructs an empty router.
func NewRouter(m *metrics.Metrics, logger *zerolog.Logger) *Router {
	return &Router{
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
		memberships: make(map[string]map[string]struct{}),
		metrics:     m,
		log:         logger,
	}
}

// Add registers a connection so it can receive unicast and global events.
func (r *Router) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c.ID] = c
	if _, ok := r.memberships[c.ID]; !ok {
		r.memberships[c.ID] = make(map[string]struct{})
	}
}

// Remove drops a connection and leaves every room it was joined to.
// Returns the rooms that were left.
func (r *Router) Remove(c *Client) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := make([]string, 0, len(r.memberships[c.ID]))
	for room := range r.memberships[c.ID] {
		r.leaveLocked(c.ID, room)
		left = append(left, room)
	}
	delete(r.memberships, c.ID)
	delete(r.clients, c.ID)
	return left
}

// Join adds the connection to room. Returns true if newly added; joining twice is a no-op.
func (r *Router) Join(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[connID]
	if !ok {
		return false
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[room] = members
	}
	if _, exists := members[connID]; exists {
		return false
	}
	members[connID] = c
	r.memberships[connID][room] = struct{}{}
	return true
}

// Leave removes the connection from room. Returns true if it was a member.
func (r *Router) Leave(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(connID, room)
}

func (r *Router) leaveLocked(connID, room string) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if rooms, ok := r.memberships[connID]; ok {
		delete(rooms, room)
	}
	return true
}

// Evict removes every connection from room and returns their ids.
func (r *Router) Evict(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := make([]string, 0, len(r.rooms[room]))
	for connID := range r.rooms[room] {
		if rooms, ok := r.memberships[connID]; ok {
			delete(rooms, room)
		}
		evicted = append(evicted, connID)
	}
	delete(r.rooms, room)
	return evicted
}

// IsMember reports whether the connection is currently joined to room.
func (r *Router) IsMember(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[room][connID]
	return ok
}

// Members returns the number of connections joined to room.
func (r *Router) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[room])
}

// Multicast delivers ev to every connection joined to room except the one with id except.
// Connections not joined receive nothing. Returns the number of connections the event was queued for.
func (r *Router) Multicast(room string, ev Event, except string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id, c := range r.rooms[room] {
		if id == except {
			continue
		}
		if r.deliver(c, ev) {
			delivered++
		}
	}
	return delivered
}

// Unicast delivers ev to a single connection.
func (r *Router) Unicast(connID string, ev Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[connID]
	if !ok {
		return false
	}
	return r.deliver(c, ev)
}

// UnicastWait delivers ev to a single connection, waiting for buffer space until ctx
// is done. It reports false when the connection is unknown or ctx ended first.
func (r *Router) UnicastWait(ctx context.Context, connID string, ev Event) bool {
	r.mu.RLock()
	c, ok := r.clients[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case c.Events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Broadcast delivers ev to every registered connection.
func (r *Router) Broadcast(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.clients {
		r.deliver(c, ev)
	}
}

func (r *Router) deliver(c *Client, ev Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		// Drop if slow consumer; the persisted record stays authoritative.
		r.metrics.EventDropped()
		r.log.Debug().Str("conn_id", c.ID).Int("event_kind", int(ev.Kind())).Msg("dropping event for slow consumer")
		return false
	}
}

package chatclient

import (
	"sort"
	"sync"
	"time"
)

// DefaultTypingTimeout clears an indicator when no update arrived for this long.
const DefaultTypingTimeout = 3 * time.Second

// TypingTracker keeps "is typing" indicators per room. The server never sends a
// stop on behalf of a silent client, so indicators expire locally.
type TypingTracker struct {
	mu      sync.Mutex
	timeout time.Duration
	now     func() time.Time
	rooms   map[string]map[string]time.Time // room -> identity -> last update
}

// NewTypingTracker creates a tracker. A non-positive timeout selects DefaultTypingTimeout.
func NewTypingTracker(timeout time.Duration) *TypingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingTracker{
		timeout: timeout,
		now:     time.Now,
		rooms:   make(map[string]map[string]time.Time),
	}
}

// Apply records a typing update.
func (t *TypingTracker) Apply(room, identity string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	typists, ok := t.rooms[room]
	if !isTyping {
		if ok {
			delete(typists, identity)
		}
		return
	}
	if !ok {
		typists = make(map[string]time.Time)
		t.rooms[room] = typists
	}
	typists[identity] = t.now()
}

// Active returns the identities currently typing in room, sorted. Expired entries are pruned.
func (t *TypingTracker) Active(room string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var active []string
	for identity, seen := range t.rooms[room] {
		if now.Sub(seen) >= t.timeout {
			delete(t.rooms[room], identity)
			continue
		}
		active = append(active, identity)
	}
	if len(t.rooms[room]) == 0 {
		delete(t.rooms, room)
	}
	sort.Strings(active)
	return active
}

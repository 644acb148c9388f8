package core

import "sync"

// Presence maps identities to their single active connection.
// The latest connection for an identity wins. State is process-local and starts empty.
type Presence struct {
	mu     sync.Mutex
	active map[string]string // identity -> connection id
	owners map[string]string // connection id -> identity

	notify func(Event)
}

// NewPresence creates an empty registry. notify, when non-nil, receives every
// presence_update; the hub wires it to a global broadcast.
func NewPresence(notify func(Event)) *Presence {
	return &Presence{
		active: make(map[string]string),
		owners: make(map[string]string),
		notify: notify,
	}
}

// Register points identity at connID, overwriting any earlier connection.
// An online update is emitted only when the identity was offline, so a reconnect
// that overtakes the stale disconnect produces no duplicate.
func (p *Presence) Register(identity, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, wasOnline := p.active[identity]
	p.active[identity] = connID
	p.owners[connID] = identity

	if wasOnline {
		return false
	}
	// Emitted under the lock so updates for one identity leave in mutation order.
	p.emit(PresenceUpdate{Identity: identity, Status: PresenceOnline})
	return true
}

// Unregister forgets connID. The identity is marked offline only if its mapping still
// points at connID; a newer connection is left untouched.
func (p *Presence) Unregister(connID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	identity, ok := p.owners[connID]
	if !ok {
		return "", false
	}
	delete(p.owners, connID)

	if p.active[identity] != connID {
		return identity, false
	}
	delete(p.active, identity)

	p.emit(PresenceUpdate{Identity: identity, Status: PresenceOffline})
	return identity, true
}

// IsOnline reports whether identity has an active connection.
func (p *Presence) IsOnline(identity string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.active[identity]
	return ok
}

// Connection returns the active connection id of identity.
func (p *Presence) Connection(identity string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	connID, ok := p.active[identity]
	return connID, ok
}

func (p *Presence) emit(ev Event) {
	if p.notify != nil {
		p.notify(ev)
	}
}

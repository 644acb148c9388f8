package core

const defaultEventBuffer = 64

// Client is a single connection as seen by the core layer.
type Client struct {
	ID       string // connection id
	Identity string // pre-validated identity supplied by the handshake
	Commands chan Command
	Events   chan Event
}

// NewClient constructs a client with initialized channels.
// A non-positive buffer selects the default event buffer size.
func NewClient(id, identity string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Client{
		ID:       id,
		Identity: identity,
		Commands: make(chan Command, 8),
		Events:   make(chan Event, buffer),
	}
}

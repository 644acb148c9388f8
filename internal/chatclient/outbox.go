// Package chatclient holds the client-side rules for rendering a chat: optimistic sends
// with provisional ids, applying server events to a local timeline, and expiring
// typing indicators.
package chatclient

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/wirechat-server/internal/proto"
)

// DefaultReconcileWindow bounds the clock difference tolerated between a local send and
// the server timestamp of the confirmed record.
const DefaultReconcileWindow = 30 * time.Second

// Pending is a message shown locally before the server confirmed it.
// ProvisionalID is for local display only and never sent to the server.
type Pending struct {
	ProvisionalID string
	Room          string
	Sender        string
	Text          string
	SentAt        time.Time
}

// Outbox tracks unconfirmed sends in send order.
//
// A confirmed receive_message adopts the oldest pending entry with the same sender,
// room and text whose SentAt lies within the window of the server createdAt. The
// provisional entry is discarded and the server record, with its id, replaces it.
type Outbox struct {
	mu      sync.Mutex
	pending []Pending
	window  time.Duration
	now     func() time.Time
}

// NewOutbox creates an outbox. A non-positive window selects DefaultReconcileWindow.
func NewOutbox(window time.Duration) *Outbox {
	if window <= 0 {
		window = DefaultReconcileWindow
	}
	return &Outbox{window: window, now: time.Now}
}

// Add records a local send and returns its provisional entry.
func (o *Outbox) Add(room, sender, text string) Pending {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := Pending{
		ProvisionalID: "local-" + uuid.NewString(),
		Room:          room,
		Sender:        sender,
		Text:          text,
		SentAt:        o.now(),
	}
	o.pending = append(o.pending, p)
	return p
}

// Reconcile matches a server-confirmed message against the pending sends and removes
// the match. It reports false when msg does not confirm any pending send.
func (o *Outbox) Reconcile(msg proto.Message) (Pending, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, p := range o.pending {
		if p.Sender != msg.Sender || p.Room != msg.Room || p.Text != msg.Text {
			continue
		}
		if d := msg.CreatedAt.Sub(p.SentAt).Abs(); d > o.window {
			continue
		}
		o.pending = append(o.pending[:i], o.pending[i+1:]...)
		return p, true
	}
	return Pending{}, false
}

// Discard drops a pending send, e.g. after the server rejected it.
func (o *Outbox) Discard(provisionalID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, p := range o.pending {
		if p.ProvisionalID == provisionalID {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns a copy of the unconfirmed sends, oldest first.
func (o *Outbox) Pending() []Pending {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]Pending(nil), o.pending...)
}

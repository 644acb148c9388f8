package chatclient

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/vovakirdan/wirechat-server/internal/proto"
)

// Status is the tick shown next to a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Entry is one line of a room timeline.
type Entry struct {
	ProvisionalID string // set while the server has not confirmed the message
	Failed        bool   // the server rejected the send
	Message       proto.Message
}

// Confirmed reports whether the entry carries a server-assigned id.
func (e Entry) Confirmed() bool { return e.Message.ID != 0 }

// Status derives the tick from the acknowledgement sets.
func (e Entry) Status() Status {
	switch {
	case e.Failed:
		return StatusFailed
	case !e.Confirmed():
		return StatusPending
	case len(e.Message.ReadBy) > 0:
		return StatusRead
	case len(e.Message.DeliveredTo) > 0:
		return StatusDelivered
	default:
		return StatusSent
	}
}

// Timeline is the local view of the rooms one identity follows. Server events are
// applied by message id; the server record always wins over local state.
type Timeline struct {
	mu     sync.Mutex
	self   string
	outbox *Outbox
	rooms  map[string][]*Entry
}

// NewTimeline creates a timeline for identity self. outbox may be nil.
func NewTimeline(self string, outbox *Outbox) *Timeline {
	if outbox == nil {
		outbox = NewOutbox(0)
	}
	return &Timeline{self: self, outbox: outbox, rooms: make(map[string][]*Entry)}
}

// Send shows text in room right away under a provisional id. The caller sends the
// matching send_message to the server.
func (t *Timeline) Send(room, text string) Pending {
	p := t.outbox.Add(room, t.self, text)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rooms[room] = append(t.rooms[room], &Entry{
		ProvisionalID: p.ProvisionalID,
		Message: proto.Message{
			Room:      room,
			Sender:    t.self,
			Text:      text,
			CreatedAt: p.SentAt,
		},
	})
	t.sortLocked(room)
	return p
}

// FailOldest marks the oldest unconfirmed send as failed. A connection's commands are
// processed in order, so a send_message error answers the oldest pending send.
func (t *Timeline) FailOldest() (Pending, bool) {
	pending := t.outbox.Pending()
	if len(pending) == 0 {
		return Pending{}, false
	}
	p := pending[0]
	t.outbox.Discard(p.ProvisionalID)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.rooms[p.Room] {
		if e.ProvisionalID == p.ProvisionalID {
			e.Failed = true
			break
		}
	}
	return p, true
}

// Discard removes a provisional entry, e.g. a failed send the user dismissed.
func (t *Timeline) Discard(provisionalID string) {
	t.outbox.Discard(provisionalID)

	t.mu.Lock()
	defer t.mu.Unlock()

	for room, entries := range t.rooms {
		for i, e := range entries {
			if e.ProvisionalID == provisionalID && !e.Confirmed() {
				t.rooms[room] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Apply folds a server event into the timeline. Events that do not concern messages
// are ignored.
func (t *Timeline) Apply(event string, data json.RawMessage) error {
	switch event {
	case proto.EventReceiveMessage:
		var msg proto.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		t.upsert(msg)
	case proto.EventMessageEdited, proto.EventReactionUpdate:
		var msg proto.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		t.replace(msg)
	case proto.EventMessageStatusUpdate:
		var status proto.EventMessageStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		t.replace(status.Message)
	case proto.EventMessageDeleted:
		var deleted proto.EventMessageDeletedData
		if err := json.Unmarshal(data, &deleted); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		t.remove(deleted.Room, deleted.MessageID)
	case proto.EventConversationDeleted:
		var deleted proto.EventConversationDeletedData
		if err := json.Unmarshal(data, &deleted); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		t.dropRoom(deleted.ConversationID)
	case proto.EventHistory:
		var history proto.EventHistoryData
		if err := json.Unmarshal(data, &history); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		for _, msg := range history.Messages {
			t.upsert(msg)
		}
	}
	return nil
}

// Entries returns a snapshot of room ordered by createdAt.
func (t *Timeline) Entries(room string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.rooms[room]))
	for _, e := range t.rooms[room] {
		out = append(out, *e)
	}
	return out
}

func (t *Timeline) upsert(msg proto.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.rooms[msg.Room]
	if i := indexByID(entries, msg.ID); i >= 0 {
		entries[i].Message = msg
		return
	}

	if msg.Sender == t.self {
		if p, ok := t.outbox.Reconcile(msg); ok {
			for _, e := range entries {
				if e.ProvisionalID == p.ProvisionalID && !e.Confirmed() {
					e.ProvisionalID = ""
					e.Message = msg
					t.sortLocked(msg.Room)
					return
				}
			}
		}
	}

	t.rooms[msg.Room] = append(entries, &Entry{Message: msg})
	t.sortLocked(msg.Room)
}

// replace updates a known message. Updates for unknown ids are dropped; the next
// history fetch brings them in.
func (t *Timeline) replace(msg proto.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := indexByID(t.rooms[msg.Room], msg.ID); i >= 0 {
		t.rooms[msg.Room][i].Message = msg
	}
}

func (t *Timeline) remove(room string, id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.rooms[room]
	if i := indexByID(entries, id); i >= 0 {
		t.rooms[room] = append(entries[:i], entries[i+1:]...)
	}
}

func (t *Timeline) dropRoom(room string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.rooms, room)
}

func (t *Timeline) sortLocked(room string) {
	entries := t.rooms[room]
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Message, entries[j].Message
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func indexByID(entries []*Entry, id int64) int {
	if id == 0 {
		return -1
	}
	for i, e := range entries {
		if e.Message.ID == id {
			return i
		}
	}
	return -1
}

package core

import (
	"context"
	"testing"

	"github.com/vovakirdan/wirechat-server/internal/store"
)

type engineFixture struct {
	engine   *Engine
	router   *Router
	presence *Presence
	store    *flakyStore
}

func newEngineFixture(t *testing.T, moderators ...string) *engineFixture {
	t.Helper()

	router := NewRouter(nil, nopLogger())
	presence := NewPresence(nil)
	st := &flakyStore{MessageStore: newTestStore(t)}
	return &engineFixture{
		engine:   NewEngine(st, router, presence, NewStaticModerators(moderators), nil, nopLogger()),
		router:   router,
		presence: presence,
		store:    st,
	}
}

func (f *engineFixture) join(identity, connID string, rooms ...string) *Client {
	c := NewClient(connID, identity, 16)
	f.router.Add(c)
	f.presence.Register(identity, connID)
	for _, room := range rooms {
		f.router.Join(connID, room)
	}
	return c
}

func TestEngineSendValidation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		room    string
		content Content
		code    string
	}{
		{name: "missing room", room: "", content: Content{Text: "hi"}, code: ErrCodeBadRequest},
		{name: "empty text", room: "r1", content: Content{Text: "   "}, code: ErrCodeInvalidArgument},
		{name: "unknown reply", room: "r1", content: Content{Text: "hi", ReplyTo: ptr(int64(77))}, code: ErrCodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Send(ctx, "alice", tt.room, tt.content)
			if got := ErrorCode(err); got != tt.code {
				t.Fatalf("expected %s, got %s (%v)", tt.code, got, err)
			}
		})
	}

	if _, err := f.engine.Send(ctx, "alice", "r1", Content{AttachmentRef: "files/cat.png"}); err != nil {
		t.Fatalf("attachment-only message must be accepted: %v", err)
	}
}

func TestEngineReplyMustShareRoom(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	parent, err := f.engine.Send(ctx, "alice", "r1", Content{Text: "question"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := f.engine.Send(ctx, "bob", "r2", Content{Text: "answer", ReplyTo: &parent.ID}); ErrorCode(err) != ErrCodeInvalidArgument {
		t.Fatalf("expected invalid_argument for cross-room reply, got %v", err)
	}

	reply, err := f.engine.Send(ctx, "bob", "r1", Content{Text: "answer", ReplyTo: &parent.ID})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ReplyTo == nil || *reply.ReplyTo != parent.ID {
		t.Fatalf("reply reference lost: %+v", reply)
	}
}

func TestEngineSendOrderingWithinRoom(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	watcher := f.join("watcher", "w", "r1")

	var sent []int64
	for _, text := range []string{"1", "2", "3", "4", "5"} {
		msg, err := f.engine.Send(ctx, "alice", "r1", Content{Text: text})
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		sent = append(sent, msg.ID)
	}

	for i, id := range sent {
		ev := mustEvent[ReceiveMessage](t, watcher.Events)
		if ev.Message.ID != id {
			t.Fatalf("event %d: expected id %d, got %d", i, id, ev.Message.ID)
		}
		if i > 0 && id <= sent[i-1] {
			t.Fatalf("ids must grow with persist order")
		}
	}
}

func TestEngineAcknowledgements(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	bob := f.join("bob", "b", "r1")

	msg, err := f.engine.Send(ctx, "alice", "r1", Content{Text: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	mustEvent[ReceiveMessage](t, bob.Events)

	// Alice's connection is not in r1 but still gets the tick.
	alice := f.join("alice", "a")

	got, err := f.engine.AcknowledgeDelivered(ctx, msg.ID, "bob")
	if err != nil {
		t.Fatalf("ack delivered: %v", err)
	}
	if got.Status() != store.MessageStatusDelivered {
		t.Fatalf("expected delivered, got %s", got.Status())
	}
	if ev := mustEvent[MessageStatusUpdate](t, alice.Events); len(ev.Message.DeliveredTo) != 1 {
		t.Fatalf("unexpected status update: %+v", ev.Message)
	}
	mustEvent[MessageStatusUpdate](t, bob.Events)

	// Acknowledging an own message changes nothing and publishes nothing.
	own, err := f.engine.AcknowledgeRead(ctx, msg.ID, "alice")
	if err != nil {
		t.Fatalf("self ack: %v", err)
	}
	if len(own.ReadBy) != 0 {
		t.Fatalf("self ack must not mark read: %+v", own)
	}
	noEvent[MessageStatusUpdate](t, bob.Events)

	if _, err := f.engine.AcknowledgeRead(ctx, 999, "bob"); ErrorCode(err) != ErrCodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestEngineEditAndDeleteFailures(t *testing.T) {
	f := newEngineFixture(t, "mod")
	ctx := context.Background()
	bob := f.join("bob", "b", "r1")

	msg, err := f.engine.Send(ctx, "alice", "r1", Content{Text: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	mustEvent[ReceiveMessage](t, bob.Events)

	if _, err := f.engine.Edit(ctx, msg.ID, "alice", ""); ErrorCode(err) != ErrCodeInvalidArgument {
		t.Fatalf("expected invalid_argument for empty edit, got %v", err)
	}
	if _, err := f.engine.Edit(ctx, 404, "alice", "x"); ErrorCode(err) != ErrCodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if err := f.engine.Delete(ctx, 404, "alice"); ErrorCode(err) != ErrCodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}

	f.store.down.Store(true)
	if _, err := f.engine.Edit(ctx, msg.ID, "alice", "changed"); ErrorCode(err) != ErrCodeStoreUnavailable {
		t.Fatalf("expected store_unavailable, got %v", err)
	}
	if err := f.engine.Delete(ctx, msg.ID, "mod"); ErrorCode(err) != ErrCodeStoreUnavailable {
		t.Fatalf("expected store_unavailable, got %v", err)
	}
	noEvent[MessageEdited](t, bob.Events)
	noEvent[MessageDeleted](t, bob.Events)

	f.store.down.Store(false)
	current, err := f.store.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("message must survive failed writes: %v", err)
	}
	if current.Text != "hi" || current.Edited {
		t.Fatalf("failed edit leaked into store: %+v", current)
	}
}

func ptr[T any](v T) *T { return &v }

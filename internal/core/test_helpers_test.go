package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/store"
	"github.com/vovakirdan/wirechat-server/internal/store/sqlite"
)

// mustEvent waits for the next event of type T on ch, skipping events of other types.
func mustEvent[T Event](t *testing.T, ch <-chan Event) T {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("expected event %T not received", zero)
			return zero
		}
	}
}

// noEvent asserts that no event of type T arrives on ch within a short window.
func noEvent[T Event](t *testing.T, ch <-chan Event) {
	t.Helper()

	deadline := time.After(150 * time.Millisecond)
	for {
		select {
		case ev := <-ch:
			if _, ok := ev.(T); ok {
				t.Fatalf("unexpected event %+v", ev)
			}
		case <-deadline:
			return
		}
	}
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewMemory()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// connect registers a client for identity and starts its command worker.
func connect(ctx context.Context, hub *Hub, connID, identity string) *Client {
	c := NewClient(connID, identity, 0)
	hub.RegisterClient(c)
	go hub.Serve(ctx, c)
	return c
}

var errStoreDown = errors.New("database is locked")

// flakyStore fails every write while down is set.
type flakyStore struct {
	store.MessageStore
	down atomic.Bool
}

func (f *flakyStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	if f.down.Load() {
		return errStoreDown
	}
	return f.MessageStore.CreateMessage(ctx, msg)
}

func (f *flakyStore) UpdateMessageText(ctx context.Context, id int64, text string) (*store.Message, error) {
	if f.down.Load() {
		return nil, errStoreDown
	}
	return f.MessageStore.UpdateMessageText(ctx, id, text)
}

func (f *flakyStore) DeleteMessage(ctx context.Context, id int64) error {
	if f.down.Load() {
		return errStoreDown
	}
	return f.MessageStore.DeleteMessage(ctx, id)
}

func (f *flakyStore) ToggleReaction(ctx context.Context, id int64, identity, emoji string) (*store.Message, error) {
	if f.down.Load() {
		return nil, errStoreDown
	}
	return f.MessageStore.ToggleReaction(ctx, id, identity, emoji)
}

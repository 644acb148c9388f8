package conversations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/store"
)

// Common errors for conversation operations. They carry domain codes so the
// websocket and REST layers can report them without translation.
var (
	ErrSelfConversation   = &core.CoreError{Code: core.ErrCodeInvalidArgument, Message: "cannot open a conversation with yourself"}
	ErrTooFewParticipants = &core.CoreError{Code: core.ErrCodeInvalidArgument, Message: "a group needs at least two participants"}
	ErrNameRequired       = &core.CoreError{Code: core.ErrCodeInvalidArgument, Message: "group name is required"}
	ErrNotParticipant     = &core.CoreError{Code: core.ErrCodeUnauthorized, Message: "not a participant of this conversation"}
	ErrNotFound           = &core.CoreError{Code: core.ErrCodeNotFound, Message: "conversation not found"}
)

// Service provides conversation management business logic.
type Service struct {
	store store.ConversationStore
}

// New creates a new conversation service.
func New(st store.ConversationStore) *Service {
	return &Service{store: st}
}

// DirectKey returns the order-independent key of the direct conversation between a and b.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}

// FindOrCreateDirect returns the direct conversation between a and b, creating it on first use.
// Concurrent calls for the same pair resolve to the same conversation.
func (s *Service) FindOrCreateDirect(ctx context.Context, a, b string) (*store.Conversation, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return nil, &core.CoreError{Code: core.ErrCodeInvalidArgument, Message: "both identities are required"}
	}
	if a == b {
		return nil, ErrSelfConversation
	}

	key := DirectKey(a, b)
	conv, err := s.store.GetConversationByDirectKey(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, wrap(err)
	}

	conv, err = s.store.CreateDirectConversation(ctx, key, a, b)
	if err != nil {
		return nil, wrap(err)
	}
	return conv, nil
}

// CreateGroup creates a named group. The creator is always a participant.
func (s *Service) CreateGroup(ctx context.Context, creator, name string, participants []string) (*store.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	members := uniqueIdentities(append([]string{creator}, participants...))
	if len(members) < 2 {
		return nil, ErrTooFewParticipants
	}

	conv, err := s.store.CreateGroupConversation(ctx, name, members)
	if err != nil {
		return nil, wrap(err)
	}
	return conv, nil
}

// Get returns a conversation visible to identity.
func (s *Service) Get(ctx context.Context, id, identity string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, wrap(err)
	}
	if !conv.HasParticipant(identity) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// ListFor lists the conversations of identity, most recently active first.
func (s *Service) ListFor(ctx context.Context, identity string) ([]*store.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, identity)
	if err != nil {
		return nil, wrap(err)
	}
	return convs, nil
}

// Delete removes a conversation with all of its messages. Only participants may delete.
func (s *Service) Delete(ctx context.Context, id, requester string) error {
	if _, err := s.Get(ctx, id, requester); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return wrap(err)
	}
	return nil
}

// CanAccess reports whether identity may use room. Rooms that never were conversations
// are open; the id of a deleted conversation is closed to everyone.
func (s *Service) CanAccess(ctx context.Context, room, identity string) (bool, error) {
	conv, err := s.store.GetConversation(ctx, room)
	if errors.Is(err, store.ErrNotFound) {
		deleted, err := s.store.IsConversationDeleted(ctx, room)
		if err != nil {
			return false, wrap(err)
		}
		return !deleted, nil
	}
	if err != nil {
		return false, wrap(err)
	}
	return conv.HasParticipant(identity), nil
}

func wrap(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", core.FromStoreError(err), err)
}

func uniqueIdentities(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

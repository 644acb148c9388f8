package core

import (
	"context"
	"strings"
	"time"

	"github.com/vovakirdan/wirechat-server/internal/store"
)

// ToggleReaction applies identity's emoji to a message: no reaction adds it, the same
// emoji removes it, a different emoji replaces it. An identity never holds two reactions
// on one message; reactions of other identities are untouched.
func (e *Engine) ToggleReaction(ctx context.Context, messageID int64, identity, emoji string) (msg *store.Message, err error) {
	defer e.observe(CommandReact, time.Now(), &err)

	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, errInvalidArgument("emoji is required")
	}

	current, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, FromStoreError(err)
	}
	if !Allowed(OpReact, identity, current, e.mods) {
		return nil, errUnauthorized("not allowed to react")
	}

	unlock := e.rooms.Lock(current.Room)
	defer unlock()

	if err := e.checkAccess(ctx, current.Room, identity); err != nil {
		return nil, err
	}

	msg, err = e.store.ToggleReaction(ctx, messageID, identity, emoji)
	if err != nil {
		e.log.Error().Err(err).Int64("message_id", messageID).Str("identity", identity).Msg("failed to persist reaction")
		return nil, FromStoreError(err)
	}

	e.router.Multicast(msg.Room, ReactionUpdate{Message: msg}, "")
	return msg, nil
}

package core

import "github.com/rs/zerolog"

// TypingBroadcaster relays typing state to the other members of a room.
// Nothing is persisted and no timer runs server-side: receivers clear the indicator
// themselves after a quiet period.
type TypingBroadcaster struct {
	router *Router
	log    *zerolog.Logger
}

func NewTypingBroadcaster(router *Router, logger *zerolog.Logger) *TypingBroadcaster {
	return &TypingBroadcaster{router: router, log: logger}
}

// SetTyping multicasts typing{identity, isTyping} to every connection in room except
// the sender's. Connections that are not joined to room cannot announce typing there;
// such updates are dropped silently.
func (t *TypingBroadcaster) SetTyping(room, identity, connID string, isTyping bool) {
	if room == "" || !t.router.IsMember(connID, room) {
		t.log.Debug().Str("room", room).Str("conn_id", connID).Msg("ignoring typing outside joined room")
		return
	}
	t.router.Multicast(room, Typing{Room: room, Identity: identity, IsTyping: isTyping}, connID)
}

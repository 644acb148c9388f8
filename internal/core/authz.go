package core

import "github.com/vovakirdan/wirechat-server/internal/store"

// Operation is a mutating message operation subject to authorization.
type Operation int

const (
	OpSend Operation = iota
	OpEdit
	OpDelete
	OpReact
)

// ModeratorPolicy decides whether an identity may moderate a room.
type ModeratorPolicy interface {
	IsModerator(identity, room string) bool
}

// StaticModerators grants moderation in every room to a fixed set of identities.
type StaticModerators map[string]struct{}

// NewStaticModerators builds a policy from a list of identities.
func NewStaticModerators(identities []string) StaticModerators {
	m := make(StaticModerators, len(identities))
	for _, id := range identities {
		if id != "" {
			m[id] = struct{}{}
		}
	}
	return m
}

func (m StaticModerators) IsModerator(identity, _ string) bool {
	_, ok := m[identity]
	return ok
}

// Allowed is the single authorization check for mutating operations.
// Room participation for send and react is left to the caller's access layer.
func Allowed(op Operation, actor string, target *store.Message, mods ModeratorPolicy) bool {
	switch op {
	case OpSend, OpReact:
		return actor != ""
	case OpEdit:
		return target != nil && actor != "" && actor == target.Sender
	case OpDelete:
		if target == nil || actor == "" {
			return false
		}
		if actor == target.Sender {
			return true
		}
		return mods != nil && mods.IsModerator(actor, target.Room)
	default:
		return false
	}
}

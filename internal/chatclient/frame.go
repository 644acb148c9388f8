package chatclient

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/wirechat-server/internal/proto"
)

// Frame is an outbound server envelope with its data left undecoded.
type Frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

// Command builds an inbound envelope of type typ around data.
func Command(typ string, data any) (proto.Inbound, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return proto.Inbound{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return proto.Inbound{Type: typ, Data: raw}, nil
}

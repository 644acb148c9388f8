package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-server/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t, newTestConfig())

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Protocol != proto.ProtocolVersion {
		t.Fatalf("unexpected protocol: %d", body.Protocol)
	}
}

func TestWebSocketRejectsMissingOrInvalidToken(t *testing.T) {
	env := startTestServer(t, newTestConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, query := range []string{"", "token=garbage"} {
		_, resp, err := websocket.Dial(ctx, env.wsURL(query), nil)
		if err == nil {
			t.Fatalf("expected dial with %q to fail", query)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %q, got %+v", query, resp)
		}
	}
}

func TestWebSocketAcceptsBearerHeader(t *testing.T) {
	env := startTestServer(t, newTestConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.token(t, "alice"))
	conn, _, err := websocket.Dial(ctx, env.wsURL(""), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	out := expectEvent(t, ctx, conn, proto.EventPresenceUpdate)
	var p proto.EventPresence
	decodeData(t, out, &p)
	if p.Identity != "alice" || p.Status != "online" {
		t.Fatalf("unexpected presence: %+v", p)
	}
}

func TestWebSocketMessageLifecycle(t *testing.T) {
	env := startTestServer(t, newTestConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u1 := env.dial(t, ctx, "U1")
	u2 := env.dial(t, ctx, "U2")
	join(t, ctx, u1, "r1")
	join(t, ctx, u2, "r1")

	send(t, ctx, u1, proto.InboundTypeSendMessage, proto.SendMessageData{
		Room:    "r1",
		Message: proto.MessageContent{Text: "hi"},
	})

	var received proto.Message
	decodeData(t, expectEvent(t, ctx, u2, proto.EventReceiveMessage), &received)
	if received.Text != "hi" || received.Sender != "U1" || received.ID == 0 {
		t.Fatalf("unexpected message: %+v", received)
	}
	if len(received.DeliveredTo) != 0 || len(received.ReadBy) != 0 || received.Reactions == nil {
		t.Fatalf("expected materialized empty sets: %+v", received)
	}

	send(t, ctx, u2, proto.InboundTypeMessageRead, proto.AckData{MessageID: received.ID, Identity: "U2"})

	var status proto.EventMessageStatus
	decodeData(t, expectEvent(t, ctx, u1, proto.EventMessageStatusUpdate), &status)
	if len(status.ReadBy) != 1 || status.ReadBy[0] != "U2" || status.Status != "read" {
		t.Fatalf("unexpected status update: %+v", status)
	}

	send(t, ctx, u1, proto.InboundTypeEditMessage, proto.EditMessageData{Room: "r1", MessageID: received.ID, Text: "hello"})

	var edited proto.Message
	decodeData(t, expectEvent(t, ctx, u2, proto.EventMessageEdited), &edited)
	if edited.Text != "hello" || !edited.Edited || !edited.CreatedAt.Equal(received.CreatedAt) {
		t.Fatalf("unexpected edit: %+v", edited)
	}

	send(t, ctx, u2, proto.InboundTypeReact, proto.ReactData{Room: "r1", MessageID: received.ID, Emoji: "👍"})

	var reacted proto.Message
	decodeData(t, expectEvent(t, ctx, u1, proto.EventReactionUpdate), &reacted)
	if len(reacted.Reactions) != 1 || reacted.Reactions[0].Identity != "U2" {
		t.Fatalf("unexpected reactions: %+v", reacted.Reactions)
	}

	send(t, ctx, u1, proto.InboundTypeDeleteMessage, proto.DeleteMessageData{Room: "r1", MessageID: received.ID})

	var deleted proto.EventMessageDeletedData
	decodeData(t, expectEvent(t, ctx, u2, proto.EventMessageDeleted), &deleted)
	if deleted.MessageID != received.ID || deleted.Room != "r1" {
		t.Fatalf("unexpected delete: %+v", deleted)
	}
}

func TestWebSocketTypingAndErrors(t *testing.T) {
	env := startTestServer(t, newTestConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u1 := env.dial(t, ctx, "U1")
	u2 := env.dial(t, ctx, "U2")
	join(t, ctx, u1, "r1")
	join(t, ctx, u2, "r1")

	send(t, ctx, u1, proto.InboundTypeTyping, proto.TypingData{Room: "r1", Identity: "U1", IsTyping: true})

	var typing proto.EventTypingData
	decodeData(t, expectEvent(t, ctx, u2, proto.EventTyping), &typing)
	if typing.Identity != "U1" || !typing.IsTyping {
		t.Fatalf("unexpected typing: %+v", typing)
	}

	// Impersonation is rejected before it reaches the core.
	send(t, ctx, u1, proto.InboundTypeMessageRead, proto.AckData{MessageID: 1, Identity: "U2"})
	out := expectEvent(t, ctx, u1, proto.EventErrorMessage)
	if out.Type != proto.OutboundTypeError || out.Error == nil || out.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized error, got %+v", out)
	}

	send(t, ctx, u1, proto.InboundTypeEditMessage, proto.EditMessageData{Room: "r1", MessageID: 404, Text: "x"})
	out = expectEvent(t, ctx, u1, proto.EventErrorMessage)
	if out.Error == nil || out.Error.Code != "not_found" || out.Error.Op != proto.InboundTypeEditMessage {
		t.Fatalf("expected not_found error, got %+v", out)
	}

	if err := wsjson.Write(ctx, u1, proto.Inbound{Type: "bogus"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	out = expectEvent(t, ctx, u1, proto.EventErrorMessage)
	if out.Error == nil || out.Error.Code != "invalid_message" {
		t.Fatalf("expected invalid_message error, got %+v", out)
	}
}

func TestWebSocketOpenDirect(t *testing.T) {
	env := startTestServer(t, newTestConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dial(t, ctx, "alice")
	mallory := env.dial(t, ctx, "mallory")

	send(t, ctx, alice, proto.InboundTypeOpenDirect, proto.OpenDirectData{Peer: "bob"})

	var conv proto.Conversation
	decodeData(t, expectEvent(t, ctx, alice, proto.EventConversationOpened), &conv)
	if conv.IsGroup || len(conv.Participants) != 2 {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	expectEvent(t, ctx, alice, proto.EventHistory)

	send(t, ctx, mallory, proto.InboundTypeJoinRoom, proto.RoomData{Room: conv.ID})
	out := expectEvent(t, ctx, mallory, proto.EventErrorMessage)
	if out.Error == nil || out.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized join, got %+v", out)
	}

	send(t, ctx, alice, proto.InboundTypeOpenDirect, proto.OpenDirectData{Peer: "alice"})
	out = expectEvent(t, ctx, alice, proto.EventErrorMessage)
	if out.Error == nil || out.Error.Code != "invalid_argument" {
		t.Fatalf("expected invalid_argument, got %+v", out)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	cfg := newTestConfig()
	cfg.RateLimitPerSecond = 0.001
	cfg.RateLimitBurst = 1
	env := startTestServer(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx, "alice")
	join(t, ctx, conn, "r1")

	send(t, ctx, conn, proto.InboundTypeJoinRoom, proto.RoomData{Room: "r2"})
	out := expectEvent(t, ctx, conn, proto.EventErrorMessage)
	if out.Error == nil || out.Error.Code != "rate_limited" {
		t.Fatalf("expected rate_limited, got %+v", out)
	}
}

func TestProtocolVersionMismatch(t *testing.T) {
	env := startTestServer(t, newTestConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL("protocol=1&token="+env.token(t, "alice")), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	out := readOutbound(t, ctx, conn)
	if out.Type != proto.OutboundTypeError || out.Error == nil || out.Error.Code != "unsupported_version" {
		t.Fatalf("expected unsupported_version error, got %+v", out)
	}
}

func TestWebSocketConversationDeletedClosesRoom(t *testing.T) {
	env := startTestServer(t, newTestConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dial(t, ctx, "alice")
	bob := env.dial(t, ctx, "bob")

	send(t, ctx, alice, proto.InboundTypeOpenDirect, proto.OpenDirectData{Peer: "bob"})
	var conv proto.Conversation
	decodeData(t, expectEvent(t, ctx, alice, proto.EventConversationOpened), &conv)
	expectEvent(t, ctx, alice, proto.EventHistory)

	send(t, ctx, bob, proto.InboundTypeJoinRoom, proto.RoomData{Room: conv.ID})
	expectEvent(t, ctx, bob, proto.EventHistory)

	if resp := env.request(t, http.MethodDelete, "/api/conversations/"+conv.ID, "alice", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete conversation: status %d", resp.StatusCode)
	}

	for _, conn := range []*websocket.Conn{alice, bob} {
		var deleted proto.EventConversationDeletedData
		decodeData(t, expectEvent(t, ctx, conn, proto.EventConversationDeleted), &deleted)
		if deleted.ConversationID != conv.ID {
			t.Fatalf("unexpected conversation_deleted: %+v", deleted)
		}
	}

	send(t, ctx, bob, proto.InboundTypeSendMessage, proto.SendMessageData{
		Room:    conv.ID,
		Message: proto.MessageContent{Text: "still here?"},
	})
	out := expectEvent(t, ctx, bob, proto.EventErrorMessage)
	if out.Error == nil || out.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized send, got %+v", out)
	}

	for _, identity := range []string{"bob", "mallory"} {
		if resp := env.request(t, http.MethodGet, "/api/rooms/"+conv.ID+"/messages", identity, nil); resp.StatusCode != http.StatusForbidden {
			t.Fatalf("history for %s after delete: status %d", identity, resp.StatusCode)
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-server/internal/auth"
	"github.com/vovakirdan/wirechat-server/internal/chatclient"
	"github.com/vovakirdan/wirechat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run connects, joins a room, sends one message and waits for its echo.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	identity := flag.String("identity", "tester", "identity to connect as")
	secret := flag.String("secret", "", "JWT secret used to mint a token")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *secret == "" {
		return errors.New("-secret is required")
	}
	token, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte(*secret), Issuer: "wirechat", Audience: "wirechat", TTL: time.Minute}, *identity, "")
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr+"?token="+url.QueryEscape(token), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		in, err := chatclient.Command(typ, data)
		if err != nil {
			return err
		}
		if err := wsjson.Write(ctx, conn, in); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeJoinRoom, proto.RoomData{Room: *room}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeSendMessage, proto.SendMessageData{Room: *room, Message: proto.MessageContent{Text: *text}}); err != nil {
		return err
	}

	for {
		var frame chatclient.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("Received outbound: type=%s event=%s\n", frame.Type, frame.Event)

		if frame.Error != nil {
			return fmt.Errorf("server error on %s: %s (%s)", frame.Error.Op, frame.Error.Msg, frame.Error.Code)
		}
		if frame.Event != proto.EventReceiveMessage {
			continue
		}

		var msg proto.Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return fmt.Errorf("unmarshal message: %w", err)
		}
		fmt.Printf("Message: id=%d room=%s sender=%s text=%q at=%s\n", msg.ID, msg.Room, msg.Sender, msg.Text, msg.CreatedAt.Format(time.RFC3339))
		if msg.Sender == *identity && msg.Text == *text {
			return nil
		}
	}
}

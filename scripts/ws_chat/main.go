package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-server/internal/auth"
	"github.com/vovakirdan/wirechat-server/internal/chatclient"
	"github.com/vovakirdan/wirechat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	identity := flag.String("identity", "cli-user", "identity to connect as")
	token := flag.String("token", "", "bearer token; minted from -secret when empty")
	secret := flag.String("secret", "", "JWT secret used to mint a token")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	if *token == "" {
		if *secret == "" {
			return errors.New("either -token or -secret is required")
		}
		minted, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte(*secret), Issuer: "wirechat", Audience: "wirechat", TTL: time.Hour}, *identity, *identity)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
		*token = minted
	}

	target, err := url.Parse(*addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}
	q := target.Query()
	q.Set("token", *token)
	q.Set("protocol", fmt.Sprint(proto.ProtocolVersion))
	target.RawQuery = q.Encode()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, target.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	c := &chatClient{
		conn:     conn,
		self:     *identity,
		room:     *room,
		timeline: chatclient.NewTimeline(*identity, nil),
		typing:   chatclient.NewTypingTracker(0),
	}
	if err := c.send(ctx, proto.InboundTypeJoinRoom, proto.RoomData{Room: *room}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *identity, *room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		c.readLoop(ctx)
	}()

	c.writeLoop(ctx)
	return nil
}

type chatClient struct {
	conn     *websocket.Conn
	self     string
	room     string
	timeline *chatclient.Timeline
	typing   *chatclient.TypingTracker
}

func (c *chatClient) send(ctx context.Context, typ string, data any) error {
	in, err := chatclient.Command(typ, data)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, c.conn, in); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func (c *chatClient) readLoop(ctx context.Context) {
	for {
		var frame chatclient.Frame
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if frame.Type == proto.OutboundTypeError && frame.Error != nil {
			fmt.Printf("! %s (%s): %s\n", frame.Error.Op, frame.Error.Code, frame.Error.Msg)
			if frame.Error.Op == proto.InboundTypeSendMessage {
				if p, ok := c.timeline.FailOldest(); ok {
					fmt.Printf("  not sent: %q\n", p.Text)
				}
			}
			continue
		}
		if err := c.timeline.Apply(frame.Event, frame.Data); err != nil {
			log.Printf("apply %s: %v", frame.Event, err)
			continue
		}
		c.render(ctx, frame)
	}
}

func (c *chatClient) render(ctx context.Context, frame chatclient.Frame) {
	switch frame.Event {
	case proto.EventReceiveMessage:
		var msg proto.Message
		if err := decode(frame, &msg); err != nil {
			return
		}
		fmt.Printf("[%s] #%d %s: %s\n", msg.Room, msg.ID, msg.Sender, msg.Text)
		if msg.Sender != c.self {
			if err := c.send(ctx, proto.InboundTypeMessageRead, proto.AckData{MessageID: msg.ID}); err != nil {
				log.Printf("ack: %v", err)
			}
		}
	case proto.EventHistory:
		for _, e := range c.timeline.Entries(c.room) {
			fmt.Printf("[%s] #%d %s: %s\n", c.room, e.Message.ID, e.Message.Sender, e.Message.Text)
		}
	case proto.EventMessageStatusUpdate:
		var status proto.EventMessageStatus
		if err := decode(frame, &status); err != nil {
			return
		}
		fmt.Printf("  #%d %s\n", status.ID, status.Status)
	case proto.EventTyping:
		var typing proto.EventTypingData
		if err := decode(frame, &typing); err != nil {
			return
		}
		c.typing.Apply(typing.Room, typing.Identity, typing.IsTyping)
		if active := c.typing.Active(typing.Room); len(active) > 0 {
			fmt.Printf("  %s typing...\n", strings.Join(active, ", "))
		}
	case proto.EventPresenceUpdate:
		var presence proto.EventPresence
		if err := decode(frame, &presence); err != nil {
			return
		}
		fmt.Printf("* %s is %s\n", presence.Identity, presence.Status)
	default:
		fmt.Printf("event=%s data=%s\n", frame.Event, frame.Data)
	}
}

func (c *chatClient) writeLoop(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			c.timeline.Send(c.room, text)
			data := proto.SendMessageData{Room: c.room, Message: proto.MessageContent{Text: text}}
			if err := c.send(ctx, proto.InboundTypeSendMessage, data); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

func decode(frame chatclient.Frame, v any) error {
	if err := json.Unmarshal(frame.Data, v); err != nil {
		log.Printf("decode %s: %v", frame.Event, err)
		return err
	}
	return nil
}

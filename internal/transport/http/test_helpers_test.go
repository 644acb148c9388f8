package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/auth"
	"github.com/vovakirdan/wirechat-server/internal/config"
	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/metrics"
	"github.com/vovakirdan/wirechat-server/internal/proto"
	"github.com/vovakirdan/wirechat-server/internal/service/conversations"
	"github.com/vovakirdan/wirechat-server/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	auth  *auth.Service
	convs *conversations.Service
	reg   *prometheus.Registry
}

func newTestConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	cfg.JWTSecret = testSecret
	cfg.JWTIssuer = "test"
	cfg.JWTAudience = "test"
	return cfg
}

// startTestServer wires an in-memory store, hub and HTTP server.
func startTestServer(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()

	st, err := sqlite.NewMemory()
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	disabledLogger := zerolog.Nop()
	reg := prometheus.NewRegistry()

	convs := conversations.New(st)
	hub := core.NewHub(st, convs, core.Options{
		Moderators:   cfg.Moderators,
		HistoryLimit: cfg.HistoryLimit,
		Metrics:      metrics.New(reg),
	}, &disabledLogger)

	authService := auth.NewService(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	server := NewServer(hub, authService, convs, reg, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, auth: authService, convs: convs, reg: reg}
}

func (e *testEnv) token(t *testing.T, identity string) string {
	t.Helper()

	token, err := e.auth.IssueToken(identity, "")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) wsURL(query string) string {
	u := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

// dial opens a websocket for identity and waits for its own online presence so the
// connection is registered before the test proceeds.
func (e *testEnv) dial(t *testing.T, ctx context.Context, identity string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL("token="+e.token(t, identity)), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", identity, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	for {
		out := readOutbound(t, ctx, conn)
		if out.Event != proto.EventPresenceUpdate {
			continue
		}
		var p proto.EventPresence
		decodeData(t, out, &p)
		if p.Identity == identity && p.Status == "online" {
			return conn
		}
	}
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readOutbound(t *testing.T, ctx context.Context, conn *websocket.Conn) rawOutbound {
	t.Helper()

	var out rawOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	return out
}

// expectEvent reads until an outbound with the given event name arrives.
func expectEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) rawOutbound {
	t.Helper()

	for {
		out := readOutbound(t, ctx, conn)
		if out.Event == event {
			return out
		}
	}
}

func decodeData(t *testing.T, out rawOutbound, v any) {
	t.Helper()

	if err := json.Unmarshal(out.Data, v); err != nil {
		t.Fatalf("unmarshal %s data: %v", out.Event, err)
	}
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

func join(t *testing.T, ctx context.Context, conn *websocket.Conn, room string) {
	t.Helper()

	send(t, ctx, conn, proto.InboundTypeJoinRoom, proto.RoomData{Room: room})
	expectEvent(t, ctx, conn, proto.EventHistory)
}

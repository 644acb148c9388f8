package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/proto"
)

func (e *testEnv) request(t *testing.T, method, path, identity string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, identity))
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestRoomHistory(t *testing.T) {
	env := startTestServer(t, newTestConfig())
	ctx := context.Background()

	var ids []int64
	for _, text := range []string{"one", "two", "three"} {
		msg, err := env.hub.Engine().Send(ctx, "alice", "general", core.Content{Text: text})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	resp := env.request(t, http.MethodGet, "/api/rooms/general/messages", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page HistoryResponse
	decodeBody(t, resp, &page)
	require.Len(t, page.Messages, 3)
	require.Equal(t, "one", page.Messages[0].Text)
	require.Equal(t, "three", page.Messages[2].Text)

	resp = env.request(t, http.MethodGet, "/api/rooms/general/messages?limit=1&before="+itoa(ids[2]), "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &page)
	require.Len(t, page.Messages, 1)
	require.Equal(t, "two", page.Messages[0].Text)

	resp = env.request(t, http.MethodGet, "/api/rooms/general/messages?limit=abc", "bob", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/rooms/general/messages", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConversationEndpoints(t *testing.T) {
	env := startTestServer(t, newTestConfig())
	ctx := context.Background()

	resp := env.request(t, http.MethodPost, "/api/conversations/direct", "alice", OpenDirectRequest{Peer: "bob"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var direct proto.Conversation
	decodeBody(t, resp, &direct)
	require.False(t, direct.IsGroup)

	resp = env.request(t, http.MethodPost, "/api/conversations/direct", "bob", OpenDirectRequest{Peer: "alice"})
	var again proto.Conversation
	decodeBody(t, resp, &again)
	require.Equal(t, direct.ID, again.ID, "direct conversation must be reused for the pair")

	resp = env.request(t, http.MethodPost, "/api/conversations/group", "alice", CreateGroupRequest{Name: "solo"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errResp ErrorResponse
	decodeBody(t, resp, &errResp)
	require.Equal(t, core.ErrCodeInvalidArgument, errResp.Code)

	resp = env.request(t, http.MethodPost, "/api/conversations/group", "alice", CreateGroupRequest{Name: "team", Participants: []string{"bob", "carol"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var group proto.Conversation
	decodeBody(t, resp, &group)
	require.True(t, group.IsGroup)
	require.ElementsMatch(t, []string{"alice", "bob", "carol"}, group.Participants)

	_, err := env.hub.Engine().Send(ctx, "bob", group.ID, core.Content{Text: "hey team"})
	require.NoError(t, err)

	resp = env.request(t, http.MethodGet, "/api/conversations", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []proto.Conversation
	decodeBody(t, resp, &list)
	require.Len(t, list, 2)
	require.Equal(t, group.ID, list[0].ID, "most recently active first")
	require.NotNil(t, list[0].LastMessageID)

	resp = env.request(t, http.MethodGet, "/api/rooms/"+group.ID+"/messages", "mallory", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/conversations/"+group.ID, "mallory", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodDelete, "/api/conversations/"+group.ID, "mallory", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodDelete, "/api/conversations/"+group.ID, "carol", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/conversations/"+group.ID, "carol", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	history, err := env.hub.Engine().History(ctx, group.ID, 10, nil)
	require.NoError(t, err)
	require.Empty(t, history, "messages must be deleted with their conversation")
}

func TestMetricsEndpoint(t *testing.T) {
	env := startTestServer(t, newTestConfig())

	_, err := env.hub.Engine().Send(context.Background(), "alice", "general", core.Content{Text: "hi"})
	require.NoError(t, err)

	resp, err := env.ts.Client().Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "wirechat_operations_total")
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestCORSPreflight(t *testing.T) {
	cfg := newTestConfig()
	cfg.CORSOrigins = []string{"http://localhost:5173"}
	env := startTestServer(t, cfg)

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/api/conversations", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")

	resp, err := env.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.example")
	resp, err = env.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/auth"
	"github.com/vovakirdan/wirechat-server/internal/config"
	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/proto"
	"github.com/vovakirdan/wirechat-server/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
// The identity is taken from the bearer token presented with the upgrade request.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	cfg  *config.Config
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token, ok := bearerToken(r)
	if !ok {
		stdhttp.Error(w, "missing token", stdhttp.StatusUnauthorized)
		return
	}
	identity, err := h.auth.Authenticate(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws handshake rejected")
		stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.cfg.OriginPatterns,
		InsecureSkipVerify: len(h.cfg.OriginPatterns) == 0,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if raw := r.URL.Query().Get("protocol"); raw != "" {
		if v, err := strconv.Atoi(raw); err != nil || v != proto.ProtocolVersion {
			_ = wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Event: proto.EventErrorMessage,
				Error: &proto.Error{Code: "unsupported_version", Msg: "unsupported protocol version"},
			})
			conn.Close(websocket.StatusPolicyViolation, "unsupported protocol version")
			return
		}
	}

	client := core.NewClient(utils.NewID(), identity, h.cfg.EventBuffer)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	go h.hub.Serve(ctx, client)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerSecond, h.cfg.RateLimitBurst)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("read ws inbound")
			return err
		}

		if !limiter.allow() {
			if err := writeProtoError(ctx, conn, inbound.Type, &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many messages"}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(client, inbound)
		if protoErr != nil {
			h.log.Debug().Str("conn_id", client.ID).Str("op", inbound.Type).Str("code", protoErr.Code).Msg("rejected inbound")
			if err := writeProtoError(ctx, conn, inbound.Type, protoErr); err != nil {
				return err
			}
			continue
		}
		h.hub.Submit(ctx, client, cmd)
	}
}

func writeProtoError(ctx context.Context, conn *websocket.Conn, op string, perr *proto.Error) error {
	perr.Op = op
	return wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Event: proto.EventErrorMessage,
		Error: perr,
	})
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

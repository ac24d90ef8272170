package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/vovakirdan/connectus-realtime/internal/core"
	"github.com/vovakirdan/connectus-realtime/internal/proto"
)

// statusSuperseded closes a connection replaced by a newer one of the same user.
const statusSuperseded = websocket.StatusCode(4001)

// WSOptions tunes per-connection limits.
type WSOptions struct {
	MaxMessageBytes   int64
	SendBuffer        int
	CommandsPerMinute int
}

// WSHandler authenticates, upgrades and bridges connections to the hub.
type WSHandler struct {
	hub  *core.Hub
	opts WSOptions
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, opts: opts, log: logger}
}

// credentialFromRequest reads the token from the access_token query
// parameter, which browsers must use for websockets, or the Authorization header.
func credentialFromRequest(r *stdhttp.Request) string {
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	// Nothing is registered until the upgrade succeeds, so a plain GET with
	// a valid token cannot displace the user's live connection.
	userID, err := h.hub.Authenticate(r.Context(), credentialFromRequest(r))
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws connect rejected")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stdhttp.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "unauthorized"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Debug().Err(err).Int64("user_id", userID).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	sink := newWSSink(h.opts.SendBuffer)
	defer sink.Close("disconnected")

	session, err := h.hub.Establish(r.Context(), userID, sink)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("ws establish error")
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	// Disconnect must run even when the request context is already gone.
	cleanupCtx := context.WithoutCancel(r.Context())
	defer h.hub.Disconnect(cleanupCtx, session)

	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	limiter := newRateLimiter(h.opts.CommandsPerMinute, time.Minute)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, sink, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session, sink)
	}()

	err = <-errCh
	status, reason := h.closeStatus(err, session, sink)
	_ = conn.Close(status, reason)
	cancel() // stop the other goroutine
	<-errCh
}

func (h *WSHandler) closeStatus(err error, session *core.Session, sink *wsSink) (websocket.StatusCode, string) {
	if errors.Is(err, core.ErrConnectionClosed) {
		reason := sink.closeReason()
		if reason == "superseded" {
			return statusSuperseded, reason
		}
		return websocket.StatusNormalClosure, reason
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return status, reason
	}
	if s := websocket.CloseStatus(err); s != -1 {
		status = s
	}
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return status, reason
	}
	if status == websocket.StatusMessageTooBig {
		return status, "message too big"
	}

	h.log.Warn().Err(err).Str("conn_id", session.ID()).Msg("ws connection closed with error")
	return websocket.StatusInternalError, "internal error"
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, sink *wsSink, limiter *rateLimiter) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		frame, protoErr := parseInbound(typ, data)
		if protoErr == nil && !limiter.allow() {
			protoErr = &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many commands"}
		}
		if protoErr == nil {
			var cmd *core.Command
			cmd, protoErr = inboundToCommand(frame)
			if protoErr == nil {
				protoErr = errorFromCore(h.hub.Handle(ctx, session, cmd))
			}
		}

		if protoErr != nil {
			h.log.Debug().
				Str("conn_id", session.ID()).
				Str("type", frame.Type).
				Str("code", protoErr.Code).
				Msg("command rejected")
			if err := sink.pushError(protoErr); errors.Is(err, core.ErrConnectionClosed) {
				return err
			}
		}
	}
}

// parseInbound peeks the frame type without decoding the payload, which is
// decoded later against the concrete command shape.
func parseInbound(typ websocket.MessageType, data []byte) (proto.Inbound, *proto.Error) {
	if typ != websocket.MessageText || !gjson.ValidBytes(data) {
		return proto.Inbound{}, badRequest("expected a JSON text frame")
	}
	kind := gjson.GetBytes(data, "type")
	if kind.Type != gjson.String || kind.Str == "" {
		return proto.Inbound{}, badRequest("type is required")
	}
	inbound := proto.Inbound{Type: kind.Str}
	if raw := gjson.GetBytes(data, "data"); raw.Exists() {
		inbound.Data = json.RawMessage(raw.Raw)
	}
	return inbound, nil
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, sink *wsSink) error {
	for {
		select {
		case frame := <-sink.out:
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Error().Err(err).Str("conn_id", session.ID()).Msg("write ws frame")
				return err
			}
		case <-sink.done:
			// Frames pushed before the close still go out ahead of the close frame.
			err := sink.drain(func(frame proto.Outbound) error {
				return wsjson.Write(ctx, conn, frame)
			})
			if err != nil {
				h.log.Debug().Err(err).Str("conn_id", session.ID()).Msg("flush ws frames on close")
			}
			return core.ErrConnectionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"slices"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/commhub-server/internal/auth"
	"github.com/vovakirdan/commhub-server/internal/core"
	"github.com/vovakirdan/commhub-server/internal/proto"
)

// readOverhead is allowed on top of the text limit for the envelope and the
// other payload fields.
const readOverhead = 16 << 10

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub             Hub
	auth            *auth.Service
	jwtRequired     bool
	maxMessageBytes int
	ratePerMinute   int
	originPatterns  []string
	log             *zerolog.Logger
}

// WSOptions configures a WSHandler.
type WSOptions struct {
	// Auth validates add-user tokens. Without it tokens are ignored.
	Auth               *auth.Service
	JWTRequired        bool
	MaxMessageBytes    int
	RateLimitPerMinute int
	AllowedOrigins     []string
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub Hub, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:             hub,
		auth:            opts.Auth,
		jwtRequired:     opts.JWTRequired,
		maxMessageBytes: opts.MaxMessageBytes,
		ratePerMinute:   opts.RateLimitPerMinute,
		originPatterns:  opts.AllowedOrigins,
		log:             logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	acceptOpts := &websocket.AcceptOptions{OriginPatterns: h.originPatterns}
	if len(h.originPatterns) == 0 || slices.Contains(h.originPatterns, "*") {
		acceptOpts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	conn, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(int64(h.maxMessageBytes) + readOverhead)
	}

	client := core.NewClient(uuid.NewString(), "")
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

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
			reason = "read error"
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newConnLimiter(h.ratePerMinute)
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("read ws inbound")
			return err
		}

		cmd, protoErr := h.decode(inbound, limiter)
		if protoErr != nil {
			if err := wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr}); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) decode(inbound proto.Inbound, limiter *rate.Limiter) (*core.Command, *proto.Error) {
	if !allow(limiter) {
		return nil, &proto.Error{Code: "rate_limited", Msg: "too many messages"}
	}
	if inbound.Type != proto.InboundTypeAddUser {
		return inboundToCommand(inbound)
	}
	var data proto.AddUserData
	if err := json.Unmarshal(inbound.Data, &data); err != nil {
		return nil, badRequest("invalid add-user payload")
	}
	return h.authorize(data)
}

// authorize checks the protocol version and, when a token is present or
// required, binds the identity to the token's subject.
func (h *WSHandler) authorize(data proto.AddUserData) (*core.Command, *proto.Error) {
	if data.Protocol != 0 && data.Protocol != proto.ProtocolVersion {
		return nil, &proto.Error{Code: core.ErrCodeUnsupportedVersion, Msg: "unsupported protocol version"}
	}

	cmd := &core.Command{Kind: core.CommandAddUser, User: data.User, Name: data.Name, Avatar: data.Avatar}
	if data.Token == "" {
		if h.jwtRequired {
			return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token is required"}
		}
		return cmd, nil
	}
	if h.auth == nil {
		return cmd, nil
	}

	claims, err := h.auth.ValidateToken(data.Token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}
	}
	if cmd.User != "" && cmd.User != claims.UserID() {
		return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token does not match user"}
	}
	cmd.User = claims.UserID()
	if cmd.Name == "" {
		cmd.Name = claims.Username
	}
	return cmd, nil
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case ev, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(ev)); err != nil {
				h.log.Debug().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/commhub-server/internal/proto"
)

// Conn is a websocket connection speaking the chat protocol.
type Conn struct {
	ws *websocket.Conn
}

// Dial connects to the websocket endpoint, e.g. "ws://localhost:8080/ws".
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// Send writes one inbound frame. It is safe for concurrent use.
func (c *Conn) Send(ctx context.Context, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	return wsjson.Write(ctx, c.ws, proto.Inbound{Type: typ, Data: raw})
}

// AddUser binds the connection to the identity carried by token.
func (c *Conn) AddUser(ctx context.Context, user, token string) error {
	return c.Send(ctx, proto.InboundTypeAddUser, proto.AddUserData{
		User:     user,
		Token:    token,
		Protocol: proto.ProtocolVersion,
	})
}

// Read blocks for the next frame.
func (c *Conn) Read(ctx context.Context) (proto.RawOutbound, error) {
	var out proto.RawOutbound
	if err := wsjson.Read(ctx, c.ws, &out); err != nil {
		return proto.RawOutbound{}, err
	}
	return out, nil
}

// Close closes the connection normally.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}

// Closed reports whether err means the peer closed the connection normally.
func Closed(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/commhub-server/internal/auth"
	"github.com/vovakirdan/commhub-server/internal/config"
	"github.com/vovakirdan/commhub-server/internal/core"
	"github.com/vovakirdan/commhub-server/internal/proto"
	"github.com/vovakirdan/commhub-server/internal/service/channels"
	"github.com/vovakirdan/commhub-server/internal/service/messages"
	"github.com/vovakirdan/commhub-server/internal/store/sqlite"
)

type testEnv struct {
	ts   *httptest.Server
	hub  *core.Hub
	auth *auth.Service
	cfg  config.Config
}

// newTestEnv wires an in-memory store, the services and a running hub behind
// an httptest server.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	chans := channels.New(st)
	msgs := messages.New(st, chans, cfg.HistoryLimit, cfg.MaxMessageBytes)

	hub := core.NewHub(msgs, chans, core.WithMaxMessageBytes(cfg.MaxMessageBytes))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	disabledLogger := zerolog.Nop()
	server := NewServer(hub, Services{Auth: authService, Store: st, Channels: chans, Messages: msgs}, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, auth: authService, cfg: cfg}
}

// register creates a user and returns its token and id.
func (e *testEnv) register(t *testing.T, username string) (string, string) {
	t.Helper()
	token, user, err := e.auth.Register(context.Background(), username, "", "password123")
	if err != nil {
		t.Fatalf("failed to register %s: %v", username, err)
	}
	return token, user.ID
}

// do performs a JSON request and decodes the response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// readUntil reads frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(proto.RawOutbound) bool) proto.RawOutbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var out proto.RawOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read outbound: %v", err)
		}
		if match(out) {
			return out
		}
	}
}

// readEvent skips frames until the named event arrives.
func readEvent(t *testing.T, conn *websocket.Conn, name string) proto.RawOutbound {
	t.Helper()
	return readUntil(t, conn, func(o proto.RawOutbound) bool {
		return o.Type == proto.OutboundTypeEvent && o.Event == name
	})
}

// readError skips events until an error frame arrives.
func readError(t *testing.T, conn *websocket.Conn) *proto.Error {
	t.Helper()
	out := readUntil(t, conn, func(o proto.RawOutbound) bool {
		return o.Type == proto.OutboundTypeError
	})
	if out.Error == nil {
		t.Fatal("error frame without error body")
	}
	return out.Error
}

// addUser binds conn to the token's identity and waits until the hub has
// registered it.
func addUser(t *testing.T, conn *websocket.Conn, token, id string) {
	t.Helper()
	send(t, conn, proto.InboundTypeAddUser, proto.AddUserData{Token: token, Protocol: proto.ProtocolVersion})
	readUntil(t, conn, func(o proto.RawOutbound) bool {
		if o.Event != proto.EventOnlineUsers {
			return false
		}
		var online []string
		_ = json.Unmarshal(o.Data, &online)
		for _, u := range online {
			if u == id {
				return true
			}
		}
		return false
	})
}

// barrier sends a command the hub rejects and waits for the rejection. Per
// connection order guarantees everything sent earlier has been dispatched.
// Events other than errors are returned.
func barrier(t *testing.T, conn *websocket.Conn) []proto.RawOutbound {
	t.Helper()
	send(t, conn, proto.InboundTypeSendMsg, proto.SendData{To: "nobody", Msg: proto.Payload{Type: "text"}})
	var seen []proto.RawOutbound
	readUntil(t, conn, func(o proto.RawOutbound) bool {
		if o.Type == proto.OutboundTypeError {
			return true
		}
		seen = append(seen, o)
		return false
	})
	return seen
}

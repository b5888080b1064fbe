package http

import (
	"encoding/json"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/commhub-server/internal/config"
	"github.com/vovakirdan/commhub-server/internal/core"
	"github.com/vovakirdan/commhub-server/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketDirectMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	aliceToken, aliceID := env.register(t, "alice")
	bobToken, bobID := env.register(t, "bob")

	connA := env.dial(t)
	connB := env.dial(t)
	addUser(t, connA, aliceToken, aliceID)
	addUser(t, connB, bobToken, bobID)

	send(t, connA, proto.InboundTypeSendMsg, proto.SendData{To: bobID, Msg: proto.Payload{Type: "text", Text: "hi bob"}})

	out := readEvent(t, connB, proto.EventMsgReceive)
	var msg proto.MessageData
	if err := json.Unmarshal(out.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.From != aliceID || msg.To != bobID || msg.Msg.Text != "hi bob" || msg.Type != proto.ConversationDM {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.ID == "" || msg.SenderName != "alice" {
		t.Fatalf("message should be persisted with sender name: %+v", msg)
	}

	// The sender never gets its own DM back.
	for _, ev := range barrier(t, connA) {
		if ev.Event == proto.EventMsgReceive {
			t.Fatalf("sender received its own message: %+v", ev)
		}
	}

	// Both sides see it in history.
	var history proto.HistoryResponse
	if code := env.do(t, http.MethodGet, "/api/messages?type=dm&to="+aliceID, bobToken, nil, &history); code != http.StatusOK {
		t.Fatalf("history status %d", code)
	}
	if len(history.Messages) != 1 || history.Messages[0].ID != msg.ID {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestWebSocketChannelExcludesSender(t *testing.T) {
	env := newTestEnv(t, nil)
	aliceToken, aliceID := env.register(t, "alice")
	bobToken, bobID := env.register(t, "bob")

	var ch ChannelResponse
	if code := env.do(t, http.MethodPost, "/api/channels", aliceToken, CreateChannelRequest{Name: "general"}, &ch); code != http.StatusCreated {
		t.Fatalf("create channel status %d", code)
	}

	connA := env.dial(t)
	connB := env.dial(t)
	addUser(t, connA, aliceToken, aliceID)
	addUser(t, connB, bobToken, bobID)

	send(t, connA, proto.InboundTypeJoinChannel, ch.ID)
	send(t, connB, proto.InboundTypeJoinChannel, proto.ChannelData{Channel: ch.ID})
	barrier(t, connA)
	barrier(t, connB)

	send(t, connA, proto.InboundTypeSendChannelMsg, proto.SendData{To: ch.ID, Msg: proto.Payload{Type: "text", Text: "hello all"}})

	out := readEvent(t, connB, proto.EventChannelMsgReceive)
	var msg proto.MessageData
	if err := json.Unmarshal(out.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.To != ch.ID || msg.From != aliceID || msg.Type != proto.ConversationChannel {
		t.Fatalf("unexpected channel message: %+v", msg)
	}

	for _, ev := range barrier(t, connA) {
		if ev.Event == proto.EventChannelMsgReceive {
			t.Fatalf("sender received its own channel message: %+v", ev)
		}
	}

	// Bob deletes nothing he does not own.
	send(t, connB, proto.InboundTypeMsgDelete, proto.DeleteData{ID: msg.ID})
	if e := readError(t, connB); e.Code != core.ErrCodeForbidden {
		t.Fatalf("expected forbidden, got %+v", e)
	}

	// Alice's delete reaches Bob.
	send(t, connA, proto.InboundTypeMsgDelete, proto.DeleteData{ID: msg.ID, To: ch.ID, Type: proto.ConversationChannel})
	deleted := readEvent(t, connB, proto.EventMsgDeleted)
	var id string
	if err := json.Unmarshal(deleted.Data, &id); err != nil || id != msg.ID {
		t.Fatalf("unexpected msg-deleted payload %s: %v", deleted.Data, err)
	}
}

func TestWebSocketPrivateChannelForbidden(t *testing.T) {
	env := newTestEnv(t, nil)
	aliceToken, _ := env.register(t, "alice")
	bobToken, bobID := env.register(t, "bob")

	var ch ChannelResponse
	if code := env.do(t, http.MethodPost, "/api/channels", aliceToken, CreateChannelRequest{Name: "staff", Type: "private"}, &ch); code != http.StatusCreated {
		t.Fatalf("create channel status %d", code)
	}

	conn := env.dial(t)
	addUser(t, conn, bobToken, bobID)
	send(t, conn, proto.InboundTypeJoinChannel, ch.ID)
	if e := readError(t, conn); e.Code != core.ErrCodeForbidden {
		t.Fatalf("expected forbidden, got %+v", e)
	}
}

func TestWebSocketTypingRelay(t *testing.T) {
	env := newTestEnv(t, nil)
	aliceToken, aliceID := env.register(t, "alice")
	bobToken, bobID := env.register(t, "bob")

	connA := env.dial(t)
	connB := env.dial(t)
	addUser(t, connA, aliceToken, aliceID)
	addUser(t, connB, bobToken, bobID)

	send(t, connA, proto.InboundTypeTyping, proto.TypingData{To: bobID, Type: proto.ConversationDM})
	out := readEvent(t, connB, proto.EventDisplayTyping)
	var typing proto.TypingData
	if err := json.Unmarshal(out.Data, &typing); err != nil {
		t.Fatalf("unmarshal typing: %v", err)
	}
	if typing.From != aliceID || typing.To != bobID || typing.SenderName != "alice" {
		t.Fatalf("unexpected typing payload: %+v", typing)
	}

	send(t, connA, proto.InboundTypeStopTyping, proto.TypingData{To: bobID, Type: proto.ConversationDM})
	readEvent(t, connB, proto.EventHideTyping)
}

func TestCommandBeforeAddUser(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t)

	send(t, conn, proto.InboundTypeSendMsg, proto.SendData{To: "bob", Msg: proto.Payload{Type: "text", Text: "hi"}})
	if e := readError(t, conn); e.Code != core.ErrCodeNotRegistered {
		t.Fatalf("expected not_registered, got %+v", e)
	}
}

func TestProtocolVersionMismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t)

	send(t, conn, proto.InboundTypeAddUser, proto.AddUserData{User: "alice", Protocol: proto.ProtocolVersion + 1})
	if e := readError(t, conn); e.Code != core.ErrCodeUnsupportedVersion {
		t.Fatalf("expected unsupported_version error, got %+v", e)
	}
}

func makeJWT(secret, aud, iss, sub string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if aud != "" {
		claims["aud"] = aud
	}
	if iss != "" {
		claims["iss"] = iss
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func TestWebSocketJWTRequired(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t)

	send(t, conn, proto.InboundTypeAddUser, "alice")
	if e := readError(t, conn); e.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized without token, got %+v", e)
	}

	send(t, conn, proto.InboundTypeAddUser, proto.AddUserData{Token: "invalid"})
	if e := readError(t, conn); e.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized for bad token, got %+v", e)
	}

	foreign, err := makeJWT("other-secret", env.cfg.JWTAudience, env.cfg.JWTIssuer, "alice", time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}
	send(t, conn, proto.InboundTypeAddUser, proto.AddUserData{Token: foreign})
	if e := readError(t, conn); e.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized for foreign signature, got %+v", e)
	}

	valid, err := makeJWT(env.cfg.JWTSecret, env.cfg.JWTAudience, env.cfg.JWTIssuer, "alice", time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}
	send(t, conn, proto.InboundTypeAddUser, proto.AddUserData{User: "mallory", Token: valid})
	if e := readError(t, conn); e.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized for mismatched user, got %+v", e)
	}

	addUser(t, conn, valid, "alice")
}

func TestWebSocketBareIdentityWhenJWTDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.JWTRequired = false })
	conn := env.dial(t)

	send(t, conn, proto.InboundTypeAddUser, proto.AddUserData{User: "guest", Protocol: proto.ProtocolVersion})
	readUntil(t, conn, func(o proto.RawOutbound) bool {
		var online []string
		_ = json.Unmarshal(o.Data, &online)
		return o.Event == proto.EventOnlineUsers && slices.Contains(online, "guest")
	})
}

func TestWebSocketRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimitPerMinute = 2 })
	conn := env.dial(t)

	// Malformed frames are answered by the transport, so the order is exact.
	for range 2 {
		send(t, conn, proto.InboundTypeLeaveChannel, "")
		if e := readError(t, conn); e.Code != core.ErrCodeBadRequest {
			t.Fatalf("expected bad_request, got %+v", e)
		}
	}
	send(t, conn, proto.InboundTypeLeaveChannel, "")
	if e := readError(t, conn); e.Code != "rate_limited" {
		t.Fatalf("expected rate_limited, got %+v", e)
	}
}

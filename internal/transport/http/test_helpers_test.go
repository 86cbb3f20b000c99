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

	"github.com/akorchagin/foliochat/internal/auth"
	"github.com/akorchagin/foliochat/internal/config"
	"github.com/akorchagin/foliochat/internal/core"
	"github.com/akorchagin/foliochat/internal/log"
	"github.com/akorchagin/foliochat/internal/proto"
	"github.com/akorchagin/foliochat/internal/store/sqlite"
)

// testServer wires a full stack (sqlite store, hub, auth, gin router) behind
// an httptest server.
type testServer struct {
	http  *httptest.Server
	auth  *auth.Service
	store *sqlite.SQLiteStore
	cfg   config.Config
}

func newTestServer(t *testing.T, authorizedUserIDs ...string) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	cfg := config.Default()
	logger := log.Discard()

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	hub := core.NewHub(st, core.NewPresence(), core.NewPolicy(cfg.RestrictedRoom, authorizedUserIDs), cfg.HistoryLimit, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := NewServer(hub, authService, &cfg, logger)
	ts := httptest.NewServer(srv.Handler)

	t.Cleanup(func() {
		ts.Close()
		cancel()
		_ = st.Close()
	})

	return &testServer{http: ts, auth: authService, store: st, cfg: cfg}
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
}

// rawOutbound mirrors proto.Outbound with a raw payload for decoding in
// assertions.
type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

// wsConn is a raw protocol-level chat connection for tests.
type wsConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, s *testServer) *wsConn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, s.wsURL(), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") })

	return &wsConn{t: t, conn: conn}
}

func (c *wsConn) send(msgType string, data any) {
	c.t.Helper()

	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			c.t.Fatalf("marshal %s: %v", msgType, err)
		}
		raw = payload
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: msgType, Data: raw}); err != nil {
		c.t.Fatalf("write %s: %v", msgType, err)
	}
}

func (c *wsConn) read() (rawOutbound, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out rawOutbound
	err := wsjson.Read(ctx, c.conn, &out)
	return out, err
}

func (c *wsConn) mustRead() rawOutbound {
	c.t.Helper()

	out, err := c.read()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return out
}

// mustEvent reads until an event with the given name arrives, skipping
// unrelated broadcasts, and decodes its payload into dst.
func (c *wsConn) mustEvent(name string, dst any) {
	c.t.Helper()

	for {
		out := c.mustRead()
		if out.Type != proto.OutboundTypeEvent || out.Event != name {
			continue
		}
		if dst != nil {
			if err := json.Unmarshal(out.Data, dst); err != nil {
				c.t.Fatalf("decode %s event: %v", name, err)
			}
		}
		return
	}
}

// bind submits an identity and returns the ack payload. Event frames from
// earlier broadcasts may still be queued; they are skipped.
func (c *wsConn) bind(userID, username, token string) proto.AckData {
	c.t.Helper()

	c.send(proto.InboundTypeBind, proto.BindData{UserID: userID, Username: username, Token: token})

	for {
		out := c.mustRead()
		if out.Type != proto.OutboundTypeAck {
			continue
		}
		var ack proto.AckData
		if err := json.Unmarshal(out.Data, &ack); err != nil {
			c.t.Fatalf("decode ack: %v", err)
		}
		return ack
	}
}

func (c *wsConn) mustBind(userID, username string) {
	c.t.Helper()

	if ack := c.bind(userID, username, ""); ack.Status != "ok" {
		c.t.Fatalf("bind rejected: %+v", ack)
	}
}

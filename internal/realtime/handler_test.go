package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type wsServer struct {
	*core
	handler *Handler
	server  *httptest.Server
	url     string
}

func newWSServer(t *testing.T, cfg HandlerConfig, users ...string) *wsServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c := newCore(t, users...)
	h := NewHandler(c.auth, c.tracker, c.broadcaster, cfg, zap.NewNop())
	router := gin.New()
	router.GET("/ws", h.Serve)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
		srv.Close()
	})
	return &wsServer{
		core:    c,
		handler: h,
		server:  srv,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (s *wsServer) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(s.url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads events until one of eventType arrives.
func readUntil(t *testing.T, ws *websocket.Conn, eventType string) map[string]any {
	t.Helper()
	if err := ws.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	for {
		var ev map[string]any
		if err := ws.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		if ev["type"] == eventType {
			return ev
		}
	}
}

// readClose reads until the server's close frame and returns its code.
func readClose(t *testing.T, ws *websocket.Conn) int {
	t.Helper()
	if err := ws.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				t.Fatalf("expected close frame, got %v", err)
			}
			return ce.Code
		}
	}
}

func login(t *testing.T, ws *websocket.Conn, username string) map[string]any {
	t.Helper()
	sendJSON(t, ws, map[string]string{"type": "authenticate", "token": "ok:" + username})
	return readUntil(t, ws, TypeAuthenticated)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebsocketPresenceAndTyping(t *testing.T) {
	s := newWSServer(t, HandlerConfig{AllowedOrigins: []string{"*"}}, "alice", "bob")

	bob := s.dial(t, nil)
	login(t, bob, "bob")

	alice := s.dial(t, nil)
	ev := login(t, alice, "alice")
	if user := ev["user"].(map[string]any); user["username"] != "alice" {
		t.Errorf("authenticated as %v", user["username"])
	}

	online := readUntil(t, bob, TypeUserOnline)
	if online["user"].(map[string]any)["username"] != "alice" {
		t.Errorf("user_online = %v", online)
	}

	sendJSON(t, alice, map[string]any{"type": "typing", "isTyping": true})
	typing := readUntil(t, bob, TypeUserTyping)
	if typing["username"] != "alice" || typing["isTyping"] != true {
		t.Errorf("user_typing = %v", typing)
	}

	alice.Close()
	offline := readUntil(t, bob, TypeUserOffline)
	if offline["username"] != "alice" || offline["lastSeen"] == "" {
		t.Errorf("user_offline = %v", offline)
	}
	waitFor(t, "alice to leave the registry", func() bool { return !s.registry.IsOnline("alice") })
}

func TestWebsocketAuthFailureClosesWithPolicyViolation(t *testing.T) {
	s := newWSServer(t, HandlerConfig{}, "alice")

	ws := s.dial(t, nil)
	sendJSON(t, ws, map[string]string{"type": "authenticate", "token": "not-a-token"})

	failed := readUntil(t, ws, TypeAuthFailed)
	if failed["message"] != "Invalid token" {
		t.Errorf("auth_failed message = %v", failed["message"])
	}
	if code := readClose(t, ws); code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", code, websocket.ClosePolicyViolation)
	}
	waitFor(t, "connection to be untracked", func() bool { return s.handler.ConnectionCount() == 0 })
	if s.registry.ConnectionCount() != 0 {
		t.Error("failed authentication left a registry entry")
	}
}

func TestWebsocketShutdownSendsGoingAway(t *testing.T) {
	s := newWSServer(t, HandlerConfig{}, "alice")

	ws := s.dial(t, nil)
	login(t, ws, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.handler.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if code := readClose(t, ws); code != websocket.CloseGoingAway {
		t.Errorf("close code = %d, want %d", code, websocket.CloseGoingAway)
	}
	if s.registry.IsOnline("alice") {
		t.Error("alice still online after shutdown")
	}
	if writes := s.store.writesFor("alice"); len(writes) != 2 || writes[1].online {
		t.Errorf("alice presence writes = %+v", writes)
	}

	resp, err := http.Get(s.server.URL + "/ws")
	if err != nil {
		t.Fatalf("get after shutdown: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status after shutdown = %d", resp.StatusCode)
	}
}

func TestWebsocketOriginCheck(t *testing.T) {
	s := newWSServer(t, HandlerConfig{AllowedOrigins: []string{"https://chat.example.com"}})

	allowed := http.Header{"Origin": {"https://CHAT.example.com"}}
	s.dial(t, allowed)

	blocked := http.Header{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(s.url, blocked)
	if err == nil {
		t.Fatal("dial from a foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("blocked origin response = %v", resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
}

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://Example.com", "https://example.com", true},
		{" http://localhost:5173 ", "http://localhost:5173", true},
		{"example.com", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeOrigin(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("normalizeOrigin(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HandlerConfig tunes the websocket endpoint.
type HandlerConfig struct {
	// AllowedOrigins lists scheme://host origins browsers may connect from.
	// "*" allows any origin. Requests without an Origin header (non-browser
	// clients) are always allowed.
	AllowedOrigins []string
	SendBuffer     int
	SendTimeout    time.Duration
}

// Handler upgrades GET /ws requests and runs one Session per connection.
type Handler struct {
	authenticator Authenticator
	tracker       *Tracker
	broadcaster   *Broadcaster
	logger        *zap.Logger
	cfg           HandlerConfig
	upgrader      websocket.Upgrader

	allowAll bool
	origins  map[string]struct{}

	// ctx outlives individual requests; net/http cancels a request's
	// context as soon as the handler returns, which for a hijacked
	// websocket is right after the upgrade.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
}

func NewHandler(authenticator Authenticator, tracker *Tracker, broadcaster *Broadcaster, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		authenticator: authenticator,
		tracker:       tracker,
		broadcaster:   broadcaster,
		logger:        logger.Named("ws"),
		cfg:           cfg,
		origins:       make(map[string]struct{}),
		ctx:           ctx,
		cancel:        cancel,
		conns:         make(map[*Conn]struct{}),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			h.allowAll = true
			continue
		}
		if normalized, ok := normalizeOrigin(origin); ok {
			h.origins[normalized] = struct{}{}
		} else {
			h.logger.Warn("ignoring invalid allowed origin", zap.String("origin", origin))
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Serve is the gin handler for the websocket route.
func (h *Handler) Serve(c *gin.Context) {
	select {
	case <-h.ctx.Done():
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server shutting down"})
		return
	default:
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader already wrote an HTTP error response.
		h.logger.Info("websocket upgrade failed", zap.String("remote", c.ClientIP()), zap.Error(err))
		return
	}

	conn := newConn(ws, h.cfg.SendBuffer, h.cfg.SendTimeout, h.logger)
	if !h.track(conn) {
		_ = ws.Close()
		return
	}
	session := NewSession(conn, h.authenticator, h.tracker, h.broadcaster, h.logger)

	h.logger.Debug("connection opened", zap.String("conn_id", conn.ID()), zap.String("remote", c.ClientIP()))

	go func() {
		defer h.wg.Done()
		conn.writePump()
	}()
	go func() {
		defer h.wg.Done()
		h.run(conn, session)
	}()
}

func (h *Handler) run(conn *Conn, session *Session) {
	rejected := false
	conn.readPump(func(frame []byte) bool {
		if session.HandleFrame(h.ctx, frame) {
			return true
		}
		rejected = true
		return false
	})

	session.Close(h.ctx)
	if rejected {
		conn.CloseWithReason(websocket.ClosePolicyViolation, "authentication failed")
	} else {
		conn.Close()
	}
	h.untrack(conn)
	h.logger.Debug("connection closed", zap.String("conn_id", conn.ID()), zap.String("username", session.Username()))
}

// track registers conn and reserves its two goroutines. It refuses once
// Shutdown has started, so wg.Add never races wg.Wait.
func (h *Handler) track(conn *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx.Err() != nil {
		return false
	}
	h.conns[conn] = struct{}{}
	h.wg.Add(2)
	return true
}

func (h *Handler) untrack(conn *Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// ConnectionCount is the number of open websocket connections,
// authenticated or not.
func (h *Handler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown refuses new upgrades, closes every connection with a going-away
// frame and waits for their goroutines, or for ctx to end.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.cancel()
	conns := make([]*Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	h.logger.Info("closing websocket connections", zap.Int("count", len(conns)))
	for _, conn := range conns {
		conn.CloseWithReason(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if _, allowed := h.origins[normalized]; allowed {
		return true
	}
	h.logger.Info("blocked websocket origin", zap.String("origin", origin))
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

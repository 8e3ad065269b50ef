package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/lalith-99/duochat/internal/auth"
	"go.uber.org/zap"
)

// State is where a Session is in its lifecycle. It only moves forward.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Authenticator resolves a bearer token to an identity. auth.Validator
// implements it.
type Authenticator interface {
	Validate(ctx context.Context, token string) (auth.Identity, error)
}

// Session binds one connection to one identity.
//
// Frames are handled one at a time in arrival order by the connection's
// read loop. Close may race with that loop (server shutdown, logout, a
// stalled writer); the mutex makes sure the handle is registered at most
// once and unregistered at most once.
type Session struct {
	handle        Handle
	authenticator Authenticator
	tracker       *Tracker
	broadcaster   *Broadcaster
	logger        *zap.Logger

	mu       sync.Mutex
	state    State
	identity auth.Identity
}

func NewSession(h Handle, authenticator Authenticator, tracker *Tracker, broadcaster *Broadcaster, logger *zap.Logger) *Session {
	return &Session{
		handle:        h,
		authenticator: authenticator,
		tracker:       tracker,
		broadcaster:   broadcaster,
		logger:        logger.Named("session").With(zap.String("conn_id", h.ID())),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username is empty until the session authenticates.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.Username
}

// HandleFrame processes one inbound frame and reports whether the
// connection should stay open.
//
// Frames that are not JSON, or carry an event the current state does not
// accept, are dropped. That includes everything but authenticate before
// authentication, and a repeated authenticate after it.
func (s *Session) HandleFrame(ctx context.Context, frame []byte) bool {
	var msg inbound
	if err := json.Unmarshal(frame, &msg); err != nil {
		s.logger.Debug("dropping unparseable frame", zap.Error(err))
		return s.State() != StateClosed
	}

	switch s.State() {
	case StateClosed:
		return false
	case StateUnauthenticated:
		if msg.Type != TypeAuthenticate {
			s.logger.Debug("dropping event before authentication", zap.String("event", msg.Type))
			return true
		}
		return s.authenticate(ctx, msg.Token)
	default:
		switch msg.Type {
		case TypeTyping:
			s.relayTyping(msg.IsTyping)
		default:
			s.logger.Debug("ignoring event", zap.String("event", msg.Type))
		}
		return true
	}
}

func (s *Session) authenticate(ctx context.Context, token string) bool {
	id, err := s.authenticator.Validate(ctx, token)
	if err != nil {
		s.logger.Info("authentication failed", zap.Error(err))
		s.broadcaster.Reply(s.handle, NewAuthFailed(failureMessage(err)))
		s.Close(ctx)
		return false
	}

	s.mu.Lock()
	if s.state != StateUnauthenticated {
		// Closed while the validator was running.
		s.mu.Unlock()
		return false
	}
	user := s.tracker.Attach(ctx, id, s.handle)
	s.identity = id
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.logger.Info("authenticated", zap.String("username", id.Username))
	s.broadcaster.Reply(s.handle, NewAuthenticated(user))
	return true
}

func (s *Session) relayTyping(isTyping bool) {
	username := s.Username()
	s.broadcaster.BroadcastAll(NewUserTyping(username, isTyping), username)
}

// Close moves the session to Closed and, if it was authenticated, takes
// the handle out of the registry. Only the first call does anything. It
// does not close the handle itself; the transport owns that.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	if prev == StateClosed {
		return
	}
	s.state = StateClosed
	if prev == StateAuthenticated {
		s.tracker.Detach(ctx, s.identity.Username, s.handle)
	}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMalformed):
		return "Invalid token"
	case errors.Is(err, auth.ErrExpired):
		return "Token expired"
	case errors.Is(err, auth.ErrRevoked):
		return "Token revoked"
	case errors.Is(err, auth.ErrUnknownUser):
		return "Invalid user"
	case errors.Is(err, auth.ErrNotAllowed):
		return "Invalid credentials"
	default:
		return "Authentication unavailable"
	}
}

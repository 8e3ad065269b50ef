package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lalith-99/duochat/internal/auth"
	"github.com/lalith-99/duochat/internal/models"
	"go.uber.org/zap"
)

// fakeHandle records every payload sent to it.
type fakeHandle struct {
	id string

	mu      sync.Mutex
	frames  [][]byte
	failing bool
	closed  int
}

func newFakeHandle(id string) *fakeHandle {
	return &fakeHandle{id: id}
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return ErrConnClosed
	}
	f.frames = append(f.frames, payload)
	return nil
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeHandle) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

// events decodes every received frame.
func (f *fakeHandle) events(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]any, 0, len(f.frames))
	for _, frame := range f.frames {
		var ev map[string]any
		if err := json.Unmarshal(frame, &ev); err != nil {
			t.Fatalf("handle %s got invalid JSON %q: %v", f.id, frame, err)
		}
		out = append(out, ev)
	}
	return out
}

// ofType filters events by their type tag.
func (f *fakeHandle) ofType(t *testing.T, eventType string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ev := range f.events(t) {
		if ev["type"] == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type presenceWrite struct {
	username string
	online   bool
	at       time.Time
}

// recordingStore is a PresenceStore that remembers every write.
type recordingStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	writes   []presenceWrite
	writeErr error
	readErr  error
}

func newRecordingStore(usernames ...string) *recordingStore {
	s := &recordingStore{users: make(map[string]*models.User)}
	for i, name := range usernames {
		s.users[name] = &models.User{ID: int64(i + 1), Username: name, CreatedAt: time.Unix(0, 0).UTC()}
	}
	return s
}

func (s *recordingStore) GetByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (s *recordingStore) UpdateOnlineStatus(_ context.Context, username string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, presenceWrite{username, online, at})
	if s.writeErr != nil {
		return s.writeErr
	}
	if u, ok := s.users[username]; ok {
		u.IsOnline = online
		u.LastSeen = &at
	}
	return nil
}

func (s *recordingStore) ListOnline(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []models.User
	for _, u := range s.users {
		if u.IsOnline {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *recordingStore) writesFor(username string) []presenceWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []presenceWrite
	for _, w := range s.writes {
		if w.username == username {
			out = append(out, w)
		}
	}
	return out
}

// stubAuthenticator accepts tokens of the form "ok:<username>".
type stubAuthenticator struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

func (a *stubAuthenticator) Validate(_ context.Context, token string) (auth.Identity, error) {
	a.mu.Lock()
	a.calls++
	gate := a.gate
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}

	var username string
	if _, err := fmt.Sscanf(token, "ok:%s", &username); err != nil {
		return auth.Identity{}, auth.ErrMalformed
	}
	if username == "ghost" {
		return auth.Identity{}, auth.ErrUnknownUser
	}
	return auth.Identity{Username: username}, nil
}

func (a *stubAuthenticator) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

var errStoreDown = errors.New("store unavailable")

// core bundles the realtime components over a recording store.
type core struct {
	registry    *Registry
	broadcaster *Broadcaster
	tracker     *Tracker
	store       *recordingStore
	auth        *stubAuthenticator
}

func newCore(t *testing.T, usernames ...string) *core {
	t.Helper()
	logger := zap.NewNop()
	store := newRecordingStore(usernames...)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, logger)
	tracker := NewTracker(registry, broadcaster, store, logger)
	return &core{
		registry:    registry,
		broadcaster: broadcaster,
		tracker:     tracker,
		store:       store,
		auth:        &stubAuthenticator{},
	}
}

func (c *core) session(h Handle) *Session {
	return NewSession(h, c.auth, c.tracker, c.broadcaster, zap.NewNop())
}

// login opens an authenticated session for username on a new fake handle.
func (c *core) login(t *testing.T, username, handleID string) (*Session, *fakeHandle) {
	t.Helper()
	h := newFakeHandle(handleID)
	s := c.session(h)
	if !s.HandleFrame(context.Background(), []byte(`{"type":"authenticate","token":"ok:`+username+`"}`)) {
		t.Fatalf("authenticate %s failed", username)
	}
	return s, h
}

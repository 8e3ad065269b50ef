package realtime

import (
	"context"
	"sync"
	"testing"
	"time"
)

func authFrame(token string) []byte {
	return []byte(`{"type":"authenticate","token":"` + token + `"}`)
}

func TestSessionAuthenticates(t *testing.T) {
	c := newCore(t, "alice")
	h := newFakeHandle("h")
	s := c.session(h)

	if s.State() != StateUnauthenticated {
		t.Fatalf("initial state = %s", s.State())
	}
	if !s.HandleFrame(context.Background(), authFrame("ok:alice")) {
		t.Fatal("valid authenticate must keep the connection open")
	}
	if s.State() != StateAuthenticated || s.Username() != "alice" {
		t.Fatalf("state = %s, username = %q", s.State(), s.Username())
	}
	if !c.registry.IsOnline("alice") {
		t.Error("handle not registered")
	}

	replies := h.ofType(t, TypeAuthenticated)
	if len(replies) != 1 {
		t.Fatalf("got %d authenticated replies", len(replies))
	}
	user := replies[0]["user"].(map[string]any)
	if user["username"] != "alice" || user["isOnline"] != true {
		t.Errorf("authenticated user = %v", user)
	}
}

func TestSessionAuthFailureCloses(t *testing.T) {
	for _, token := range []string{"garbage", "ok:ghost", ""} {
		c := newCore(t)
		h := newFakeHandle("h")
		s := c.session(h)

		if s.HandleFrame(context.Background(), authFrame(token)) {
			t.Errorf("token %q: connection should close", token)
		}
		if s.State() != StateClosed {
			t.Errorf("token %q: state = %s, want closed", token, s.State())
		}
		failed := h.ofType(t, TypeAuthFailed)
		if len(failed) != 1 || failed[0]["message"] == "" {
			t.Errorf("token %q: auth_failed = %v", token, failed)
		}
		if c.registry.ConnectionCount() != 0 {
			t.Errorf("token %q: failed auth registered a handle", token)
		}
		if s.HandleFrame(context.Background(), authFrame("ok:alice")) {
			t.Errorf("token %q: closed session accepted a retry", token)
		}
	}
}

func TestSessionDropsEventsBeforeAuth(t *testing.T) {
	c := newCore(t, "bob")
	_, bob := c.login(t, "bob", "bob")

	h := newFakeHandle("anon")
	s := c.session(h)
	frames := []string{
		`{"type":"typing","isTyping":true}`,
		`{"type":"something_else"}`,
		`not json`,
	}
	for _, frame := range frames {
		if !s.HandleFrame(context.Background(), []byte(frame)) {
			t.Errorf("frame %s closed the connection; it should be dropped", frame)
		}
	}
	if s.State() != StateUnauthenticated {
		t.Errorf("state = %s", s.State())
	}
	if len(bob.ofType(t, TypeUserTyping)) != 0 {
		t.Error("typing from an unauthenticated connection was relayed")
	}
	if len(h.events(t)) != 0 {
		t.Error("dropped events must not be answered")
	}
}

func TestTypingRelayExcludesSelf(t *testing.T) {
	c := newCore(t, "alice", "bob", "carol")
	bobTab1, bob1 := c.login(t, "bob", "bob-1")
	_, bob2 := c.login(t, "bob", "bob-2")
	_, alice := c.login(t, "alice", "alice")
	_, carol := c.login(t, "carol", "carol")

	if !bobTab1.HandleFrame(context.Background(), []byte(`{"type":"typing","isTyping":true}`)) {
		t.Fatal("typing closed the connection")
	}

	for _, h := range []*fakeHandle{alice, carol} {
		evs := h.ofType(t, TypeUserTyping)
		if len(evs) != 1 || evs[0]["username"] != "bob" || evs[0]["isTyping"] != true {
			t.Errorf("%s got %v", h.id, evs)
		}
	}
	for _, h := range []*fakeHandle{bob1, bob2} {
		if len(h.ofType(t, TypeUserTyping)) != 0 {
			t.Errorf("%s received its own typing event", h.id)
		}
	}
}

func TestSessionIgnoresSecondAuthenticate(t *testing.T) {
	c := newCore(t, "alice", "bob")
	s, h := c.login(t, "alice", "h")

	if !s.HandleFrame(context.Background(), authFrame("ok:bob")) {
		t.Fatal("second authenticate closed the connection")
	}
	if s.Username() != "alice" {
		t.Errorf("identity changed to %q", s.Username())
	}
	if c.registry.IsOnline("bob") {
		t.Error("second authenticate registered another identity")
	}
	if len(h.ofType(t, TypeAuthenticated)) != 1 {
		t.Error("second authenticate must not be answered")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	c := newCore(t, "alice", "bob")
	_, bob := c.login(t, "bob", "bob")
	s, _ := c.login(t, "alice", "alice")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close(context.Background())
		}()
	}
	wg.Wait()

	if got := len(bob.ofType(t, TypeUserOffline)); got != 1 {
		t.Errorf("user_offline sent %d times, want 1", got)
	}
	if got := len(c.store.writesFor("alice")); got != 2 {
		t.Errorf("alice writes = %d, want 2", got)
	}
}

func TestSessionCloseBeforeAuthDoesNotTouchRegistry(t *testing.T) {
	c := newCore(t)
	s := c.session(newFakeHandle("h"))
	s.Close(context.Background())

	if s.State() != StateClosed {
		t.Errorf("state = %s", s.State())
	}
	if len(c.store.writes) != 0 {
		t.Error("closing an unauthenticated session wrote presence")
	}
}

// Close arriving while the validator is still running must win: the
// handle is never registered.
func TestSessionClosedDuringValidation(t *testing.T) {
	c := newCore(t, "alice")
	c.auth.gate = make(chan struct{})
	h := newFakeHandle("h")
	s := c.session(h)

	result := make(chan bool)
	go func() {
		result <- s.HandleFrame(context.Background(), authFrame("ok:alice"))
	}()

	for c.auth.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	s.Close(context.Background())
	close(c.auth.gate)

	if <-result {
		t.Error("authenticate after close must report closed")
	}
	if c.registry.IsOnline("alice") {
		t.Error("handle registered after the session closed")
	}
}

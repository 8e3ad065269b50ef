package realtime

import (
	"encoding/json"
	"sync/atomic"

	"go.uber.org/zap"
)

// Broadcaster fans envelopes out to registered handles. It is fire and
// forget: a failing handle is logged and counted and the loop moves on.
// Handles keep FIFO queues, so two calls made one after the other by the
// same goroutine reach every handle in that order.
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger

	sent     atomic.Uint64
	failures atomic.Uint64
}

func NewBroadcaster(registry *Registry, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		logger:   logger.Named("broadcast"),
	}
}

// BroadcastAll sends env to every handle of every user except exclude.
// An empty exclude reaches everyone. Returns the number of handles that
// accepted the event.
func (b *Broadcaster) BroadcastAll(env Envelope, exclude string) int {
	payload, ok := b.encode(env)
	if !ok {
		return 0
	}

	delivered := 0
	for username, handles := range b.registry.AllEntries() {
		if exclude != "" && username == exclude {
			continue
		}
		delivered += b.deliver(username, handles, env.EventType(), payload)
	}
	return delivered
}

// SendTo sends env to all of username's handles. A user with no
// connections is not an error; the event is simply dropped.
func (b *Broadcaster) SendTo(username string, env Envelope) int {
	handles := b.registry.HandlesFor(username)
	if len(handles) == 0 {
		return 0
	}
	payload, ok := b.encode(env)
	if !ok {
		return 0
	}
	return b.deliver(username, handles, env.EventType(), payload)
}

// Reply sends env to one handle only, bypassing the registry. The session
// uses it before the handle is registered and for auth_failed.
func (b *Broadcaster) Reply(h Handle, env Envelope) bool {
	payload, ok := b.encode(env)
	if !ok {
		return false
	}
	return b.deliver("", []Handle{h}, env.EventType(), payload) == 1
}

func (b *Broadcaster) deliver(username string, handles []Handle, eventType string, payload []byte) int {
	delivered := 0
	for _, h := range handles {
		if err := h.Send(payload); err != nil {
			b.failures.Add(1)
			b.logger.Debug("delivery failed",
				zap.String("event", eventType),
				zap.String("username", username),
				zap.String("conn_id", h.ID()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	b.sent.Add(uint64(delivered))
	return delivered
}

func (b *Broadcaster) encode(env Envelope) ([]byte, bool) {
	payload, err := json.Marshal(env)
	if err != nil {
		b.logger.Error("encode event", zap.String("event", env.EventType()), zap.Error(err))
		return nil, false
	}
	return payload, true
}

// Sent is the number of successful handle deliveries so far.
func (b *Broadcaster) Sent() uint64 { return b.sent.Load() }

// Failures is the number of failed handle deliveries so far.
func (b *Broadcaster) Failures() uint64 { return b.failures.Load() }

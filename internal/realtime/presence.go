package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/lalith-99/duochat/internal/auth"
	"github.com/lalith-99/duochat/internal/models"
	"go.uber.org/zap"
)

// PresenceStore is the part of the user repository presence writes to.
type PresenceStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateOnlineStatus(ctx context.Context, username string, online bool, at time.Time) error
	ListOnline(ctx context.Context) ([]models.User, error)
}

// Tracker turns registry population changes into presence transitions.
// Online and offline are never stored in memory; they are whether the
// registry has an entry. What the tracker maintains is the durable copy
// and the user_online/user_offline announcements.
//
// Attach and Detach hold a per-username lock around the registry change
// and the transition it causes, so a quick offline/online flap for one
// user writes to the store in the same order the registry saw it.
type Tracker struct {
	registry     *Registry
	broadcaster  *Broadcaster
	store        PresenceStore
	locks        userLocks
	logger       *zap.Logger
	now          func() time.Time
	writeTimeout time.Duration
}

func NewTracker(registry *Registry, broadcaster *Broadcaster, store PresenceStore, logger *zap.Logger) *Tracker {
	return &Tracker{
		registry:     registry,
		broadcaster:  broadcaster,
		store:        store,
		logger:       logger.Named("presence"),
		now:          time.Now,
		writeTimeout: 5 * time.Second,
	}
}

// Attach registers h for the identity and runs the added transition. It
// returns the user snapshot to greet the connection with.
func (t *Tracker) Attach(ctx context.Context, id auth.Identity, h Handle) *models.User {
	unlock := t.locks.lock(id.Username)
	defer unlock()

	first := t.registry.Add(id.Username, h)
	t.logger.Debug("connection attached",
		zap.String("username", id.Username),
		zap.String("conn_id", h.ID()),
		zap.Bool("first", first),
	)
	return t.OnConnectionAdded(ctx, id, first)
}

// Detach unregisters h and runs the removed transition.
func (t *Tracker) Detach(ctx context.Context, username string, h Handle) {
	unlock := t.locks.lock(username)
	defer unlock()

	last := t.registry.Remove(username, h)
	t.logger.Debug("connection detached",
		zap.String("username", username),
		zap.String("conn_id", h.ID()),
		zap.Bool("last", last),
	)
	t.OnConnectionRemoved(ctx, username, last)
}

// OnConnectionAdded persists and announces the user as online when first
// is true. Extra tabs of an already-online user are not announced again.
// Callers must hold the user's lock; Attach does.
func (t *Tracker) OnConnectionAdded(ctx context.Context, id auth.Identity, first bool) *models.User {
	ctx, cancel := t.storeContext(ctx)
	defer cancel()

	if first {
		if err := t.store.UpdateOnlineStatus(ctx, id.Username, true, t.now()); err != nil {
			// The registry is authoritative for this process; clients
			// still hear about the transition.
			t.logger.Warn("persist online status", zap.String("username", id.Username), zap.Error(err))
		}
	}

	user := t.snapshot(ctx, id)
	if first {
		t.broadcaster.BroadcastAll(NewUserOnline(user), id.Username)
		t.logger.Info("user online", zap.String("username", id.Username))
	}
	return user
}

// OnConnectionRemoved persists and announces the user as offline when
// wasLastHandle is true, and does nothing otherwise.
func (t *Tracker) OnConnectionRemoved(ctx context.Context, username string, wasLastHandle bool) {
	if !wasLastHandle {
		return
	}
	ctx, cancel := t.storeContext(ctx)
	defer cancel()

	lastSeen := t.now()
	if err := t.store.UpdateOnlineStatus(ctx, username, false, lastSeen); err != nil {
		t.logger.Warn("persist offline status", zap.String("username", username), zap.Error(err))
	}
	t.broadcaster.BroadcastAll(NewUserOffline(username, lastSeen), "")
	t.logger.Info("user offline", zap.String("username", username))
}

// Disconnect closes every live connection of username. Each close goes
// through the normal session teardown, so user_offline is still sent
// exactly once, by whichever close empties the entry.
func (t *Tracker) Disconnect(username string) int {
	handles := t.registry.HandlesFor(username)
	for _, h := range handles {
		if err := h.Close(); err != nil {
			t.logger.Debug("close connection", zap.String("conn_id", h.ID()), zap.Error(err))
		}
	}
	return len(handles)
}

// ResetStale marks offline every user the store still has online without
// a live connection in the registry. At startup that is every such user:
// a crash or kill never ran their offline transition. Returns how many
// rows were corrected.
func (t *Tracker) ResetStale(ctx context.Context) (int, error) {
	users, err := t.store.ListOnline(ctx)
	if err != nil {
		return 0, fmt.Errorf("list online users: %w", err)
	}

	reset := 0
	for _, u := range users {
		unlock := t.locks.lock(u.Username)
		if !t.registry.IsOnline(u.Username) {
			if err := t.store.UpdateOnlineStatus(ctx, u.Username, false, t.now()); err != nil {
				unlock()
				return reset, fmt.Errorf("reset %s: %w", u.Username, err)
			}
			reset++
		}
		unlock()
	}
	if reset > 0 {
		t.logger.Info("cleared stale online flags", zap.Int("users", reset))
	}
	return reset, nil
}

// IsOnline reports live presence from the registry.
func (t *Tracker) IsOnline(username string) bool {
	return t.registry.IsOnline(username)
}

// snapshot reads the stored user, falling back to what the identity says
// if the store cannot answer. IsOnline always reflects the registry.
func (t *Tracker) snapshot(ctx context.Context, id auth.Identity) *models.User {
	user, err := t.store.GetByUsername(ctx, id.Username)
	if err != nil {
		t.logger.Warn("load user snapshot", zap.String("username", id.Username), zap.Error(err))
	}
	if user == nil {
		now := t.now()
		user = &models.User{Username: id.Username, IsAdmin: id.IsAdmin, LastSeen: &now}
	}
	user.IsOnline = t.registry.IsOnline(id.Username)
	return user
}

// storeContext detaches store writes from the caller's cancellation: a
// connection that is going away still has to record that it went away.
func (t *Tracker) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), t.writeTimeout)
}

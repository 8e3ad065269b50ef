package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/duochat/internal/models"
)

// Every method takes ctx first and every lookup that can miss returns
// nil, nil instead of an error. Callers translate nil into 404 or
// "unknown user" themselves.

// UserRepository handles user data.
type UserRepository interface {
	// GetByUsername returns the user with exactly this username (case-sensitive).
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// Create inserts a new, offline user.
	Create(ctx context.Context, username, passwordHash string, isAdmin bool) (*models.User, error)

	// UpdateOnlineStatus writes the durable presence copy. LastSeen is set
	// to at for both transitions.
	UpdateOnlineStatus(ctx context.Context, username string, online bool, at time.Time) error

	// ListOnline returns every user whose durable flag says online.
	ListOnline(ctx context.Context) ([]models.User, error)
}

// GroupMessageRepository handles messages in the shared channel.
type GroupMessageRepository interface {
	CreateGroupMessage(ctx context.Context, sender string, content, imageURL *string) (*models.GroupMessage, error)

	// EditGroupMessage replaces the content when editor is the sender.
	// Returns nil, nil when the message is missing or belongs to someone else.
	EditGroupMessage(ctx context.Context, id uuid.UUID, editor, content string) (*models.GroupMessage, error)

	GetGroupMessage(ctx context.Context, id uuid.UUID) (*models.GroupMessage, error)

	// ListGroupMessages returns the newest limit messages, oldest first.
	ListGroupMessages(ctx context.Context, limit int) ([]models.GroupMessage, error)
}

// DirectMessageRepository handles one-to-one messages.
type DirectMessageRepository interface {
	CreateDirectMessage(ctx context.Context, from, to string, content, imageURL *string) (*models.DirectMessage, error)

	// EditDirectMessage replaces the content when editor is FromUser.
	// Returns nil, nil when the message is missing or belongs to someone else.
	EditDirectMessage(ctx context.Context, id uuid.UUID, editor, content string) (*models.DirectMessage, error)

	GetDirectMessage(ctx context.Context, id uuid.UUID) (*models.DirectMessage, error)

	// ListDirectMessages returns the newest limit messages exchanged between
	// a and b in either direction, oldest first.
	ListDirectMessages(ctx context.Context, a, b string, limit int) ([]models.DirectMessage, error)
}

// Store bundles the three repositories behind one backend.
type Store interface {
	UserRepository
	GroupMessageRepository
	DirectMessageRepository
}

// TokenDenylist remembers credentials that were logged out before they
// expired.
type TokenDenylist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

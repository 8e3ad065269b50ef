// Package memory is an in-process persistence gateway. The server uses it
// when no DATABASE_URL is configured, and tests use it everywhere.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/duochat/internal/models"
	"github.com/lalith-99/duochat/internal/repository"
)

type Store struct {
	mu     sync.RWMutex
	now    func() time.Time
	nextID int64

	users  map[string]*models.User
	group  []*models.GroupMessage
	direct []*models.DirectMessage
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		now:   time.Now,
		users: make(map[string]*models.User),
	}
}

// WithClock replaces the time source. Tests use it to get deterministic
// timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Create(_ context.Context, username, passwordHash string, isAdmin bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return nil, &DuplicateError{Username: username}
	}
	s.nextID++
	now := s.now()
	u := &models.User{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		LastSeen:     &now,
		CreatedAt:    now,
	}
	s.users[username] = u
	return cloneUser(u), nil
}

func (s *Store) GetByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (s *Store) UpdateOnlineStatus(_ context.Context, username string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Matches an UPDATE that hits zero rows: no error.
	if u, ok := s.users[username]; ok {
		u.IsOnline = online
		u.LastSeen = &at
	}
	return nil
}

func (s *Store) ListOnline(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0)
	for _, u := range s.users {
		if u.IsOnline {
			users = append(users, *cloneUser(u))
		}
	}
	slices.SortFunc(users, func(a, b models.User) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) CreateGroupMessage(_ context.Context, sender string, content, imageURL *string) (*models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	m := &models.GroupMessage{
		ID:        uuid.New(),
		Sender:    sender,
		Content:   cloneString(content),
		ImageURL:  cloneString(imageURL),
		Timestamp: now,
		UpdatedAt: now,
	}
	s.group = append(s.group, m)
	return cloneGroup(m), nil
}

func (s *Store) EditGroupMessage(_ context.Context, id uuid.UUID, editor, content string) (*models.GroupMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.group {
		if m.ID != id {
			continue
		}
		if m.Sender != editor {
			return nil, nil
		}
		m.Content = &content
		m.IsEdited = true
		m.UpdatedAt = s.now()
		return cloneGroup(m), nil
	}
	return nil, nil
}

func (s *Store) GetGroupMessage(_ context.Context, id uuid.UUID) (*models.GroupMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.group {
		if m.ID == id {
			return cloneGroup(m), nil
		}
	}
	return nil, nil
}

func (s *Store) ListGroupMessages(_ context.Context, limit int) ([]models.GroupMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := max(len(s.group)-limit, 0)
	messages := make([]models.GroupMessage, 0, len(s.group)-start)
	for _, m := range s.group[start:] {
		messages = append(messages, *cloneGroup(m))
	}
	return messages, nil
}

func (s *Store) CreateDirectMessage(_ context.Context, from, to string, content, imageURL *string) (*models.DirectMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	m := &models.DirectMessage{
		ID:        uuid.New(),
		FromUser:  from,
		ToUser:    to,
		Content:   cloneString(content),
		ImageURL:  cloneString(imageURL),
		Timestamp: now,
		UpdatedAt: now,
	}
	s.direct = append(s.direct, m)
	return cloneDirect(m), nil
}

func (s *Store) EditDirectMessage(_ context.Context, id uuid.UUID, editor, content string) (*models.DirectMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.direct {
		if m.ID != id {
			continue
		}
		if m.FromUser != editor {
			return nil, nil
		}
		m.Content = &content
		m.IsEdited = true
		m.UpdatedAt = s.now()
		return cloneDirect(m), nil
	}
	return nil, nil
}

func (s *Store) GetDirectMessage(_ context.Context, id uuid.UUID) (*models.DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.direct {
		if m.ID == id {
			return cloneDirect(m), nil
		}
	}
	return nil, nil
}

func (s *Store) ListDirectMessages(_ context.Context, a, b string, limit int) ([]models.DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.DirectMessage
	for _, m := range s.direct {
		if (m.FromUser == a && m.ToUser == b) || (m.FromUser == b && m.ToUser == a) {
			matched = append(matched, m)
		}
	}
	start := max(len(matched)-limit, 0)
	messages := make([]models.DirectMessage, 0, len(matched)-start)
	for _, m := range matched[start:] {
		messages = append(messages, *cloneDirect(m))
	}
	return messages, nil
}

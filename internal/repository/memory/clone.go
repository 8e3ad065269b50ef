package memory

import (
	"fmt"

	"github.com/lalith-99/duochat/internal/models"
)

// DuplicateError mirrors the unique violation Postgres raises on username.
type DuplicateError struct {
	Username string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("user %q already exists", e.Username)
}

// Callers get copies so nothing outside the mutex aliases stored rows.

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.LastSeen != nil {
		t := *u.LastSeen
		c.LastSeen = &t
	}
	return &c
}

func cloneGroup(m *models.GroupMessage) *models.GroupMessage {
	c := *m
	c.Content = cloneString(m.Content)
	c.ImageURL = cloneString(m.ImageURL)
	return &c
}

func cloneDirect(m *models.DirectMessage) *models.DirectMessage {
	c := *m
	c.Content = cloneString(m.Content)
	c.ImageURL = cloneString(m.ImageURL)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a chat participant. Username is the stable identity everything
// else keys on; ID is only the table's surrogate key.
//
// IsOnline and LastSeen are the durable copy of presence. The live answer
// to "is this user online" is the realtime registry, and these two fields
// trail it by at most one write.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	IsAdmin      bool       `json:"isAdmin"`
	IsOnline     bool       `json:"isOnline"`
	LastSeen     *time.Time `json:"lastSeen,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// GroupMessage is a message in the single shared channel.
//
// Content and ImageURL are both nullable; a message carries at least one
// of them. Only the sender may edit, which sets IsEdited and bumps
// UpdatedAt. Messages are never deleted.
type GroupMessage struct {
	ID        uuid.UUID `json:"id"`
	Sender    string    `json:"sender"`
	Content   *string   `json:"content"`
	ImageURL  *string   `json:"imageUrl"`
	Timestamp time.Time `json:"timestamp"`
	IsEdited  bool      `json:"isEdited"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DirectMessage is a message between exactly two users. Same nullability
// and edit rules as GroupMessage, with FromUser as the only editor.
type DirectMessage struct {
	ID        uuid.UUID `json:"id"`
	FromUser  string    `json:"fromUser"`
	ToUser    string    `json:"toUser"`
	Content   *string   `json:"content"`
	ImageURL  *string   `json:"imageUrl"`
	Timestamp time.Time `json:"timestamp"`
	IsEdited  bool      `json:"isEdited"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Peer returns the participant of the conversation that is not username.
func (m *DirectMessage) Peer(username string) string {
	if m.FromUser == username {
		return m.ToUser
	}
	return m.FromUser
}

package realtime

import (
	"time"

	"github.com/lalith-99/duochat/internal/models"
)

// Event type tags, one per JSON frame.
const (
	TypeAuthenticate      = "authenticate"
	TypeAuthenticated     = "authenticated"
	TypeAuthFailed        = "auth_failed"
	TypeTyping            = "typing"
	TypeUserTyping        = "user_typing"
	TypeUserOnline        = "user_online"
	TypeUserOffline       = "user_offline"
	TypeNewGroupMessage   = "new_group_message"
	TypeNewDirectMessage  = "new_direct_message"
	TypeEditGroupMessage  = "edit_group_message"
	TypeEditDirectMessage = "edit_direct_message"
)

const lastSeenLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope is any server-to-client event. Envelopes are built once and
// never modified; the broadcaster serializes each one exactly once.
type Envelope interface {
	EventType() string
}

// inbound is the union of the client-to-server events.
type inbound struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	IsTyping bool   `json:"isTyping"`
}

type Authenticated struct {
	Type string       `json:"type"`
	User *models.User `json:"user"`
}

func NewAuthenticated(u *models.User) Authenticated {
	return Authenticated{Type: TypeAuthenticated, User: u}
}

func (e Authenticated) EventType() string { return e.Type }

type AuthFailed struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewAuthFailed(message string) AuthFailed {
	return AuthFailed{Type: TypeAuthFailed, Message: message}
}

func (e AuthFailed) EventType() string { return e.Type }

type UserTyping struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

func NewUserTyping(username string, isTyping bool) UserTyping {
	return UserTyping{Type: TypeUserTyping, Username: username, IsTyping: isTyping}
}

func (e UserTyping) EventType() string { return e.Type }

type UserOnline struct {
	Type string       `json:"type"`
	User *models.User `json:"user"`
}

func NewUserOnline(u *models.User) UserOnline {
	return UserOnline{Type: TypeUserOnline, User: u}
}

func (e UserOnline) EventType() string { return e.Type }

type UserOffline struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	LastSeen string `json:"lastSeen"`
}

// NewUserOffline renders lastSeen as UTC ISO-8601 with milliseconds.
func NewUserOffline(username string, lastSeen time.Time) UserOffline {
	return UserOffline{
		Type:     TypeUserOffline,
		Username: username,
		LastSeen: lastSeen.UTC().Format(lastSeenLayout),
	}
}

func (e UserOffline) EventType() string { return e.Type }

type GroupMessageEvent struct {
	Type    string               `json:"type"`
	Message *models.GroupMessage `json:"message"`
}

func NewGroupMessage(m *models.GroupMessage) GroupMessageEvent {
	return GroupMessageEvent{Type: TypeNewGroupMessage, Message: m}
}

func EditGroupMessage(m *models.GroupMessage) GroupMessageEvent {
	return GroupMessageEvent{Type: TypeEditGroupMessage, Message: m}
}

func (e GroupMessageEvent) EventType() string { return e.Type }

type DirectMessageEvent struct {
	Type    string                `json:"type"`
	Message *models.DirectMessage `json:"message"`
}

func NewDirectMessage(m *models.DirectMessage) DirectMessageEvent {
	return DirectMessageEvent{Type: TypeNewDirectMessage, Message: m}
}

func EditDirectMessage(m *models.DirectMessage) DirectMessageEvent {
	return DirectMessageEvent{Type: TypeEditDirectMessage, Message: m}
}

func (e DirectMessageEvent) EventType() string { return e.Type }

// Package chat persists group and direct messages and announces them over
// the realtime broadcaster. A message is only announced once it is stored.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/duochat/internal/models"
	"github.com/lalith-99/duochat/internal/realtime"
	"github.com/lalith-99/duochat/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("message not found")
	ErrForbidden     = errors.New("only the sender may edit a message")
	ErrEmptyMessage  = errors.New("message needs content or an image")
	ErrUnknownUser   = errors.New("recipient does not exist")
	ErrSelfRecipient = errors.New("cannot send a direct message to yourself")
)

// Notifier is the part of realtime.Broadcaster the service needs.
type Notifier interface {
	BroadcastAll(env realtime.Envelope, exclude string) int
	SendTo(username string, env realtime.Envelope) int
}

type Service struct {
	store        repository.Store
	notifier     Notifier
	historyLimit int
	logger       *zap.Logger
}

func NewService(store repository.Store, notifier Notifier, historyLimit int, logger *zap.Logger) *Service {
	if historyLimit < 1 {
		historyLimit = 50
	}
	return &Service{
		store:        store,
		notifier:     notifier,
		historyLimit: historyLimit,
		logger:       logger.Named("chat"),
	}
}

// SendGroup stores a message in the shared channel and pushes it to every
// other connected user. The sender gets it back from the HTTP response.
func (s *Service) SendGroup(ctx context.Context, sender string, content, imageURL *string) (*models.GroupMessage, error) {
	if blank(content) && blank(imageURL) {
		return nil, ErrEmptyMessage
	}

	msg, err := s.store.CreateGroupMessage(ctx, sender, content, imageURL)
	if err != nil {
		return nil, fmt.Errorf("create group message: %w", err)
	}

	n := s.notifier.BroadcastAll(realtime.NewGroupMessage(msg), sender)
	s.logger.Debug("group message sent",
		zap.String("message_id", msg.ID.String()),
		zap.String("sender", sender),
		zap.Int("delivered", n),
	)
	return msg, nil
}

// SendDirect stores a message for to and pushes it to all of to's
// connections.
func (s *Service) SendDirect(ctx context.Context, from, to string, content, imageURL *string) (*models.DirectMessage, error) {
	if blank(content) && blank(imageURL) {
		return nil, ErrEmptyMessage
	}
	if to == from {
		return nil, ErrSelfRecipient
	}

	recipient, err := s.store.GetByUsername(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("look up recipient: %w", err)
	}
	if recipient == nil {
		return nil, ErrUnknownUser
	}

	msg, err := s.store.CreateDirectMessage(ctx, from, to, content, imageURL)
	if err != nil {
		return nil, fmt.Errorf("create direct message: %w", err)
	}

	n := s.notifier.SendTo(to, realtime.NewDirectMessage(msg))
	s.logger.Debug("direct message sent",
		zap.String("message_id", msg.ID.String()),
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("delivered", n),
	)
	return msg, nil
}

// EditGroup replaces the content of editor's own group message and
// announces the edit to everyone, editor's other tabs included.
func (s *Service) EditGroup(ctx context.Context, id uuid.UUID, editor, content string) (*models.GroupMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := s.store.EditGroupMessage(ctx, id, editor, content)
	if err != nil {
		return nil, fmt.Errorf("edit group message: %w", err)
	}
	if msg == nil {
		existing, err := s.store.GetGroupMessage(ctx, id)
		return nil, editMiss(existing != nil, err)
	}

	s.notifier.BroadcastAll(realtime.EditGroupMessage(msg), "")
	return msg, nil
}

// EditDirect replaces the content of editor's own direct message and
// announces the edit to both participants.
func (s *Service) EditDirect(ctx context.Context, id uuid.UUID, editor, content string) (*models.DirectMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := s.store.EditDirectMessage(ctx, id, editor, content)
	if err != nil {
		return nil, fmt.Errorf("edit direct message: %w", err)
	}
	if msg == nil {
		existing, err := s.store.GetDirectMessage(ctx, id)
		return nil, editMiss(existing != nil, err)
	}

	env := realtime.EditDirectMessage(msg)
	s.notifier.SendTo(msg.Peer(editor), env)
	s.notifier.SendTo(editor, env)
	return msg, nil
}

// editMiss tells a missing message apart from someone else's after the
// conditional update matched nothing.
func editMiss(found bool, err error) error {
	if err != nil {
		return fmt.Errorf("look up message: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return ErrForbidden
}

// GroupHistory returns the newest group messages, oldest first.
func (s *Service) GroupHistory(ctx context.Context) ([]models.GroupMessage, error) {
	msgs, err := s.store.ListGroupMessages(ctx, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list group messages: %w", err)
	}
	return msgs, nil
}

// DirectHistory returns the newest messages between me and other, oldest
// first.
func (s *Service) DirectHistory(ctx context.Context, me, other string) ([]models.DirectMessage, error) {
	msgs, err := s.store.ListDirectMessages(ctx, me, other, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	return msgs, nil
}

// blank reports a missing or whitespace-only field. Only the check trims;
// what gets stored is exactly what was submitted.
func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/duochat/internal/models"
)

type GroupMessageStore struct {
	pool *pgxpool.Pool
}

func NewGroupMessageStore(pool *pgxpool.Pool) *GroupMessageStore {
	return &GroupMessageStore{pool: pool}
}

const groupColumns = `id, sender, content, image_url, timestamp, is_edited, updated_at`

func scanGroupMessage(row pgx.Row) (*models.GroupMessage, error) {
	var m models.GroupMessage
	err := row.Scan(
		&m.ID,
		&m.Sender,
		&m.Content,
		&m.ImageURL,
		&m.Timestamp,
		&m.IsEdited,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *GroupMessageStore) CreateGroupMessage(ctx context.Context, sender string, content, imageURL *string) (*models.GroupMessage, error) {
	query := `
		INSERT INTO group_messages (sender, content, image_url)
		VALUES ($1, $2, $3)
		RETURNING ` + groupColumns

	m, err := scanGroupMessage(s.pool.QueryRow(ctx, query, sender, content, imageURL))
	if err != nil {
		return nil, fmt.Errorf("insert group message: %w", err)
	}
	return m, nil
}

// EditGroupMessage filters on sender in the UPDATE itself, so a foreign
// editor matches zero rows and nothing changes.
func (s *GroupMessageStore) EditGroupMessage(ctx context.Context, id uuid.UUID, editor, content string) (*models.GroupMessage, error) {
	query := `
		UPDATE group_messages
		SET content = $3, is_edited = true, updated_at = now()
		WHERE id = $1 AND sender = $2
		RETURNING ` + groupColumns

	m, err := scanGroupMessage(s.pool.QueryRow(ctx, query, id, editor, content))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("edit group message: %w", err)
	}
	return m, nil
}

func (s *GroupMessageStore) GetGroupMessage(ctx context.Context, id uuid.UUID) (*models.GroupMessage, error) {
	query := `
		SELECT ` + groupColumns + `
		FROM group_messages
		WHERE id = $1`

	m, err := scanGroupMessage(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get group message: %w", err)
	}
	return m, nil
}

func (s *GroupMessageStore) ListGroupMessages(ctx context.Context, limit int) ([]models.GroupMessage, error) {
	query := `
		SELECT ` + groupColumns + `
		FROM group_messages
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list group messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.GroupMessage, 0)
	for rows.Next() {
		m, err := scanGroupMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group messages: %w", err)
	}

	// Newest-first from the index, oldest-first for the client.
	slices.Reverse(messages)
	return messages, nil
}

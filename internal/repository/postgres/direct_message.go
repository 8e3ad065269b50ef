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

type DirectMessageStore struct {
	pool *pgxpool.Pool
}

func NewDirectMessageStore(pool *pgxpool.Pool) *DirectMessageStore {
	return &DirectMessageStore{pool: pool}
}

const directColumns = `id, from_user, to_user, content, image_url, timestamp, is_edited, updated_at`

func scanDirectMessage(row pgx.Row) (*models.DirectMessage, error) {
	var m models.DirectMessage
	err := row.Scan(
		&m.ID,
		&m.FromUser,
		&m.ToUser,
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

func (s *DirectMessageStore) CreateDirectMessage(ctx context.Context, from, to string, content, imageURL *string) (*models.DirectMessage, error) {
	query := `
		INSERT INTO direct_messages (from_user, to_user, content, image_url)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + directColumns

	m, err := scanDirectMessage(s.pool.QueryRow(ctx, query, from, to, content, imageURL))
	if err != nil {
		return nil, fmt.Errorf("insert direct message: %w", err)
	}
	return m, nil
}

func (s *DirectMessageStore) EditDirectMessage(ctx context.Context, id uuid.UUID, editor, content string) (*models.DirectMessage, error) {
	query := `
		UPDATE direct_messages
		SET content = $3, is_edited = true, updated_at = now()
		WHERE id = $1 AND from_user = $2
		RETURNING ` + directColumns

	m, err := scanDirectMessage(s.pool.QueryRow(ctx, query, id, editor, content))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("edit direct message: %w", err)
	}
	return m, nil
}

func (s *DirectMessageStore) GetDirectMessage(ctx context.Context, id uuid.UUID) (*models.DirectMessage, error) {
	query := `
		SELECT ` + directColumns + `
		FROM direct_messages
		WHERE id = $1`

	m, err := scanDirectMessage(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get direct message: %w", err)
	}
	return m, nil
}

func (s *DirectMessageStore) ListDirectMessages(ctx context.Context, a, b string, limit int) ([]models.DirectMessage, error) {
	query := `
		SELECT ` + directColumns + `
		FROM direct_messages
		WHERE (from_user = $1 AND to_user = $2)
		   OR (from_user = $2 AND to_user = $1)
		ORDER BY timestamp DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, a, b, limit)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.DirectMessage, 0)
	for rows.Next() {
		m, err := scanDirectMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan direct message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate direct messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/duochat/internal/repository"
)

// Store is the Postgres-backed persistence gateway. All three stores share
// one pool; pgxpool is goroutine-safe.
type Store struct {
	*UserStore
	*GroupMessageStore
	*DirectMessageStore
}

var _ repository.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		UserStore:          NewUserStore(pool),
		GroupMessageStore:  NewGroupMessageStore(pool),
		DirectMessageStore: NewDirectMessageStore(pool),
	}
}

package message

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DirectMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Store interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	CreateMessage(ctx context.Context, m DirectMessage) (*DirectMessage, error)
	// Conversation returns up to limit messages exchanged between a and b,
	// newest first.
	Conversation(ctx context.Context, a, b string, limit int) ([]DirectMessage, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) CreateMessage(ctx context.Context, m DirectMessage) (*DirectMessage, error) {
	var out DirectMessage
	err := s.pool.QueryRow(ctx,
		`INSERT INTO direct_messages (id, sender_id, recipient_id, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, sender_id, recipient_id, body, created_at`,
		m.ID, m.SenderID, m.RecipientID, m.Body).
		Scan(&out.ID, &out.SenderID, &out.RecipientID, &out.Body, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PostgresStore) Conversation(ctx context.Context, a, b string, limit int) ([]DirectMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_id, recipient_id, body, created_at
		 FROM direct_messages
		 WHERE LEAST(sender_id, recipient_id) = LEAST($1::text, $2::text)
		   AND GREATEST(sender_id, recipient_id) = GREATEST($1::text, $2::text)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		a, b, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[DirectMessage])
}

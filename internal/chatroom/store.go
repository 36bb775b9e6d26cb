package chatroom

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists the room directory. Lookups of missing rooms return
// pgx.ErrNoRows.
type Store interface {
	ListRooms(ctx context.Context) ([]Room, error)
	CreateRoom(ctx context.Context, r Room) (*Room, error)
	GetRoom(ctx context.Context, id string) (*Room, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_by, created_at FROM rooms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Room])
}

func (s *PostgresStore) CreateRoom(ctx context.Context, r Room) (*Room, error) {
	var out Room
	err := s.pool.QueryRow(ctx,
		`INSERT INTO rooms (id, name, created_by) VALUES ($1, $2, $3) RETURNING id, name, created_by, created_at`,
		r.ID, r.Name, r.CreatedBy).Scan(&out.ID, &out.Name, &out.CreatedBy, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, id string) (*Room, error) {
	var out Room
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_by, created_at FROM rooms WHERE id = $1`, id).
		Scan(&out.ID, &out.Name, &out.CreatedBy, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

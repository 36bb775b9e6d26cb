package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRecord struct {
	ID        string
	Email     string
	Username  string
	Password  string
	CreatedAt time.Time
}

// Store persists users. Lookups of missing users return pgx.ErrNoRows.
type Store interface {
	CreateUser(ctx context.Context, u UserRecord) (*UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)
	GetUserByID(ctx context.Context, id string) (*UserRecord, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const userColumns = `id, email, username, password, created_at`

func (s *PostgresStore) CreateUser(ctx context.Context, u UserRecord) (*UserRecord, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, username, password) VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		u.ID, u.Email, u.Username, u.Password)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*UserRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*UserRecord, error) {
	var u UserRecord
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Password, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

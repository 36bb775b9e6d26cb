package calendar

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetly/meetly/backend-go/internal/realtime"
)

// Store persists calendar events. Lookups of missing events return
// pgx.ErrNoRows.
type Store interface {
	CreateEvent(ctx context.Context, e Event) (*Event, error)
	GetEvent(ctx context.Context, id string) (*Event, error)
	UpdateEvent(ctx context.Context, e Event) (*Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListVisible(ctx context.Context, viewerID string) ([]Event, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const eventColumns = `id, owner_id, title, description, starts_at, ends_at, visibility, allowed_user_ids, created_at, updated_at`

func (s *PostgresStore) CreateEvent(ctx context.Context, e Event) (*Event, error) {
	allowed, err := json.Marshal(e.AllowedUserIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal allowed users: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO calendar_events (id, owner_id, title, description, starts_at, ends_at, visibility, allowed_user_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		 RETURNING `+eventColumns,
		e.ID, e.OwnerID, e.Title, e.Description, e.StartsAt, e.EndsAt, string(e.Visibility), string(allowed))
	return scanEvent(row)
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id = $1`, id)
	return scanEvent(row)
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, e Event) (*Event, error) {
	allowed, err := json.Marshal(e.AllowedUserIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal allowed users: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE calendar_events
		 SET title = $2, description = $3, starts_at = $4, ends_at = $5,
		     visibility = $6, allowed_user_ids = $7::jsonb, updated_at = now()
		 WHERE id = $1
		 RETURNING `+eventColumns,
		e.ID, e.Title, e.Description, e.StartsAt, e.EndsAt, string(e.Visibility), string(allowed))
	return scanEvent(row)
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM calendar_events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListVisible(ctx context.Context, viewerID string) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM calendar_events
		 WHERE visibility = 'public'
		    OR owner_id = $1
		    OR (visibility = 'restricted' AND jsonb_typeof(allowed_user_ids) = 'array' AND allowed_user_ids ? $1)
		 ORDER BY starts_at, id`,
		viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		e          Event
		visibility string
		allowed    []byte
	)
	err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt,
		&visibility, &allowed, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Visibility = realtime.Visibility(visibility)
	e.AllowedUserIDs = decodeAllowed(e.ID, allowed)
	return &e, nil
}

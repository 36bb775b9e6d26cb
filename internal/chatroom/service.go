package chatroom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"github.com/meetly/meetly/backend-go/internal/db"
	"github.com/meetly/meetly/backend-go/internal/typeid"
)

const maxNameLength = 64

var (
	ErrNotFound    = errors.New("room not found")
	ErrNameTaken   = errors.New("room name already taken")
	ErrInvalidName = errors.New("room name must be 1-64 characters")
)

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) List(ctx context.Context) ([]Room, error) {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if rooms == nil {
		rooms = []Room{}
	}
	return rooms, nil
}

func (s *Service) Create(ctx context.Context, name, createdBy string) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, ErrInvalidName
	}

	room, err := s.store.CreateRoom(ctx, Room{
		ID:        typeid.NewRoomID(),
		Name:      name,
		CreatedBy: createdBy,
	})
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

// Exists returns ErrNotFound unless roomID names a room in the directory. It
// has the shape of realtime.RoomChecker.
func (s *Service) Exists(ctx context.Context, roomID string) error {
	if err := typeid.Validate(roomID, typeid.PrefixRoom); err != nil {
		return ErrNotFound
	}
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get room: %w", err)
	}
	return nil
}

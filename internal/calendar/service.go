package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"github.com/meetly/meetly/backend-go/internal/realtime"
	"github.com/meetly/meetly/backend-go/internal/typeid"
)

const maxTitleLength = 200

var (
	ErrNotFound          = errors.New("event not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTitle      = errors.New("title must be 1-200 characters")
	ErrInvalidTimes      = errors.New("startsAt and endsAt are required and endsAt must not precede startsAt")
	ErrInvalidVisibility = errors.New("visibility must be public, restricted or private")
	ErrInvalidAllowed    = errors.New("allowedUserIds must contain user ids")
)

// Notifier delivers a frame to the audience described by a scope.
type Notifier interface {
	SendScoped(scope realtime.Scope, msg *realtime.Message)
}

type Service struct {
	store    Store
	notifier Notifier
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

func (s *Service) List(ctx context.Context, viewerID string) ([]Event, error) {
	events, err := s.store.ListVisible(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

func (s *Service) Create(ctx context.Context, ownerID string, in EventInput) (*Event, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	ev, err := s.store.CreateEvent(ctx, Event{
		ID:             typeid.NewEventID(),
		OwnerID:        ownerID,
		Title:          in.Title,
		Description:    in.Description,
		StartsAt:       in.StartsAt,
		EndsAt:         in.EndsAt,
		Visibility:     in.Visibility,
		AllowedUserIDs: in.AllowedUserIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.notify(realtime.TypeEventCreated, ev.Scope(), ev)
	return ev, nil
}

func (s *Service) Update(ctx context.Context, userID, eventID string, in EventInput) (*Event, error) {
	current, err := s.ownedEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	in, err = normalize(in)
	if err != nil {
		return nil, err
	}

	current.Title = in.Title
	current.Description = in.Description
	current.StartsAt = in.StartsAt
	current.EndsAt = in.EndsAt
	current.Visibility = in.Visibility
	current.AllowedUserIDs = in.AllowedUserIDs

	ev, err := s.store.UpdateEvent(ctx, *current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update event: %w", err)
	}

	s.notify(realtime.TypeEventUpdated, ev.Scope(), ev)
	return ev, nil
}

// Delete removes an owned event and notifies the audience it had before
// deletion.
func (s *Service) Delete(ctx context.Context, userID, eventID string) error {
	current, err := s.ownedEvent(ctx, userID, eventID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteEvent(ctx, eventID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}

	s.notify(realtime.TypeEventDeleted, current.Scope(), DeletedPayload{ID: current.ID, OwnerID: current.OwnerID})
	return nil
}

func (s *Service) ownedEvent(ctx context.Context, userID, eventID string) (*Event, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	if ev.OwnerID != userID {
		return nil, ErrForbidden
	}
	return ev, nil
}

func (s *Service) notify(msgType string, scope realtime.Scope, payload any) {
	msg, err := realtime.NewMessage(msgType, payload)
	if err != nil {
		slog.Error("build calendar notification", "type", msgType, "error", err)
		return
	}
	s.notifier.SendScoped(scope, msg)
}

func normalize(in EventInput) (EventInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || utf8.RuneCountInString(in.Title) > maxTitleLength {
		return in, ErrInvalidTitle
	}
	if in.StartsAt.IsZero() || in.EndsAt.IsZero() || in.EndsAt.Before(in.StartsAt) {
		return in, ErrInvalidTimes
	}
	in.StartsAt = in.StartsAt.UTC()
	in.EndsAt = in.EndsAt.UTC()

	if in.Visibility == "" {
		in.Visibility = realtime.VisibilityPrivate
	}
	if !in.Visibility.Valid() {
		return in, ErrInvalidVisibility
	}

	if in.Visibility != realtime.VisibilityRestricted {
		in.AllowedUserIDs = []string{}
		return in, nil
	}

	allowed, invalid := typeid.UserIDs(in.AllowedUserIDs)
	if len(invalid) > 0 {
		return in, fmt.Errorf("%w: %q", ErrInvalidAllowed, invalid[0])
	}
	in.AllowedUserIDs = allowed
	return in, nil
}

package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/meetly/meetly/backend-go/internal/realtime"
	"github.com/meetly/meetly/backend-go/internal/typeid"
)

const (
	maxBodyLength = 4000
	defaultLimit  = 50
	maxLimit      = 200
)

var (
	ErrInvalidBody       = errors.New("message body must be 1-4000 characters")
	ErrRecipientNotFound = errors.New("recipient not found")
)

// Notifier pushes frames to every live connection of the given users.
type Notifier interface {
	SendToUsers(userIDs []string, msg *realtime.Message)
}

type Service struct {
	store    Store
	notifier Notifier
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Send stores a direct message and pushes it to both participants.
func (s *Service) Send(ctx context.Context, senderID, recipientID, body string) (*DirectMessage, error) {
	if strings.TrimSpace(body) == "" || utf8.RuneCountInString(body) > maxBodyLength {
		return nil, ErrInvalidBody
	}

	exists, err := s.store.UserExists(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("check recipient: %w", err)
	}
	if !exists {
		return nil, ErrRecipientNotFound
	}

	dm, err := s.store.CreateMessage(ctx, DirectMessage{
		ID:          typeid.NewDirectMessageID(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	msg, err := realtime.NewMessage(realtime.TypeUserMessage, dm)
	if err != nil {
		slog.Error("build user message", "error", err, "message", dm.ID)
		return dm, nil
	}
	s.notifier.SendToUsers([]string{dm.SenderID, dm.RecipientID}, msg)

	return dm, nil
}

func (s *Service) Conversation(ctx context.Context, userID, otherID string, limit int) ([]DirectMessage, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	msgs, err := s.store.Conversation(ctx, userID, otherID, limit)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if msgs == nil {
		msgs = []DirectMessage{}
	}
	return msgs, nil
}

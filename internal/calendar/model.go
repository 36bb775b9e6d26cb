package calendar

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/meetly/meetly/backend-go/internal/realtime"
)

type Event struct {
	ID             string              `json:"id"`
	OwnerID        string              `json:"ownerId"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	StartsAt       time.Time           `json:"startsAt"`
	EndsAt         time.Time           `json:"endsAt"`
	Visibility     realtime.Visibility `json:"visibility"`
	AllowedUserIDs []string            `json:"allowedUserIds"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// EventInput carries the user-editable fields of an event.
type EventInput struct {
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	StartsAt       time.Time           `json:"startsAt"`
	EndsAt         time.Time           `json:"endsAt"`
	Visibility     realtime.Visibility `json:"visibility"`
	AllowedUserIDs []string            `json:"allowedUserIds"`
}

type DeletedPayload struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
}

func (e *Event) Scope() realtime.Scope {
	return realtime.Scope{
		Visibility:     e.Visibility,
		OwnerID:        e.OwnerID,
		AllowedUserIDs: e.AllowedUserIDs,
	}
}

// decodeAllowed reads the stored allowed-user list. Non-string entries are
// dropped, and an unreadable list yields no allowed users.
func decodeAllowed(eventID string, raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		slog.Warn("unreadable allowed user list", "event", eventID, "error", err)
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			slog.Warn("skipping non-string allowed user", "event", eventID, "value", item)
			continue
		}
		out = append(out, s)
	}
	return out
}

package realtime

import (
	"encoding/json"
	"log/slog"

	"github.com/meetly/meetly/backend-go/internal/typeid"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// deliver encodes msg once and hands the frame to each target. It never
// blocks, so it may run with or without h.mu held; a target that refuses the
// frame is skipped and counted as dropped.
func (h *Hub) deliver(targets []Conn, msg *Message) {
	if msg == nil || len(targets) == 0 {
		return
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		slog.Error("encode frame", "type", msg.Type, "error", err)
		return
	}
	sent, dropped := 0, 0
	for _, c := range targets {
		if c.Send(frame) {
			sent++
		} else {
			dropped++
		}
	}
	h.metrics.delivered(msg.Type, sent, dropped)
}

// SendToUser delivers msg to every live connection of userID. Offline users
// are a silent no-op.
func (h *Hub) SendToUser(userID string, msg *Message) {
	h.SendToUsers([]string{userID}, msg)
}

// SendToUsers delivers msg once to every live connection of each listed user.
func (h *Hub) SendToUsers(userIDs []string, msg *Message) {
	h.mu.Lock()
	seen := make(map[string]struct{}, len(userIDs))
	var ids []string
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		ids = append(ids, h.registry.connIDs(userID)...)
	}
	targets := h.resolveLocked(ids)
	h.mu.Unlock()

	h.deliver(targets, msg)
}

// SendToRoom delivers msg to every connection that is a member of roomID.
func (h *Hub) SendToRoom(roomID string, msg *Message) {
	h.mu.Lock()
	targets := h.roomConnsLocked(roomID, "")
	h.mu.Unlock()

	h.deliver(targets, msg)
}

// BroadcastAll delivers msg to every connection on the server.
func (h *Hub) BroadcastAll(msg *Message) {
	h.mu.Lock()
	targets := h.allConnsLocked()
	h.mu.Unlock()

	h.deliver(targets, msg)
}

type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityRestricted Visibility = "restricted"
	VisibilityPrivate    Visibility = "private"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityRestricted, VisibilityPrivate:
		return true
	}
	return false
}

// Scope describes who may see a visibility-scoped notification.
type Scope struct {
	Visibility     Visibility
	OwnerID        string
	AllowedUserIDs []string
}

// Recipients returns the users a non-public scope addresses: the owner, plus
// every well-formed allowed user id when restricted. Malformed ids are
// skipped.
func (s Scope) Recipients() []string {
	out := []string{s.OwnerID}
	if s.Visibility != VisibilityRestricted {
		return out
	}
	valid, invalid := typeid.UserIDs(s.AllowedUserIDs)
	if len(invalid) > 0 {
		slog.Warn("skipping malformed allowed users", "owner", s.OwnerID, "ids", invalid)
	}
	for _, id := range valid {
		if id != s.OwnerID {
			out = append(out, id)
		}
	}
	return out
}

// SendScoped fans msg out according to scope: public reaches everyone,
// restricted reaches the owner and allowed users, private reaches the owner.
// Unknown visibilities are treated as private.
func (h *Hub) SendScoped(scope Scope, msg *Message) {
	switch scope.Visibility {
	case VisibilityPublic:
		h.BroadcastAll(msg)
	case VisibilityRestricted, VisibilityPrivate:
		h.SendToUsers(scope.Recipients(), msg)
	default:
		slog.Warn("unknown visibility, sending to owner only", "visibility", scope.Visibility, "owner", scope.OwnerID)
		h.SendToUser(scope.OwnerID, msg)
	}
}

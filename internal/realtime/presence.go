package realtime

import "context"

// announcePresenceLocked broadcasts an online or offline transition for id to
// every connection. Callers hold h.mu and call it only on a real edge of the
// user's connection set, which is what keeps emissions to one per edge.
func (h *Hub) announcePresenceLocked(msgType string, id Identity) {
	switch msgType {
	case TypePresenceOnline:
		h.metrics.online.Add(context.Background(), 1)
	case TypePresenceOffline:
		h.metrics.online.Add(context.Background(), -1)
	}

	h.deliver(h.allConnsLocked(), newMessage(msgType, "", id.UserID, PresencePayload{
		UserID:   id.UserID,
		Username: id.Username,
	}))
}

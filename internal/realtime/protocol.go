package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Message is the JSON frame exchanged over a realtime connection in both
// directions.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	// Connection
	TypeWelcome = "welcome"
	TypeError   = "error"

	// Presence
	TypePresenceState   = "presence.state"
	TypePresenceOnline  = "presence.online"
	TypePresenceOffline = "presence.offline"

	// Rooms, client -> server
	TypeRoomJoin  = "room.join"
	TypeRoomLeave = "room.leave"
	TypeRoomSend  = "room.send"

	// Rooms, server -> client
	TypeRoomMembers    = "room.members"
	TypeRoomUserJoined = "room.user_joined"
	TypeRoomUserLeft   = "room.user_left"
	TypeRoomMessage    = "room.message"

	// Direct messages
	TypeUserMessage = "user.message"

	// Calendar
	TypeEventCreated = "calendar.event_created"
	TypeEventUpdated = "calendar.event_updated"
	TypeEventDeleted = "calendar.event_deleted"
)

// MaxRoomMessageLength bounds the text of a single room message, in runes.
const MaxRoomMessageLength = 4000

type WelcomePayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	Username     string `json:"username"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type UserSummary struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type PresenceStatePayload struct {
	Users []UserSummary `json:"users"`
}

type PresencePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type RoomMembersPayload struct {
	RoomID  string   `json:"roomId"`
	Members []Member `json:"members"`
}

type RoomUserPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type RoomMessagePayload struct {
	RoomID         string `json:"roomId"`
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
	SenderUsername string `json:"senderUsername"`
	Text           string `json:"text"`
	Timestamp      string `json:"timestamp"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type SendRoomMessagePayload struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// NewMessage builds a frame of the given type with payload encoded as JSON.
// Collaborators outside this package use it to build UserMessage and
// calendar notifications.
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return &Message{Type: msgType, Payload: data}, nil
}

// newMessage builds a frame from one of the payload types above. It returns
// nil, which deliver ignores, if the payload cannot be encoded.
func newMessage(msgType, roomID, userID string, payload any) *Message {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal payload", "type", msgType, "error", err)
		return nil
	}
	return &Message{
		Type:    msgType,
		RoomID:  roomID,
		UserID:  userID,
		Payload: data,
	}
}

func errorMessage(text string) *Message {
	return newMessage(TypeError, "", "", ErrorPayload{Message: text})
}

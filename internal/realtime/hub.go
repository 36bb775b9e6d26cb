package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meetly/meetly/backend-go/internal/typeid"
)

// Conn is a live transport connection as seen by the Hub.
type Conn interface {
	ID() string
	// Send enqueues an encoded frame without blocking and reports whether it
	// was accepted. It must not log or do I/O; the Hub calls it under its lock.
	Send(frame []byte) bool
	Close(reason string)
}

// Identity is the verified user behind a connection.
type Identity struct {
	UserID   string
	Username string
}

type connection struct {
	conn     Conn
	identity Identity
}

// Hub coordinates presence, room membership and fan-out for every realtime
// connection of the process. All tables are guarded by mu. Frames caused by
// a table mutation are encoded once and enqueued inside the same critical
// section so every recipient observes them in mutation order; Conn.Send never
// blocks.
type Hub struct {
	mu       sync.Mutex
	conns    map[string]*connection // connID -> connection
	registry *registry
	rooms    *roomTable
	metrics  *hubMetrics
	now      func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		conns:    make(map[string]*connection),
		registry: newRegistry(),
		rooms:    newRoomTable(),
		metrics:  newHubMetrics(defaultMeter()),
		now:      time.Now,
	}
}

// Connect records a newly authenticated connection. The connection receives
// a welcome frame and the current online users; everyone is told when this
// is the user's first connection. Connecting an id twice is a no-op.
func (h *Hub) Connect(c Conn, id Identity) {
	connID := c.ID()

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[connID]; ok {
		return
	}
	h.conns[connID] = &connection{conn: c, identity: id}
	first := h.registry.register(id.UserID, id.Username, connID)
	h.metrics.connections.Add(context.Background(), 1)

	h.deliver([]Conn{c}, newMessage(TypeWelcome, "", id.UserID, WelcomePayload{
		ConnectionID: connID,
		UserID:       id.UserID,
		Username:     id.Username,
	}))
	h.deliver([]Conn{c}, newMessage(TypePresenceState, "", "", PresenceStatePayload{
		Users: h.registry.online(),
	}))

	if first {
		h.announcePresenceLocked(TypePresenceOnline, id)
	}

	slog.Info("client connected", "user", id.UserID, "conn", connID, "first", first)
}

// Disconnect removes a connection, leaves every room it joined and reports
// the user offline when it was their last connection. Cleanup runs once per
// connection; later calls for the same id do nothing.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cn, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(h.conns, connID)
	h.metrics.connections.Add(context.Background(), -1)

	for _, d := range h.rooms.purge(connID) {
		if h.rooms.hasUser(d.RoomID, d.Member.UserID) {
			continue
		}
		h.deliver(h.roomConnsLocked(d.RoomID, ""), newMessage(TypeRoomUserLeft, d.RoomID, d.Member.UserID, RoomUserPayload{
			RoomID:   d.RoomID,
			UserID:   d.Member.UserID,
			Username: d.Member.Username,
		}))
	}

	last := h.registry.unregister(cn.identity.UserID, connID)
	if last {
		h.announcePresenceLocked(TypePresenceOffline, cn.identity)
	}

	slog.Info("client disconnected", "user", cn.identity.UserID, "conn", connID, "last", last)
}

// JoinRoom adds the connection to roomID. The joiner receives the room's
// other occupants. The rest of the room is told about the joiner only when
// this is the user's first membership there; the user's own connections are
// never told. It reports false when the connection is unknown.
func (h *Hub) JoinRoom(roomID, connID string) ([]Member, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cn, ok := h.conns[connID]
	if !ok {
		return nil, false
	}

	present := h.rooms.hasUser(roomID, cn.identity.UserID)
	existing, added := h.rooms.join(roomID, Member{
		UserID:   cn.identity.UserID,
		Username: cn.identity.Username,
		ConnID:   connID,
	})

	h.deliver([]Conn{cn.conn}, newMessage(TypeRoomMembers, roomID, "", RoomMembersPayload{
		RoomID:  roomID,
		Members: existing,
	}))

	if added {
		h.metrics.joins.Add(context.Background(), 1)
	}
	if added && !present {
		h.deliver(h.roomConnsLocked(roomID, cn.identity.UserID), newMessage(TypeRoomUserJoined, roomID, cn.identity.UserID, RoomUserPayload{
			RoomID:   roomID,
			UserID:   cn.identity.UserID,
			Username: cn.identity.Username,
		}))
		slog.Debug("joined room", "room", roomID, "user", cn.identity.UserID, "conn", connID)
	}

	return existing, true
}

// LeaveRoom removes the connection's membership in roomID. The remaining
// members are told once the user has no membership left in the room. It
// reports false, without notifying anyone, when the connection was not a
// member.
func (h *Hub) LeaveRoom(roomID, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.rooms.leave(roomID, connID)
	if !ok {
		return false
	}
	slog.Debug("left room", "room", roomID, "user", m.UserID, "conn", connID)
	if h.rooms.hasUser(roomID, m.UserID) {
		return true
	}

	h.deliver(h.roomConnsLocked(roomID, ""), newMessage(TypeRoomUserLeft, roomID, m.UserID, RoomUserPayload{
		RoomID:   roomID,
		UserID:   m.UserID,
		Username: m.Username,
	}))
	return true
}

// SendRoomMessage fans a chat message from connID out to every member of
// roomID, the sender included. Nothing is sent when the connection is not a
// member of the room.
func (h *Hub) SendRoomMessage(roomID, connID, text string) (RoomMessagePayload, bool) {
	h.mu.Lock()
	cn, ok := h.conns[connID]
	if !ok || !h.rooms.isMember(roomID, connID) {
		h.mu.Unlock()
		return RoomMessagePayload{}, false
	}
	targets := h.roomConnsLocked(roomID, "")
	h.mu.Unlock()

	payload := RoomMessagePayload{
		RoomID:         roomID,
		MessageID:      typeid.NewRoomMessageID(),
		SenderID:       cn.identity.UserID,
		SenderUsername: cn.identity.Username,
		Text:           text,
		Timestamp:      h.now().UTC().Format(timestampLayout),
	}
	h.deliver(targets, newMessage(TypeRoomMessage, roomID, cn.identity.UserID, payload))
	return payload, true
}

// Members returns the users currently in roomID, one entry per user.
func (h *Hub) Members(roomID string) []Member {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms.members(roomID, "")
}

// Rooms lists the rooms that currently have at least one member.
func (h *Hub) Rooms() []RoomOccupancy {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms.occupancy()
}

// OnlineUsers lists users holding at least one live connection.
func (h *Hub) OnlineUsers() []UserSummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.online()
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.isOnline(userID)
}

// Shutdown closes every live connection. Each transport then runs the normal
// disconnect path.
func (h *Hub) Shutdown(reason string) {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.conns))
	for _, cn := range h.conns {
		conns = append(conns, cn.conn)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c Conn) {
			defer wg.Done()
			c.Close(reason)
		}(c)
	}
	wg.Wait()
	slog.Info("realtime hub closed", "connections", len(conns))
}

func (h *Hub) roomConnsLocked(roomID, excludeUserID string) []Conn {
	ids := h.rooms.connIDs(roomID, excludeUserID)
	return h.resolveLocked(ids)
}

// resolveLocked maps connection ids to live connections. Ids without a live
// connection are treated as already cleaned up.
func (h *Hub) resolveLocked(ids []string) []Conn {
	out := make([]Conn, 0, len(ids))
	for _, id := range ids {
		if cn, ok := h.conns[id]; ok {
			out = append(out, cn.conn)
		}
	}
	return out
}

func (h *Hub) allConnsLocked() []Conn {
	out := make([]Conn, 0, len(h.conns))
	for _, cn := range h.conns {
		out = append(out, cn.conn)
	}
	return out
}

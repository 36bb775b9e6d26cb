package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 64 * 1024
)

// RoomChecker reports an error when roomID may not be joined.
type RoomChecker func(ctx context.Context, roomID string) error

// Client is a websocket connection registered with the Hub.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once
	dropped  atomic.Int64
	rooms    RoomChecker
	identity Identity
	id       string
}

func NewClient(hub *Hub, conn *websocket.Conn, identity Identity, connID string, sendBuffer int, rooms RoomChecker) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		rooms:    rooms,
		identity: identity,
		id:       connID,
	}
}

func (c *Client) ID() string { return c.id }

// Send enqueues an encoded frame for the write pump. Frames for a closed
// client or one whose buffer is full are dropped and counted; the write pump
// reports the count.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// reply encodes msg for this connection only.
func (c *Client) reply(msg *Message) {
	if msg == nil {
		return
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		slog.Error("encode frame", "type", msg.Type, "error", err)
		return
	}
	c.Send(frame)
}

func (c *Client) reportDropped() {
	if n := c.dropped.Swap(0); n > 0 {
		slog.Warn("client send buffer full, dropped frames", "user", c.identity.UserID, "conn", c.id, "dropped", n)
	}
}

func (c *Client) Close(reason string) {
	c.markDone()
	c.conn.Close(websocket.StatusGoingAway, reason)
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// ReadPump reads frames until the connection fails, then runs the hub's
// disconnect cleanup. It must be the only reader of the connection.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.markDone()
		c.hub.Disconnect(c.id)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMsgSize)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return
			}
			slog.Debug("read error", "error", err, "user", c.identity.UserID, "conn", c.id)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid message", "error", err, "user", c.identity.UserID)
			c.reply(errorMessage("invalid message"))
			continue
		}

		c.handleMessage(ctx, &msg)
	}
}

func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.reportDropped()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				slog.Debug("write error", "error", err, "user", c.identity.UserID, "conn", c.id)
				return
			}
			c.reportDropped()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-c.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, msg *Message) {
	switch msg.Type {
	case TypeRoomJoin:
		var p JoinRoomPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID == "" {
			c.reply(errorMessage("roomId is required"))
			return
		}
		if c.rooms != nil {
			if err := c.rooms(ctx, p.RoomID); err != nil {
				slog.Warn("join rejected", "room", p.RoomID, "user", c.identity.UserID, "error", err)
				c.reply(errorMessage("failed to join room"))
				return
			}
		}
		c.hub.JoinRoom(p.RoomID, c.id)

	case TypeRoomLeave:
		var p LeaveRoomPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID == "" {
			c.reply(errorMessage("roomId is required"))
			return
		}
		c.hub.LeaveRoom(p.RoomID, c.id)

	case TypeRoomSend:
		var p SendRoomMessagePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID == "" {
			c.reply(errorMessage("roomId is required"))
			return
		}
		if strings.TrimSpace(p.Text) == "" {
			c.reply(errorMessage("text is required"))
			return
		}
		if utf8.RuneCountInString(p.Text) > MaxRoomMessageLength {
			c.reply(errorMessage("text is too long"))
			return
		}
		c.hub.SendRoomMessage(p.RoomID, c.id, p.Text)

	default:
		slog.Warn("unknown message type", "type", msg.Type, "user", c.identity.UserID)
		c.reply(errorMessage("unknown message type"))
	}
}

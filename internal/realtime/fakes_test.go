package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	msgs   []*Message
	refuse bool
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse || f.closed {
		return false
	}
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		panic(err)
	}
	f.msgs = append(f.msgs, &msg)
	return true
}

func (f *fakeConn) Close(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) all() []*Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Message(nil), f.msgs...)
}

func (f *fakeConn) ofType(msgType string) []*Message {
	var out []*Message
	for _, m := range f.all() {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = nil
}

func decode[T any](t *testing.T, msg *Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Payload, &v))
	return v
}

// presenceFor returns the presence frames of msgType concerning userID.
func presenceFor(t *testing.T, c *fakeConn, msgType, userID string) []PresencePayload {
	t.Helper()
	var out []PresencePayload
	for _, m := range c.ofType(msgType) {
		p := decode[PresencePayload](t, m)
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

func connect(h *Hub, connID, userID, username string) *fakeConn {
	c := newFakeConn(connID)
	h.Connect(c, Identity{UserID: userID, Username: username})
	return c
}

package message

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetly/meetly/backend-go/internal/auth"
	"github.com/meetly/meetly/backend-go/internal/realtime"
)

type memStore struct {
	mu        sync.Mutex
	users     map[string]bool
	msgs      []DirectMessage
	lastLimit int
	err       error
}

func newMemStore(users ...string) *memStore {
	m := &memStore{users: make(map[string]bool)}
	for _, u := range users {
		m.users[u] = true
	}
	return m
}

func (m *memStore) UserExists(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID], m.err
}

func (m *memStore) CreateMessage(_ context.Context, dm DirectMessage) (*DirectMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dm.CreatedAt = time.Now().Add(time.Duration(len(m.msgs)) * time.Millisecond)
	m.msgs = append(m.msgs, dm)
	return &dm, nil
}

func (m *memStore) Conversation(_ context.Context, a, b string, limit int) ([]DirectMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []DirectMessage
	for _, dm := range m.msgs {
		if (dm.SenderID == a && dm.RecipientID == b) || (dm.SenderID == b && dm.RecipientID == a) {
			out = append(out, dm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]string
	msgs  []*realtime.Message
}

func (r *recordingNotifier) SendToUsers(userIDs []string, msg *realtime.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userIDs)
	r.msgs = append(r.msgs, msg)
}

func TestSendNotifiesBothParticipants(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewService(newMemStore("user_a", "user_b"), notifier)

	dm, err := svc.Send(context.Background(), "user_a", "user_b", "hello there")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dm.ID, "dm_"))

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, []string{"user_a", "user_b"}, notifier.calls[0])
	assert.Equal(t, realtime.TypeUserMessage, notifier.msgs[0].Type)

	var pushed DirectMessage
	require.NoError(t, json.Unmarshal(notifier.msgs[0].Payload, &pushed))
	assert.Equal(t, dm.ID, pushed.ID)
	assert.Equal(t, "hello there", pushed.Body)
}

func TestSendValidation(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	store := newMemStore("user_a", "user_b")
	svc := NewService(store, notifier)

	_, err := svc.Send(ctx, "user_a", "user_b", "  ")
	assert.ErrorIs(t, err, ErrInvalidBody)

	_, err = svc.Send(ctx, "user_a", "user_b", strings.Repeat("y", maxBodyLength+1))
	assert.ErrorIs(t, err, ErrInvalidBody)

	_, err = svc.Send(ctx, "user_a", "user_ghost", "hi")
	assert.ErrorIs(t, err, ErrRecipientNotFound)

	store.err = errors.New("db down")
	_, err = svc.Send(ctx, "user_a", "user_b", "hi")
	assert.Error(t, err)

	assert.Empty(t, notifier.calls, "failed sends push nothing")
}

func TestConversationLimits(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("user_a", "user_b", "user_c")
	svc := NewService(store, &recordingNotifier{})

	for _, body := range []string{"one", "two", "three"} {
		_, err := svc.Send(ctx, "user_a", "user_b", body)
		require.NoError(t, err)
	}
	_, err := svc.Send(ctx, "user_c", "user_a", "unrelated")
	require.NoError(t, err)

	msgs, err := svc.Conversation(ctx, "user_b", "user_a", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, store.lastLimit)
	require.Len(t, msgs, 3)
	assert.Equal(t, "three", msgs[0].Body)

	_, err = svc.Conversation(ctx, "user_a", "user_b", 10_000)
	require.NoError(t, err)
	assert.Equal(t, maxLimit, store.lastLimit)

	msgs, err = svc.Conversation(ctx, "user_b", "user_c", 5)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestHandlerSendAndConversation(t *testing.T) {
	svc := NewService(newMemStore("user_a", "user_b"), &recordingNotifier{})
	h := NewHandler(svc)
	asAlice := func(r *http.Request) *http.Request {
		return r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{UserID: "user_a", Username: "alice"}))
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing recipient", `{"body":"hi"}`, http.StatusBadRequest},
		{"unknown recipient", `{"recipientId":"user_zzz","body":"hi"}`, http.StatusNotFound},
		{"empty body", `{"recipientId":"user_b","body":""}`, http.StatusBadRequest},
		{"sent", `{"recipientId":"user_b","body":"hi"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := asAlice(httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(tt.body)))
			rec := httptest.NewRecorder()
			h.Send(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	req := asAlice(mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/messages/user_b?limit=abc", nil), map[string]string{"userId": "user_b"}))
	rec := httptest.NewRecorder()
	h.Conversation(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = asAlice(mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/messages/user_b?limit=10", nil), map[string]string{"userId": "user_b"}))
	rec = httptest.NewRecorder()
	h.Conversation(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var msgs []DirectMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Body)
}

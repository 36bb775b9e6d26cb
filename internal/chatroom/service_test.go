package chatroom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetly/meetly/backend-go/internal/auth"
	"github.com/meetly/meetly/backend-go/internal/realtime"
	"github.com/meetly/meetly/backend-go/internal/typeid"
)

type memStore struct {
	mu    sync.Mutex
	rooms []Room
	err   error
}

func (m *memStore) ListRooms(context.Context) ([]Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]Room(nil), m.rooms...), nil
}

func (m *memStore) CreateRoom(_ context.Context, r Room) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rooms {
		if existing.Name == r.Name {
			return nil, &pgconn.PgError{Code: "23505", ConstraintName: "rooms_name_key"}
		}
	}
	r.CreatedAt = time.Now()
	m.rooms = append(m.rooms, r)
	return &r, nil
}

func (m *memStore) GetRoom(_ context.Context, id string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.rooms {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&memStore{})

	room, err := svc.Create(ctx, "  general ", "user_a")
	require.NoError(t, err)
	assert.Equal(t, "general", room.Name)
	require.NoError(t, typeid.Validate(room.ID, typeid.PrefixRoom))

	_, err = svc.Create(ctx, "general", "user_b")
	assert.ErrorIs(t, err, ErrNameTaken)

	_, err = svc.Create(ctx, "   ", "user_a")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = svc.Create(ctx, strings.Repeat("x", maxNameLength+1), "user_a")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestServiceListEmpty(t *testing.T) {
	rooms, err := NewService(&memStore{}).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rooms)
	assert.Empty(t, rooms)
}

func TestServiceExists(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	svc := NewService(store)
	room, err := svc.Create(ctx, "general", "user_a")
	require.NoError(t, err)

	assert.NoError(t, svc.Exists(ctx, room.ID))
	assert.ErrorIs(t, svc.Exists(ctx, typeid.NewRoomID()), ErrNotFound)
	assert.ErrorIs(t, svc.Exists(ctx, "general"), ErrNotFound, "malformed ids never hit the store")

	store.err = errors.New("connection reset")
	err = svc.Exists(ctx, room.ID)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

type fakeOccupancy struct{}

func (fakeOccupancy) Rooms() []realtime.RoomOccupancy {
	return []realtime.RoomOccupancy{{RoomID: "room_x", Users: 2, Connections: 3}}
}

func (fakeOccupancy) Members(string) []realtime.Member {
	return []realtime.Member{{UserID: "user_a", Username: "alice"}}
}

func TestHandlerCreateAndMembers(t *testing.T) {
	svc := NewService(&memStore{})
	h := NewHandler(svc, fakeOccupancy{})

	req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{"name":"general"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "user_a", Username: "alice"}))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var room Room
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&room))
	assert.Equal(t, "user_a", room.CreatedBy)

	rec = httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{"name":"general"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"roomId": room.ID})
	rec = httptest.NewRecorder()
	h.Members(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var members []realtime.Member
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&members))
	assert.Equal(t, []realtime.Member{{UserID: "user_a", Username: "alice"}}, members)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"roomId": typeid.NewRoomID()})
	rec = httptest.NewRecorder()
	h.Members(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Active(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connections":3`)
}

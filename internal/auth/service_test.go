package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	mu    sync.Mutex
	users map[string]UserRecord
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]UserRecord)}
}

func (m *memStore) CreateUser(_ context.Context, u UserRecord) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return nil, &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
		}
		if existing.Username == u.Username {
			return nil, &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}
		}
	}
	u.CreatedAt = time.Now()
	m.users[u.ID] = u
	return &u, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func newTestService() *Service {
	svc := NewService(newMemStore(), "test-secret", time.Hour)
	svc.bcryptCost = bcrypt.MinCost
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	reg, err := svc.Register(ctx, "alice@example.com", "correct horse", "alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reg.User.ID, "user_"))
	assert.Equal(t, "alice", reg.User.Username)

	id, err := svc.ValidateToken(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: reg.User.ID, Username: "alice"}, id)

	login, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, reg.User, login.User)

	_, err = svc.Login(ctx, "alice@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, " Alice@Example.COM", "correct horse")
	assert.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name, email, password, username string
	}{
		{"bad email", "alice", "password1", "alice"},
		{"empty email", "  ", "password1", "alice"},
		{"short username", "a@example.com", "password1", "al"},
		{"username with space", "a@example.com", "password1", "al ice"},
		{"short password", "a@example.com", "pw", "alice"},
		{"long password", "a@example.com", strings.Repeat("p", 73), "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.email, tt.password, tt.username)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRegisterConflicts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Register(ctx, "alice@example.com", "password1", "alice")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice@example.com", "password1", "alice2")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Register(ctx, "other@example.com", "password1", "alice")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := newTestService()

	expired := newTestService()
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	oldToken, err := expired.issueToken("user_x", "x")
	require.NoError(t, err)

	otherKey := NewService(newMemStore(), "another-secret", time.Hour)
	foreign, err := otherKey.issueToken("user_x", "x")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user_x"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"username": "x"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":    "not.a.jwt",
		"expired":    oldToken,
		"wrong key":  foreign,
		"alg none":   none,
		"no subject": noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestGetUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	reg, err := svc.Register(ctx, "bob@example.com", "password1", "bob")
	require.NoError(t, err)

	user, err := svc.GetUser(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", user.Email)

	_, err = svc.GetUser(ctx, "user_missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthMiddleware(t *testing.T) {
	svc := newTestService()
	token, err := svc.issueToken("user_abc", "alice")
	require.NoError(t, err)

	var got Identity
	h := svc.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"empty token", "Bearer  ", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, Identity{UserID: "user_abc", Username: "alice"}, got)
}

package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/meetly/meetly/backend-go/internal/typeid"
)

// Authenticator resolves a bearer token to a verified identity.
type Authenticator func(ctx context.Context, token string) (Identity, error)

// Server upgrades authenticated HTTP requests to realtime connections.
type Server struct {
	hub            *Hub
	authenticate   Authenticator
	rooms          RoomChecker
	originPatterns []string
	sendBuffer     int
}

func NewServer(hub *Hub, authenticate Authenticator, rooms RoomChecker, originPatterns []string, sendBuffer int) *Server {
	return &Server{
		hub:            hub,
		authenticate:   authenticate,
		rooms:          rooms,
		originPatterns: originPatterns,
		sendBuffer:     sendBuffer,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	identity, err := s.authenticate(r.Context(), token)
	if err != nil || identity.UserID == "" || identity.Username == "" {
		slog.Debug("websocket auth failed", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := NewClient(s.hub, conn, identity, typeid.NewConnectionID(), s.sendBuffer, s.rooms)
	s.hub.Connect(client, identity)

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}

// bearerToken reads the token from the query string, which browsers must use
// for websockets, or from an Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gorilla/mux"

	"github.com/meetly/meetly/backend-go/internal/auth"
	"github.com/meetly/meetly/backend-go/internal/calendar"
	"github.com/meetly/meetly/backend-go/internal/chatroom"
	"github.com/meetly/meetly/backend-go/internal/config"
	"github.com/meetly/meetly/backend-go/internal/db"
	"github.com/meetly/meetly/backend-go/internal/message"
	mw "github.com/meetly/meetly/backend-go/internal/middleware"
	"github.com/meetly/meetly/backend-go/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connect to database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub()

	authService := auth.NewService(auth.NewPostgresStore(pool), cfg.JWTSecret, cfg.TokenTTL)
	authHandler := auth.NewHandler(authService)

	roomService := chatroom.NewService(chatroom.NewPostgresStore(pool))
	roomHandler := chatroom.NewHandler(roomService, hub)

	messageService := message.NewService(message.NewPostgresStore(pool), hub)
	messageHandler := message.NewHandler(messageService)

	calendarService := calendar.NewService(calendar.NewPostgresStore(pool), hub)
	calendarHandler := calendar.NewHandler(calendarService)

	wsServer := realtime.NewServer(hub, authenticator(authService), roomService.Exists, cfg.OriginPatterns(), cfg.SendBuffer)

	r := mux.NewRouter()

	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS(cfg.Origins()))

	r.HandleFunc("/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	r.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	r.Handle("/ws", wsServer).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.AuthMiddleware)

	api.HandleFunc("/me", authHandler.Me).Methods("GET")

	api.HandleFunc("/rooms", roomHandler.List).Methods("GET")
	api.HandleFunc("/rooms", roomHandler.Create).Methods("POST")
	api.HandleFunc("/rooms/active", roomHandler.Active).Methods("GET")
	api.HandleFunc("/rooms/{roomId}/members", roomHandler.Members).Methods("GET")

	api.HandleFunc("/messages", messageHandler.Send).Methods("POST")
	api.HandleFunc("/messages/{userId}", messageHandler.Conversation).Methods("GET")

	api.HandleFunc("/events", calendarHandler.List).Methods("GET")
	api.HandleFunc("/events", calendarHandler.Create).Methods("POST")
	api.HandleFunc("/events/{eventId}", calendarHandler.Update).Methods("PUT")
	api.HandleFunc("/events/{eventId}", calendarHandler.Delete).Methods("DELETE")

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// The pool stays open until in-flight requests have drained.
	httpDone := make(chan struct{})

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			defer close(httpDone)
			return srv.Shutdown(ctx)
		},
		"realtime-hub": func(ctx context.Context) error {
			hub.Shutdown("server shutting down")
			return nil
		},
		"postgres": func(ctx context.Context) error {
			select {
			case <-httpDone:
			case <-ctx.Done():
			}
			pool.Close()
			return nil
		},
	})

	exitCode := <-wait
	slog.Info("server stopped", "exit_code", exitCode)
	os.Exit(exitCode)
}

// authenticator adapts token validation to the realtime server. Identities
// without a username are refused.
func authenticator(svc *auth.Service) realtime.Authenticator {
	return func(_ context.Context, token string) (realtime.Identity, error) {
		id, err := svc.ValidateToken(token)
		if err != nil {
			return realtime.Identity{}, err
		}
		if id.UserID == "" || id.Username == "" {
			return realtime.Identity{}, auth.ErrInvalidToken
		}
		return realtime.Identity{UserID: id.UserID, Username: id.Username}, nil
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

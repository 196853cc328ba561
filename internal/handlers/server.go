// internal/handlers/server.go
package handlers

import (
	"net/http"

	"github.com/qrfun/qrfun-service/internal/auth"
	"github.com/qrfun/qrfun-service/internal/engine"
	"github.com/qrfun/qrfun-service/internal/middleware"
	"github.com/qrfun/qrfun-service/internal/session"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/sirupsen/logrus"
)

// Server holds everything the HTTP and websocket handlers need.
type Server struct {
	Engine   *engine.Engine
	Sessions *session.Manager
	Store    store.Store
	Signer   *auth.Signer // nil disables token issuing and checking
	Log      *logrus.Logger

	// AllowedOrigins feeds websocket.AcceptOptions.OriginPatterns.
	AllowedOrigins []string
	// AuthRequired rejects join_room frames that carry no token.
	AuthRequired bool
}

// Routes builds the service mux, every route wrapped in LogMiddleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rooms", s.CreateRoomHandler)
	mux.HandleFunc("POST /rooms/{code}/join", s.JoinRoomHandler)
	mux.HandleFunc("GET /rooms/{code}", s.RoomSummaryHandler)
	mux.HandleFunc("GET /ws", s.WSHandler)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"connections": s.Sessions.Count(),
		})
	})
	return middleware.LogMiddleware(s.Log)(mux)
}

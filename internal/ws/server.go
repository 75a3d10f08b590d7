package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/gfnviewer/queuewatch/internal/auth"
	"github.com/gfnviewer/queuewatch/internal/dispatch"
	"github.com/gfnviewer/queuewatch/internal/logwatch"
	"github.com/gfnviewer/queuewatch/internal/state"
)

const tokenHeader = "X-Queuewatch-Token"

// Controller starts and stops tracking sessions.
type Controller interface {
	Start(ctx context.Context, actor string) error
	Stop(actor string) error
}

type Server struct {
	controller     Controller
	store          *state.Store
	broadcaster    *Broadcaster
	auth           *auth.Authenticator
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	logger         *slog.Logger
}

func NewServer(controller Controller, store *state.Store, broadcaster *Broadcaster, authn *auth.Authenticator, allowedOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		controller:     controller,
		store:          store,
		broadcaster:    broadcaster,
		auth:           authn,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		logger:         logger,
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/whoami", s.handleWhoami)
	mux.HandleFunc("POST /api/watch", s.handleStartWatch)
	mux.HandleFunc("DELETE /api/watch", s.handleStopWatch)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r); !ok {
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade error", "error", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		s.logger.Warn("ws client rejected", "remote", r.RemoteAddr, "error", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}
	s.logger.Info("websocket client connected", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (s *Server) handleStartWatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorizeAdmin(w, r)
	if !ok {
		return
	}

	err := s.controller.Start(r.Context(), id.User)
	switch {
	case errors.Is(err, dispatch.ErrAlreadyTracking):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, logwatch.ErrLogNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("start tracking failed", "user", id.User, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, s.store.Snapshot())
}

func (s *Server) handleStopWatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authorizeAdmin(w, r)
	if !ok {
		return
	}

	if err := s.controller.Stop(id.User); err != nil {
		if errors.Is(err, dispatch.ErrNotTracking) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

// authorize writes a 401 and reports false when the request carries no
// valid token.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, err := s.auth.Verify(requestToken(r))
	if err != nil {
		s.logger.Debug("unauthorized request", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Identity{}, false
	}
	return id, true
}

func (s *Server) authorizeAdmin(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := s.authorize(w, r)
	if !ok {
		return id, false
	}
	if !id.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return id, false
	}
	return id, true
}

func requestToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if token := r.Header.Get(tokenHeader); token != "" {
		return token
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

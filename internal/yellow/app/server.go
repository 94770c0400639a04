package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/bdobrica/yellow/common/version"
	"github.com/bdobrica/yellow/internal/yellow/bot"
	"github.com/bdobrica/yellow/internal/yellow/identity"
	"github.com/bdobrica/yellow/internal/yellow/store"
)

// maxBodyBytes bounds the JSON body of POST /handle.
const maxBodyBytes = 64 << 10

var tokenPattern = regexp.MustCompile(`^Token ([a-f0-9]+)$`)

// StatusProvider reports what the store holds.
type StatusProvider interface {
	CountRooms(ctx context.Context) (map[store.RoomKind]int, error)
	CountIdentities(ctx context.Context) (int, error)
}

// TokenIdentities resolves and forgets API token holders.
type TokenIdentities interface {
	ByToken(ctx context.Context, token string) (*identity.Identity, error)
	Delete(ctx context.Context, alias string) error
}

// CourseRooms hands out one web room per course.
type CourseRooms interface {
	EnsureCourseRooms(ctx context.Context, courses []bot.Course) ([]*store.Room, error)
}

// Server exposes health, status and the chat API over HTTP. It is optional;
// the bot runs without it when no address is configured.
type Server struct {
	addr       string
	status     StatusProvider
	identities TokenIdentities
	rooms      CourseRooms
	engine     *Engine
	startedAt  time.Time
	server     *http.Server
	mux        *http.ServeMux
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Commit        string    `json:"commit"`
	BuildTime     string    `json:"build_time"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSecs    float64   `json:"uptime_seconds"`
	MatrixRooms   int       `json:"matrix_rooms"`
	WebRooms      int       `json:"web_rooms"`
	IdentityCount int       `json:"identity_count"`
}

type handleRequest struct {
	Text   string `json:"text"`
	RoomID string `json:"room_id,omitempty"`
}

type handleResponse struct {
	Text string `json:"text"`
}

type roomResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates the HTTP server (does not start it).
func NewServer(addr string, status StatusProvider, identities TokenIdentities, rooms CourseRooms, engine *Engine) *Server {
	s := &Server{
		addr:       addr,
		status:     status,
		identities: identities,
		rooms:      rooms,
		engine:     engine,
		startedAt:  time.Now(),
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /handle", s.authenticated(s.handleMessage))
	s.mux.HandleFunc("GET /rooms", s.authenticated(s.handleRooms))
	s.mux.HandleFunc("DELETE /session", s.authenticated(s.handleLogout))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start listens in the background and returns once the port is open. The
// server shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  s.startedAt,
		UptimeSecs: time.Since(s.startedAt).Seconds(),
	}
	if counts, err := s.status.CountRooms(r.Context()); err == nil {
		resp.MatrixRooms = counts[store.RoomMatrix]
		resp.WebRooms = counts[store.RoomWeb]
	} else {
		slog.Warn("status: count rooms", "err", err)
	}
	if n, err := s.status.CountIdentities(r.Context()); err == nil {
		resp.IdentityCount = n
	} else {
		slog.Warn("status: count identities", "err", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, ident *identity.Identity)

// authenticated resolves the "Authorization: Token <hex>" header.
func (s *Server) authenticated(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := tokenPattern.FindStringSubmatch(r.Header.Get("Authorization"))
		if m == nil {
			writeError(w, http.StatusUnauthorized, "missing or malformed token")
			return
		}
		ident, err := s.identities.ByToken(r.Context(), m[1])
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unknown token")
			return
		}
		if err != nil {
			slog.Error("token lookup failed", "err", err)
			writeError(w, http.StatusInternalServerError, "identity lookup failed")
			return
		}
		next(w, r, ident)
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, ident *identity.Identity) {
	var req handleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	resp, err := s.engine.Handle(r.Context(), ident, req.Text, req.RoomID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, handleResponse{Text: FormatHTML(resp.Text)})
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request, ident *identity.Identity) {
	providers, err := s.engine.ProvidersFor(ident)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	courses, err := providers.Courses.Courses(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	rooms, err := s.rooms.EnsureCourseRooms(r.Context(), courses)
	if err != nil {
		slog.Error("web rooms failed", "alias", ident.Alias, "err", err)
		writeError(w, http.StatusInternalServerError, "could not create rooms")
		return
	}

	out := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomResponse{
			ID:   room.ID,
			Name: fmt.Sprintf("%s (%s)", room.CourseName, room.CourseID),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, ident *identity.Identity) {
	if err := s.identities.Delete(r.Context(), ident.Alias); err != nil && !errors.Is(err, identity.ErrNotFound) {
		slog.Error("logout failed", "alias", ident.Alias, "err", err)
		writeError(w, http.StatusInternalServerError, "could not delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

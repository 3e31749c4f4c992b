package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tycoon/internal/config"
	"tycoon/internal/game"
	"tycoon/internal/session"
	"tycoon/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	cfg      config.ServerConfig
	log      *slog.Logger
	sessions *session.Registry
	metrics  http.Handler
	mux      *chi.Mux
}

func New(cfg config.ServerConfig, logger *slog.Logger, sessions *session.Registry, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		sessions: sessions,
		metrics:  promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Shutdown closes every open session, which writes their final saves.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.sessions.CloseAll(ctx)
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": s.sessions.Len()})
		})
		r.Method(http.MethodGet, "/metrics", s.metrics)
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		// Websocket connections outlive any request timeout.
		r.Get("/{id}/ws", s.handleWebsocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))
			r.Post("/", s.handleOpenSession)
			r.Get("/{id}", s.handleSessionState)
			r.Post("/{id}/commands", s.handleCommand)
			r.Delete("/{id}", s.handleCloseSession)
		})
	})
}

type sessionView struct {
	Session  string            `json:"session"`
	Slot     string            `json:"slot"`
	Snapshot *game.Snapshot    `json:"snapshot,omitempty"`
	Opened   *session.Response `json:"opened,omitempty"`
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Slot string `json:"slot"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slot := strings.TrimSpace(in.Slot)
	if slot == "" {
		slot = "default"
	}
	sess, first, created, err := s.sessions.Open(r.Context(), slot)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.log.Info("session opened over http", "session", sess.ID(), "slot", slot)
	}
	writeJSON(w, status, sessionView{Session: sess.ID(), Slot: sess.Slot(), Opened: &first})
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	snap := sess.Latest()
	writeJSON(w, http.StatusOK, sessionView{Session: sess.ID(), Slot: sess.Slot(), Snapshot: &snap})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var cmd session.Command
	if err := decodeJSON(r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cmd.ID == "" {
		cmd.ID = middleware.GetReqID(r.Context())
	}
	resp, err := sess.Do(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, commandStatus(resp.Err), resp)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func commandStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrUnknownType), errors.Is(err, game.ErrInvalidBulk):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrUnknownID):
		return http.StatusNotFound
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, store.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

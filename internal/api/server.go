package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/benaskins/securestore/internal/audit"
	"github.com/benaskins/securestore/internal/health"
	"github.com/benaskins/securestore/internal/policy"
	"github.com/benaskins/securestore/internal/store"
)

// Request headers carrying caller identity and factor material.
const (
	HeaderActor    = "X-Securestore-Actor"
	HeaderPasscode = "X-Securestore-Passcode"
)

// DefaultActor is recorded for requests without an actor header.
const DefaultActor = "api"

const (
	defaultMaxBody     = 1 << 20
	defaultAuditRecent = 50
)

// AuditSource serves recently recorded audit records. *audit.Logger
// implements it.
type AuditSource interface {
	Recent(n int) []audit.Record
}

// Server serves the securestore REST API over a Unix socket.
type Server struct {
	store    *store.Store
	checks   map[string]health.Checker
	audit    AuditSource
	maxBody  int64
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
}

// Options configures a Server. Store is required.
type Options struct {
	Store *store.Store
	// Checks are reported by GET /v1/health.
	Checks map[string]health.Checker
	// Audit, when set, is served by GET /v1/audit.
	Audit AuditSource
	// MaxBodyBytes bounds request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
}

// NewServer creates an API server backed by the given store.
func NewServer(opts Options) *Server {
	s := &Server{
		store:   opts.Store,
		checks:  opts.Checks,
		audit:   opts.Audit,
		maxBody: opts.MaxBodyBytes,
		logger:  slog.With("component", "api"),
	}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxBody
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/entries", s.listEntries)
	mux.HandleFunc("GET /v1/entries/{id}", s.getEntry)
	mux.HandleFunc("PUT /v1/entries/{id}", s.putEntry)
	mux.HandleFunc("DELETE /v1/entries/{id}", s.deleteEntry)
	mux.HandleFunc("GET /v1/entries/{id}/info", s.entryInfo)
	mux.HandleFunc("GET /v1/health", s.health)
	if s.audit != nil {
		mux.HandleFunc("GET /v1/audit", s.recentAudit)
	}

	s.server = &http.Server{Handler: mux, ConnContext: withOrigin}
	return s
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenUnix starts the server on a Unix socket.
func (s *Server) ListenUnix(path string) error {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("API listening", "socket", path)
	return s.server.Serve(ln)
}

// ListenTCP starts the server on a TCP address.
func (s *Server) ListenTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("API listening", "addr", addr)
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func actor(r *http.Request) string {
	if a := r.Header.Get(HeaderActor); a != "" {
		return a
	}
	return DefaultActor
}

func (s *Server) requestContext(r *http.Request) context.Context {
	return store.WithActor(r.Context(), actor(r))
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"entries": ids})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	caller := policy.Caller{Actor: actor(r), Origin: origin(r)}
	if p := r.Header.Get(HeaderPasscode); p != "" {
		caller.Passcode = []byte(p)
	}

	value, err := s.store.Get(s.requestContext(r), r.PathValue("id"), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(value)
}

func (s *Server) putEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tag := policy.TagNone
	if raw := r.URL.Query().Get("policy"); raw != "" {
		tag = policy.Tag(raw)
	}

	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx := s.requestContext(r)
	if err := s.store.Put(ctx, id, value, tag); err != nil {
		s.writeError(w, err)
		return
	}
	info, err := s.store.Info(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if info.Version == 1 {
		status = http.StatusCreated
	}
	writeJSON(w, status, info)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(s.requestContext(r), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) entryInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Info(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	report := health.Run(s.checks)
	status := http.StatusOK
	if report.Status != health.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) recentAudit(w http.ResponseWriter, r *http.Request) {
	n := defaultAuditRecent
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be a positive integer"})
			return
		}
		n = v
	}
	records := s.audit.Recent(n)
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string][]audit.Record{"records": records})
}

// statusFor maps store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, store.ErrPolicyViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrAuthenticationTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, store.ErrKeystoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrStorageFull):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

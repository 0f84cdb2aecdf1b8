// Package api serves the pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/pipeline"
)

const (
	defaultMaxBodyBytes = 1 << 20
	readyTimeout        = 2 * time.Second
)

// Asker runs one question through the pipeline.
type Asker interface {
	Run(ctx context.Context, question string) *pipeline.Response
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Logger    *slog.Logger
	Asker     Asker
	Tables    catalog.TableLister
	Validator pipeline.Validator
	// Ready is optional; /readyz always succeeds without it.
	Ready Pinger

	AllowedOrigins []string
	MaxBodyBytes   int64
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Asker == nil {
		return errors.New("asker is required")
	}
	if c.Tables == nil {
		return errors.New("tables is required")
	}
	if c.Validator == nil {
		return errors.New("validator is required")
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return nil
}

type Server struct {
	log    *slog.Logger
	cfg    Config
	router chi.Router
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate api config: %w", err)
	}
	s := &Server{log: cfg.Logger, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}).Handler)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Route("/api", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/tables", s.handleTables)
		r.Post("/validate", s.handleValidate)
	})
	s.router = r
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

type QueryRequest struct {
	Query string `json:"query"`
}

type TablesResponse struct {
	Tables []string `json:"tables"`
}

type ValidateRequest struct {
	SQL string `json:"sql"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleQuery answers with the pipeline response. Pipeline failures are
// reported in the body with status 200; only malformed requests get 400.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Query is required"})
		return
	}
	resp := s.cfg.Asker.Run(r.Context(), req.Query)
	writeJSON(w, http.StatusOK, resp)
}

// handleTables lists tables. With ?refresh=true a cached list is dropped
// first.
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if inv, ok := s.cfg.Tables.(catalog.Invalidator); ok {
			inv.Invalidate()
		}
	}
	tables, err := s.cfg.Tables.ListTables(r.Context())
	if err != nil {
		s.log.Error("api: failed to list tables", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list tables"})
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, TablesResponse{Tables: tables})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Validator.Validate(req.SQL))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.cfg.Ready.Ping(ctx); err != nil {
			s.log.Warn("api: readiness check failed", "error", err)
			http.Error(w, "database not reachable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

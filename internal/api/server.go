// Package api exposes the command pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/KafClaw/taskclaw/internal/agent"
	"github.com/KafClaw/taskclaw/internal/executor"
	"github.com/KafClaw/taskclaw/internal/timeline"
)

// Processor runs one command through the pipeline.
type Processor interface {
	Process(ctx context.Context, req agent.Request) executor.Result
}

// Options configures a Server.
type Options struct {
	Addr      string
	AuthToken string
	Processor Processor
	// Timeline is optional; history endpoints return 503 without it.
	Timeline       *timeline.TimelineService
	CommandTimeout time.Duration
}

// Server is the HTTP command API.
type Server struct {
	router    *chi.Mux
	http      *http.Server
	authToken string
	processor Processor
	timeline  *timeline.TimelineService
	timeout   time.Duration
}

type commandRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender,omitempty"`
	DryRun bool   `json:"dryRun"`
}

type commandResponse struct {
	TraceID string `json:"traceId"`
	executor.Result
}

// NewServer builds the router. Call ListenAndServe to start serving.
func NewServer(opts Options) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		authToken: strings.TrimSpace(opts.AuthToken),
		processor: opts.Processor,
		timeline:  opts.Timeline,
		timeout:   opts.CommandTimeout,
	}
	if s.timeout <= 0 {
		s.timeout = 2 * time.Minute
	}
	s.routes()
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/commands", s.handleCreateCommand)
		r.Get("/commands", s.handleListCommands)
		r.Get("/commands/{traceID}", s.handleGetCommand)
		r.Get("/stats", s.handleStats)
	})
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API: listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if token != s.authToken {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	sender := req.Sender
	if sender == "" {
		sender = r.RemoteAddr
	}
	traceID := uuid.NewString()
	w.Header().Set("X-Trace-Id", traceID)
	slog.Debug("API: command received", "trace_id", traceID, "request_id", middleware.GetReqID(r.Context()))
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res := s.processor.Process(ctx, agent.Request{
		Text:    req.Text,
		Sender:  sender,
		Channel: "api",
		TraceID: traceID,
		DryRun:  req.DryRun,
	})
	writeJSON(w, http.StatusOK, commandResponse{TraceID: traceID, Result: res})
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.timeline == nil {
		writeError(w, http.StatusServiceUnavailable, "timeline disabled")
		return
	}
	q := r.URL.Query()
	filter := timeline.CommandFilter{
		Sender:    q.Get("sender"),
		Channel:   q.Get("channel"),
		OnlyFails: q.Get("failed") == "true",
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}
	records, err := s.timeline.ListCommands(filter)
	if err != nil {
		slog.Error("API: list commands failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	if s.timeline == nil {
		writeError(w, http.StatusServiceUnavailable, "timeline disabled")
		return
	}
	rec, err := s.timeline.GetCommandByTraceID(chi.URLParam(r, "traceID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "command not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.timeline == nil {
		writeError(w, http.StatusServiceUnavailable, "timeline disabled")
		return
	}
	stats, err := s.timeline.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

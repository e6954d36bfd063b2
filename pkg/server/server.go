// Package server exposes the control loop over a small HTTP API: current
// status, the persisted daily record, archived history, and a manual cycle
// trigger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"

	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/manager"
	"github.com/peakshed/peakshed/pkg/storage"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Server handles the HTTP API for the control loop.
type Server struct {
	manager *manager.Manager
	storage storage.Database

	listenAddr string
	httpServer *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(m *manager.Manager, s storage.Database) *Server {
	srv := &Server{
		manager: m,
		storage: s,
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/status", s.handleStatus)
	apiMux.HandleFunc("GET /api/state", s.handleState)
	apiMux.HandleFunc("GET /api/history", s.handleHistory)
	apiMux.HandleFunc("POST /api/trigger", s.handleTrigger)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiMux)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return gziphandler.GzipHandler(mux)
}

// Run starts the HTTP server and blocks until the context is canceled or an
// error occurs. It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.manager.Status())
}

// handleState returns the current day's persisted record.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.storage.LoadState(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, "no state recorded yet", http.StatusNotFound)
		return
	} else if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to load state", slog.Any("error", err))
		writeJSONError(w, "failed to load state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, state)
}

// handleHistory returns the archived record for the date query parameter.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if !dateRe.MatchString(date) {
		writeJSONError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	state, err := s.storage.LoadArchivedDay(r.Context(), date)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, "no record for date", http.StatusNotFound)
		return
	} else if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to load archived day",
			slog.String("date", date), slog.Any("error", err))
		writeJSONError(w, "failed to load archived day", http.StatusInternalServerError)
		return
	}
	writeJSON(w, state)
}

// handleTrigger runs one cycle immediately. A cycle already in flight is a
// conflict, not a queue.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	res, err := s.manager.RunCycle(r.Context())
	if errors.Is(err, manager.ErrCycleInProgress) {
		writeJSONError(w, "cycle already in progress", http.StatusConflict)
		return
	} else if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "manual cycle failed", slog.Any("error", err))
		writeJSONError(w, "cycle failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

// Package api exposes the run trigger over HTTP: start a session, poll it,
// or follow its progress as newline-delimited JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"bizscout/config"
	"bizscout/models"
	"bizscout/scraper"
)

// Runner is the orchestrator as seen by the API.
type Runner interface {
	Run(ctx context.Context, req scraper.RunRequest, onEvent scraper.EventFunc) (*models.ScrapeSession, error)
	Sources() []string
}

// Pausable is implemented by runners whose scheduled runs can be held.
type Pausable interface {
	Pause()
	Resume()
	IsPaused() bool
}

type Server struct {
	runner   Runner
	defaults config.RunOptions
	tracker  *Tracker
	router   *mux.Router

	// background runs outlive the request that started them
	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewServer(ctx context.Context, runner Runner, defaults config.RunOptions) *Server {
	s := &Server{
		runner:   runner,
		defaults: defaults,
		tracker:  NewTracker(),
		router:   mux.NewRouter(),
		baseCtx:  ctx,
	}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/sources", s.handleSources).Methods(http.MethodGet)
	s.router.HandleFunc("/api/runs", s.handleStartRun).Methods(http.MethodPost)
	s.router.HandleFunc("/api/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	s.router.HandleFunc("/api/runs/{id}/events", s.handleEvents).Methods(http.MethodGet)
	if p, ok := runner.(Pausable); ok {
		s.router.HandleFunc("/api/scheduler", s.handleSchedulerState(p, nil)).Methods(http.MethodGet)
		s.router.HandleFunc("/api/scheduler/pause", s.handleSchedulerState(p, p.Pause)).Methods(http.MethodPost)
		s.router.HandleFunc("/api/scheduler/resume", s.handleSchedulerState(p, p.Resume)).Methods(http.MethodPost)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Wait blocks until background runs started through the API are done.
func (s *Server) Wait() {
	s.wg.Wait()
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

type runBody struct {
	Sources []string          `json:"sources"`
	Options config.RunOptions `json:"options"`
}

type runAccepted struct {
	SessionID string `json:"session_id"`
	StatusURL string `json:"status_url"`
	EventsURL string `json:"events_url"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sources": s.runner.Sources()})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	body := runBody{Options: s.defaults}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := body.Options.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := scraper.RunRequest{
		SessionID: uuid.NewString(),
		Sources:   body.Sources,
		Options:   body.Options,
	}
	s.tracker.Start(models.NewScrapeSession(req.SessionID, time.Now().UTC()))

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		session, err := s.run(r.Context(), req)
		status := http.StatusOK
		if err != nil {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, session)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(s.baseCtx, req)
	}()

	writeJSON(w, http.StatusAccepted, runAccepted{
		SessionID: req.SessionID,
		StatusURL: "/api/runs/" + req.SessionID,
		EventsURL: "/api/runs/" + req.SessionID + "/events",
	})
}

func (s *Server) run(ctx context.Context, req scraper.RunRequest) (*models.ScrapeSession, error) {
	session, err := s.runner.Run(ctx, req, s.tracker.Record)
	if err != nil {
		log.Printf("API run %s failed: %v", req.SessionID, err)
	}
	if session != nil {
		s.tracker.Finish(session)
	}
	return session, err
}

// handleSchedulerState applies change, if any, and reports whether
// scheduled runs are paused. Runs started through the API are not affected.
func (s *Server) handleSchedulerState(p Pausable, change func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if change != nil {
			change()
		}
		writeJSON(w, http.StatusOK, map[string]bool{"paused": p.IsPaused()})
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	session, ok := s.tracker.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleEvents replays the session's events and then follows it until it
// reaches a terminal state or the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, _, _, ok := s.tracker.Since(id, 0); !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	next := 0

	for {
		events, done, changed, _ := s.tracker.Since(id, next)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return
			}
		}
		next += len(events)
		if flusher != nil {
			flusher.Flush()
		}
		if done {
			return
		}

		select {
		case <-changed:
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Package api exposes a Scheduler over HTTP for inspection and external
// control, mirroring the reference implementation's admin endpoints:
// GET /slots to list slot state, POST /tasks/{id}/keepalive and
// POST /tasks/{id}/stop to drive the two external signals a running task
// can send. Routing is gorilla/mux; the server itself is a
// lifecycle.Component so it can be started and stopped alongside the
// scheduler's own periodic loop.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	tasksemaphore "github.com/dolead/tasksemaphore"
	"github.com/dolead/tasksemaphore/l3"
	"github.com/dolead/tasksemaphore/lifecycle"
)

var logger = l3.Get()

// Server wraps a gorilla/mux router bound to a Scheduler as a
// lifecycle.Component.
type Server struct {
	*lifecycle.SimpleComponent
	opts       *Options
	scheduler  *tasksemaphore.Scheduler
	router     *mux.Router
	httpServer *http.Server
}

// NewServer builds a Server for scheduler, validating opts and wiring the
// fixed route table. Start/Stop are driven through the embedded
// lifecycle.SimpleComponent.
func NewServer(opts *Options, scheduler *tasksemaphore.Scheduler) (*Server, error) {
	if opts == nil {
		return nil, ErrNilOptions
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	if opts.PathPrefix != "" {
		router = router.PathPrefix(opts.PathPrefix).Subrouter()
	}

	httpServer := &http.Server{
		Handler:      router,
		Addr:         fmt.Sprintf("%s:%d", opts.ListenHost, opts.ListenPort),
		ReadTimeout:  time.Duration(opts.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(opts.WriteTimeout) * time.Millisecond,
	}

	s := &Server{
		opts:       opts,
		scheduler:  scheduler,
		router:     router,
		httpServer: httpServer,
	}
	s.SimpleComponent = &lifecycle.SimpleComponent{
		CompId: opts.ID,
		StartFunc: func() error {
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.ErrorF("api: server %q stopped: %v", opts.ID, err)
				}
			}()
			return nil
		},
		StopFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(ctx)
		},
	}

	router.HandleFunc("/slots", s.handleListSlots).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{id}/keepalive", s.handleKeepalive).Methods(http.MethodPost)
	router.HandleFunc("/tasks/{id}/stop", s.handleStop).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return s, nil
}

// Router exposes the underlying mux.Router, mainly so tests can drive
// requests through it directly without binding a real listener.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	snap, err := s.scheduler.Inspect(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleKeepalive(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	if err := s.scheduler.Keepalive(r.Context(), taskID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	if err := s.scheduler.Stop(r.Context(), taskID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, tasksemaphore.ErrWrongTaskID):
		return http.StatusNotFound
	case errors.Is(err, tasksemaphore.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WarnF("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

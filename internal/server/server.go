// Package server provides the local HTTP control surface for mukha.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mukha/internal/calibration"
	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/engine"
	"github.com/ayusman/mukha/internal/logging"
	"github.com/ayusman/mukha/internal/server/api"
	"github.com/ayusman/mukha/internal/store"
)

// Controller is the running application as seen by the HTTP layer.
type Controller interface {
	Status() engine.State
	Recalibrate()
	SkipCalibrationStage() calibration.Status
	SetPaused(paused bool)
	SetScroll(scroll bool)
	Config() *config.Config
	UpdateConfig(cfg *config.Config) error
	ReloadBindings() error
}

// Config holds the server configuration.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Controller Controller
	Hub        *TelemetryHub
	Log        logrus.FieldLogger
}

// Server represents the HTTP server for the mukha application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    logrus.FieldLogger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Log
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    logging.Component(log, "server"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if c := s.config.Controller; c != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.HandleFunc("/api/calibration/reset", s.post(func() any {
			c.Recalibrate()
			return c.Status()
		}))
		s.mux.HandleFunc("/api/calibration/skip", s.post(func() any {
			return c.SkipCalibrationStage()
		}))
		s.mux.HandleFunc("/api/pause", s.toggle(c.SetPaused, func(st engine.State) bool { return st.Paused }))
		s.mux.HandleFunc("/api/scroll", s.toggle(c.SetScroll, func(st engine.State) bool { return st.Scroll }))
		s.mux.HandleFunc("/api/config", s.handleConfig)
	}

	if s.config.Store != nil {
		var reload func() error
		if s.config.Controller != nil {
			reload = s.config.Controller.ReloadBindings
		}
		bindings := api.NewBindingHandler(s.config.Store, reload)
		s.mux.Handle("/api/bindings", bindings)
		s.mux.Handle("/api/bindings/", bindings)

		profiles := api.NewProfileHandler(s.config.Store)
		s.mux.Handle("/api/profiles", profiles)
		s.mux.Handle("/api/profiles/", profiles)

		s.mux.Handle("/api/events", api.NewEventHandler(s.config.Store))
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/telemetry", s.config.Hub)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	api.WriteJSON(w, http.StatusOK, s.config.Controller.Status())
}

// post wraps a body-less command endpoint.
func (s *Server) post(fn func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		api.WriteJSON(w, http.StatusOK, fn())
	}
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// toggle serves POST {"enabled": bool}. An empty body flips the current value.
func (s *Server) toggle(set func(bool), get func(engine.State) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req toggleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			api.WriteError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		next := !get(s.config.Controller.Status())
		if req.Enabled != nil {
			next = *req.Enabled
		}
		set(next)
		api.WriteJSON(w, http.StatusOK, s.config.Controller.Status())
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	c := s.config.Controller
	switch r.Method {
	case http.MethodGet:
		api.WriteJSON(w, http.StatusOK, c.Config())
	case http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "Failed to read body")
			return
		}
		next := c.Config()
		if err := next.Merge(body); err != nil {
			api.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := c.UpdateConfig(next); err != nil {
			api.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Info("Configuration updated over HTTP")
		api.WriteJSON(w, http.StatusOK, c.Config())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.config.Hub != nil {
		s.config.Hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

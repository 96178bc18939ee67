// Package server provides the HTTP API of the dashboard.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/grovetools/devdash/config"
	"github.com/grovetools/devdash/errors"
	"github.com/grovetools/devdash/internal/dashboard/project"
	"github.com/grovetools/devdash/util/pathutil"
	"github.com/grovetools/devdash/version"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Projects is the project service behind the API.
type Projects interface {
	List(ctx context.Context) ([]project.Project, error)
	Status(ctx context.Context, name string) (bool, error)
	Metadata(ctx context.Context, name string) (*project.Metadata, error)
	Launch(ctx context.Context, name string) (*project.LaunchResult, error)
	Close(ctx context.Context, name string) (*project.CloseResult, error)
	Restart(ctx context.Context, name string) (*project.LaunchResult, error)
	Logs(ctx context.Context, name string, limit int) (*project.LogsResult, error)
	Snapshot(ctx context.Context) ([]*project.Metadata, error)
}

// Memory forwards memory-shack tool calls.
type Memory interface {
	Call(ctx context.Context, tool string, args map[string]any) (any, error)
}

// RunningConfig is the configuration the daemon is currently using. It is
// exposed via /api/config so clients can verify what is active.
type RunningConfig struct {
	ConfigFile string         `json:"config_file,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	Version    string         `json:"version"`
	Config     *config.Config `json:"config"`
}

// Options wires a Server.
type Options struct {
	Projects Projects
	Memory   Memory
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// StaticDir holds the built UI; it is served when it exists.
	StaticDir      string
	StreamInterval time.Duration
	Logger         *logrus.Entry
}

// Server is the dashboard's HTTP server.
type Server struct {
	opts    Options
	logger  *logrus.Entry
	handler http.Handler

	mu            sync.RWMutex
	server        *http.Server
	runningConfig *RunningConfig
}

// New creates a Server and builds its routes.
func New(opts Options) *Server {
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = config.DefaultStreamInterval
	}
	s := &Server{opts: opts, logger: opts.Logger}
	s.handler = s.routes()
	return s
}

// SetRunningConfig replaces the configuration reported by /api/config.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningConfig = cfg
}

// Handler returns the API handler with its middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("GET /api/projects/{name}/status", s.handleStatus)
	mux.HandleFunc("GET /api/projects/{name}/metadata", s.handleMetadata)
	mux.HandleFunc("POST /api/projects/{name}/launch", s.handleLaunch)
	mux.HandleFunc("POST /api/projects/{name}/close", s.handleClose)
	mux.HandleFunc("POST /api/projects/{name}/stop", s.handleClose)
	mux.HandleFunc("POST /api/projects/{name}/restart", s.handleRestart)
	mux.HandleFunc("GET /api/projects/{name}/logs", s.handleLogs)

	mux.HandleFunc("POST /api/mcp/memory-shack", s.handleMemory)
	mux.HandleFunc("POST /api/mcp/chronicle", s.handleMemory)

	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)

	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}
	if s.opts.StaticDir != "" && pathutil.IsDir(s.opts.StaticDir) {
		mux.Handle("GET /", http.FileServer(http.Dir(s.opts.StaticDir)))
	}

	return s.recoverer(s.cors(mux))
}

// ListenAndServe listens on addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves the API on listener. It blocks until the server stops or fails.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           h2c.NewHandler(s.handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.WithField("addr", listener.Addr().String()).Info("Dashboard listening")
	err := srv.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// cors mirrors the permissive policy the UI dev server relies on.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"panic":  fmt.Sprint(rec),
				}).Error("Handler panicked")
				s.writeError(w, r, errors.New(errors.ErrCodeInternal, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string           `json:"error"`
	Code  errors.ErrorCode `json:"code"`
}

// writeError answers with {error, code}. Uncoded errors become INTERNAL_ERROR
// with a generic message; the cause is only logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	log := s.logger.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path, "status": status})
	if status >= http.StatusInternalServerError {
		log.Error("Request failed")
	} else {
		log.Debug("Request rejected")
	}
	writeJSON(w, status, errorBody{Error: errors.Message(err), Code: code})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.opts.Projects.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	running, err := s.opts.Projects.Status(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"running": running})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	m, err := s.opts.Projects.Metadata(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.Projects.Launch(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.Projects.Close(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.Projects.Restart(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > project.MaxLogLimit {
			s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput,
				fmt.Sprintf("limit must be an integer between 0 and %d", project.MaxLogLimit)))
			return
		}
		limit = n
	}
	res, err := s.opts.Projects.Logs(r.Context(), r.PathValue("name"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type memoryRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

type memoryResponse struct {
	Success bool       `json:"success"`
	Data    any        `json:"data"`
	Meta    memoryMeta `json:"meta"`
}

type memoryMeta struct {
	Tool       string `json:"tool"`
	DurationMs int64  `json:"durationMs"`
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	if s.opts.Memory == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeNotConfigured, "memory-shack is not configured"))
		return
	}

	var req memoryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.Tool == "" {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "tool is required"))
		return
	}

	start := time.Now()
	data, err := s.opts.Memory.Call(r.Context(), req.Tool, req.Arguments)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memoryResponse{
		Success: true,
		Data:    data,
		Meta:    memoryMeta{Tool: req.Tool, DurationMs: time.Since(start).Milliseconds()},
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cfg := s.runningConfig
	s.mu.RUnlock()
	if cfg == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeNotConfigured, "config not initialized"))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/apidispatch/internal/config"
	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/observability"
	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// Server hosts a dispatcher behind an HTTP listener. The dispatcher can
// be swapped at runtime, which configuration reloads use.
type Server struct {
	cfg        config.ServerConfig
	dispatcher atomic.Pointer[dispatch.Dispatcher]
	logger     observability.Logger
	httpServer *http.Server
	mux        *http.ServeMux
}

// ServerOption is a functional option for the server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger observability.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsEndpoint mounts a Prometheus handler for the gatherer at
// the given path.
func WithMetricsEndpoint(path string, gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// New creates a server hosting the given dispatcher.
func New(cfg config.ServerConfig, dispatcher *dispatch.Dispatcher, opts ...ServerOption) (*Server, error) {
	if dispatcher == nil {
		return nil, util.NewConfigError("server", "dispatcher is required")
	}

	s := &Server{
		cfg:    cfg,
		logger: observability.NopLogger(),
		mux:    http.NewServeMux(),
	}
	s.dispatcher.Store(dispatcher)

	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/", s.handleDispatch)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.mux,
		ReadTimeout:  cfg.ReadTimeout.Duration(),
		WriteTimeout: cfg.WriteTimeout.Duration(),
		IdleTimeout:  cfg.IdleTimeout.Duration(),
	}

	return s, nil
}

// SetDispatcher swaps the dispatcher serving subsequent requests.
// In-flight requests finish on the dispatcher they started with.
func (s *Server) SetDispatcher(dispatcher *dispatch.Dispatcher) {
	if dispatcher == nil {
		return
	}
	s.dispatcher.Store(dispatcher)
}

// Handler returns the server's root handler. Exposed for tests and for
// embedding the server under an existing mux.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening",
		observability.String("address", s.cfg.Address),
	)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	sw := util.NewStatusCapturingResponseWriter(w)

	result, err := s.dispatcher.Load().Handle(sw, r)
	switch {
	case err != nil:
		if sw.HeaderWritten {
			// Too late to change the response.
			return
		}
		s.writeJSON(sw, http.StatusInternalServerError,
			map[string]string{"message": "internal server error"})

	case result == nil:
		if sw.HeaderWritten {
			// A plugin or controller streamed the response itself.
			return
		}
		s.writeJSON(sw, http.StatusNotFound,
			map[string]string{"message": "not found"})

	default:
		s.writeResult(sw, result)
	}
}

// writeResult copies a materialized result to the wire.
func (s *Server) writeResult(w http.ResponseWriter, result *dispatch.Result) {
	for key, value := range result.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(result.Status)

	if result.Body == nil {
		return
	}
	if _, err := io.Copy(w, result.Body); err != nil {
		s.logger.Error("failed to write response body",
			observability.Error(err),
		)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response",
			observability.Error(err),
		)
	}
}

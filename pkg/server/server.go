package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/config"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/driver"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/health"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/httpclient"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/interpreter"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/logging"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/registry"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/storage"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/telemetry"
)

// Config holds server configuration
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration

	// ShutdownTimeout for graceful shutdown
	ShutdownTimeout time.Duration

	// MaxRequestBodySize limits request body size
	MaxRequestBodySize int64

	// EnableCORS enables CORS headers
	EnableCORS bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Address:            ":8080",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		MaxRequestBodySize: 10 * 1024 * 1024, // 10MB
		EnableCORS:         true,
	}
}

// Server is the HTTP API server exposing the flow store and driver over
// REST and a websocket run loop, the Go equivalent of the source's FastAPI
// app/main.py surface.
type Server struct {
	config            Config
	httpServer        *http.Server
	healthChecker     *health.Checker
	telemetryProvider *telemetry.Provider
	logger            *logging.Logger
	engineConfig      *config.Config

	store  storage.Store
	driver *driver.Driver

	upgrader          websocketUpgrader
	activeConnections atomic.Int64
}

// activeSessions reports how many /ws/run websocket connections are
// currently open on this server, wired into s.healthChecker via health.Checker.SetDriverActivity
// so /health reflects interpreter load, not just process liveness.
func (s *Server) activeSessions() int {
	return int(s.activeConnections.Load())
}

// New creates a new server instance, wiring the flow store, function
// registry (operator/expr/http builtins plus any named HTTP clients
// configured in engineConfig.HTTPClients), and interpreter limits from
// engineConfig into a single driver.Driver shared by every request.
func New(cfg Config, engineConfig *config.Config) (*Server, error) {
	if engineConfig == nil {
		engineConfig = config.Default()
	}

	logger := logging.New(logging.DefaultConfig())

	telemetryConfig := telemetry.DefaultConfig()
	telemetryProvider, err := telemetry.NewProvider(context.Background(), telemetryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
	}

	healthChecker := health.NewChecker("thaiyyal-flow-engine", "0.1.0")
	healthChecker.RegisterCheck("driver", func(ctx context.Context) error {
		return nil
	}, 5*time.Second, true)

	clients, err := buildHTTPClientRegistry(engineConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build http client registry: %w", err)
	}

	builder := driver.Builder{
		NewRegistry: func() *registry.Registry {
			r := registry.NewDefault(clients)
			// AllowedFunctions is nil unless the operator opts in (spec
			// §4.B: "If provided..."); SetAllowList(nil) would otherwise
			// activate an allow-list with zero entries and block every
			// non-control-flow call, so only wire it when set.
			if engineConfig.AllowedFunctions != nil {
				r.SetAllowList(engineConfig.AllowedFunctions)
			}
			return r
		},
		Logger: logger,
		Limits: interpreter.Limits{
			MaxNodeExecutions:    engineConfig.MaxNodeExecutions,
			MaxIterations:        engineConfig.MaxIterations,
			MaxNodeExecutionTime: engineConfig.MaxNodeExecutionTime,
		},
	}

	server := &Server{
		config:            cfg,
		healthChecker:     healthChecker,
		telemetryProvider: telemetryProvider,
		logger:            logger,
		engineConfig:      engineConfig,
		store:             storage.NewInMemoryStore(),
		driver:            driver.New(builder),
		upgrader:          newWebsocketUpgrader(),
	}
	healthChecker.SetDriverActivity(server.activeSessions, 0)

	mux := http.NewServeMux()
	server.registerRoutes(mux)

	server.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      server.middlewareChain(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// buildHTTPClientRegistry constructs a named-client registry from
// engineConfig.HTTPClients, so flows can reference "http.get(url, client="billing")".
func buildHTTPClientRegistry(engineConfig *config.Config) (*httpclient.Registry, error) {
	reg := httpclient.NewRegistry()
	builder := httpclient.NewBuilder(engineConfig)
	for _, cc := range engineConfig.HTTPClients {
		clientConfig := httpclient.FromConfigHTTPClient(cc)
		client, err := builder.Build(clientConfig)
		if err != nil {
			return nil, fmt.Errorf("building http client %q: %w", cc.Name, err)
		}
		if err := reg.Register(cc.Name, client); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health endpoints
	mux.HandleFunc("/health", s.healthChecker.HTTPHandler())
	mux.HandleFunc("/health/live", s.healthChecker.LivenessHandler())
	mux.HandleFunc("/health/ready", s.healthChecker.ReadinessHandler())

	// Metrics endpoint, served from this server's own telemetry Provider
	// registry rather than the global Prometheus registerer.
	mux.Handle("/metrics", s.telemetryProvider.MetricsHandler())

	// Flow CRUD, mirroring the source's app/main.py /api/flow routes.
	mux.HandleFunc("GET /api/flow", s.handleListFlows)
	mux.HandleFunc("POST /api/flow", s.handleCreateFlow)
	mux.HandleFunc("GET /api/flow/{id}", s.handleGetFlow)
	mux.HandleFunc("PUT /api/flow/{id}", s.handleUpdateFlow)
	mux.HandleFunc("DELETE /api/flow/{id}", s.handleDeleteFlow)

	// Background run, mirroring the source's POST /api/run.
	mux.HandleFunc("POST /api/run", s.handleRun)

	// Interactive run with stop/replace control, mirroring /ws/run.
	mux.HandleFunc("/ws/run", s.handleWSRun)
}

// middlewareChain applies middleware to the handler
func (s *Server) middlewareChain(handler http.Handler) http.Handler {
	if s.config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// writeJSONResponse writes a JSON response
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int, err error) {
	s.logger.WithError(err).WithField("status_code", statusCode).Error(message)

	s.writeJSONResponse(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
		"details": err.Error(),
	})
}

// readBody reads and size-limits a request body.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestBodySize)
	return io.ReadAll(r.Body)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithField("address", s.config.Address).Info("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}

	if err := s.telemetryProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown telemetry: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(startTime)

		s.logger.WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status_code": rw.statusCode,
			"duration_ms": duration.Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("http request")
	})
}

// recoveryMiddleware recovers from panics
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithField("error", fmt.Sprintf("%v", err)).
					WithField("path", r.URL.Path).
					Error("panic recovered")

				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

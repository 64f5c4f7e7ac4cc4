package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/metrics"
	"github.com/isdmx/coderunner/sandbox"
)

const readHeaderTimeout = 10 * time.Second

// Executor runs one request to a caller-facing result
type Executor interface {
	Execute(ctx context.Context, req sandbox.SandboxRequest) sandbox.Result
}

// Server is the HTTP front end for code execution
type Server struct {
	logger          *zap.Logger
	executor        Executor
	port            int
	shutdownTimeout time.Duration
	mcpHandler      http.Handler
	router          chi.Router
	http            *http.Server
}

// Option defines a functional option for Server
type Option func(*Server)

// WithMCPHandler mounts h at /mcp
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) {
		s.mcpHandler = h
	}
}

// New creates a Server and registers its routes
func New(cfg *config.Config, logger *zap.Logger, executor Executor, opts ...Option) *Server {
	s := &Server{
		logger:          logger,
		executor:        executor,
		port:            cfg.Server.HTTPPort,
		shutdownTimeout: cfg.ShutdownTimeout(),
		router:          chi.NewRouter(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Group(func(r chi.Router) {
		r.Use(jsonContentType)
		r.Post("/run-code", s.handleRunCode)
		r.Get("/healthz", s.handleHealthz)
	})

	r.Handle("/metrics", promhttp.Handler())

	if s.mcpHandler != nil {
		r.Handle("/mcp", s.mcpHandler)
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listening socket and serves in the background. Bind
// errors are returned synchronously.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped unexpectedly", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown waits for in-flight executions, bounded by the shutdown timeout
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request with the chi request id
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

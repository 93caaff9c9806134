// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package server is the HTTP shell around the metrics engine: one scrape
// route plus health and readiness probes.
//
// The scrape route never fails a scrape because metrics are unavailable.
// Render errors are logged and answered with 200 and an empty body so the
// collector does not flap.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "github.com/soothill/zwave-prometheus-exporter/pkg/errors"
	"github.com/soothill/zwave-prometheus-exporter/pkg/interfaces"
	"github.com/soothill/zwave-prometheus-exporter/pkg/logger"
	"github.com/soothill/zwave-prometheus-exporter/pkg/metrics"
)

// Defaults used for zero-valued Options fields.
const (
	DefaultHost       = "0.0.0.0"
	DefaultPort       = 9001
	DefaultMetricPath = "/metrics"
)

const (
	readinessCheckTimeout = 2 * time.Second
	readHeaderTimeout     = 10 * time.Second

	healthRate  = rate.Limit(10)
	healthBurst = 20
)

var contentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// Options is the listener configuration.
type Options struct {
	Host       string
	Port       int // 0 picks a free port
	MetricPath string
	// ExitOnError terminates the process when the listener cannot be started.
	ExitOnError bool
}

// DefaultOptions returns 0.0.0.0:9001 serving /metrics.
func DefaultOptions() Options {
	return Options{Host: DefaultHost, Port: DefaultPort, MetricPath: DefaultMetricPath}
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to the "http" component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithExitFunc replaces os.Exit for ExitOnError.
func WithExitFunc(exit func(code int)) Option {
	return func(s *Server) { s.exit = exit }
}

// WithReadiness makes /ready report the given dependency's health.
func WithReadiness(hc interfaces.HealthChecker) Option {
	return func(s *Server) { s.ready = hc }
}

// WithProbeRateLimit overrides the per-probe rate limit.
func WithProbeRateLimit(r rate.Limit, burst int) Option {
	return func(s *Server) {
		s.healthLimiter = rate.NewLimiter(r, burst)
		s.readyLimiter = rate.NewLimiter(r, burst)
	}
}

// Server serves the exposition of a Renderer.
type Server struct {
	opts     Options
	renderer interfaces.Renderer
	ready    interfaces.HealthChecker
	log      zerolog.Logger
	exit     func(int)

	healthLimiter *rate.Limiter
	readyLimiter  *rate.Limiter

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
	running  bool
}

// New creates a stopped server. renderer may be nil, in which case every
// scrape is answered with an empty body.
func New(renderer interfaces.Renderer, opts Options, options ...Option) *Server {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.MetricPath == "" {
		opts.MetricPath = DefaultMetricPath
	}

	s := &Server{
		opts:          opts,
		renderer:      renderer,
		log:           logger.Component("http"),
		exit:          os.Exit,
		healthLimiter: rate.NewLimiter(healthRate, healthBurst),
		readyLimiter:  rate.NewLimiter(healthRate, healthBurst),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Handler returns the router: the metric path, /health and /ready, all GET only.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(s.opts.MetricPath, s.handleMetrics).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/health", rateLimitMiddleware(s.log, s.healthLimiter, s.healthCheckHandler)).
		Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/ready", rateLimitMiddleware(s.log, s.readyLimiter, s.readinessCheckHandler)).
		Methods(http.MethodGet, http.MethodHead)
	return r
}

func (s *Server) configuredAddr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Start binds the listener and serves in the background. A bind failure is
// logged and returned; the process exits only with ExitOnError. Starting a
// running server is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	addr := s.configuredAddr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error().Err(err).Str("addr", addr).Msg("Failed to start metrics HTTP server")
		if s.opts.ExitOnError {
			s.exit(1)
		}
		return apperrors.NewTransportError("listen", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	done := make(chan struct{})

	s.srv, s.listener, s.done, s.running = srv, ln, done, true

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Metrics HTTP server failed")
		}
	}()

	s.log.Info().Msgf("Metrics HTTP server listening on %s%s", ln.Addr(), s.opts.MetricPath)
	return nil
}

// Stop shuts the server down and waits for it, bounded by ctx. Errors are
// logged, not returned. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	srv, done := s.srv, s.done
	s.running = false
	s.mu.Unlock()

	if err := srv.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("Error while stopping metrics HTTP server")
		_ = srv.Close()
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info().Msg("Metrics HTTP server stopped")
}

// IsRunning reports whether the listener is bound.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound address, or the configured one when not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.configuredAddr()
}

// MetricPath returns the scrape route.
func (s *Server) MetricPath() string {
	return s.opts.MetricPath
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.log.Info().Str("remote_addr", clientIP(r)).Msg("Metrics query")
	metrics.ScrapesTotal.Inc()
	start := time.Now()

	body, err := s.render()
	metrics.ScrapeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScrapeErrors.Inc()
		s.log.Error().Err(err).Msg("Failed to render metrics")
		body = ""
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write([]byte(body)); err != nil {
		s.log.Error().Err(err).Msg("Failed to write metrics response")
	}
}

// render calls the renderer, turning a missing renderer or a panic into an error.
func (s *Server) render() (body string, err error) {
	if s.renderer == nil {
		return "", fmt.Errorf("%w: no renderer", apperrors.ErrRegistryUnavailable)
	}
	defer func() {
		if p := recover(); p != nil {
			body, err = "", fmt.Errorf("%w: %v", apperrors.ErrRegistryUnavailable, p)
		}
	}()
	return s.renderer.RenderExposition()
}

func (s *Server) readinessCheckHandler(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
		defer cancel()

		if err := s.ready.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Readiness check failed: event source unhealthy")
			writeText(s.log, w, http.StatusServiceUnavailable, "NOT READY: event source unhealthy")
			return
		}
	}
	writeText(s.log, w, http.StatusOK, "READY")
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	writeText(s.log, w, http.StatusOK, "OK")
}

func writeText(log zerolog.Logger, w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		log.Error().Err(err).Msg("Failed to write probe response")
	}
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting
func rateLimitMiddleware(log zerolog.Logger, limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			log.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", clientIP(r)).
				Msg("Rate limit exceeded for health endpoint")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Package server implements a small development web server that hosts a CGI program,
// running it once per request the way a production web server would.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cgi"
	"time"

	"go.followtheprocess.codes/log"
	"golang.org/x/sync/errgroup"
)

// DefaultAddr is the address the server listens on if none is configured.
const DefaultAddr = "localhost:8080"

// DefaultShutdownTimeout is the time allowed for in flight requests to finish on shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// readHeaderTimeout guards against slowloris.
const readHeaderTimeout = 10 * time.Second

// redirectStatus is passed to every CGI program, net/http/cgi does not set it.
const redirectStatus = "REDIRECT_STATUS=200"

// Config configures a [Server].
type Config struct {
	Addr            string        // Address to listen on, defaults to [DefaultAddr]
	Script          string        // Path to the CGI program run for each request
	Dir             string        // Working directory of the CGI program, empty means the server's
	Env             []string      // Extra "KEY=VALUE" variables passed to the CGI program
	ShutdownTimeout time.Duration // Time allowed for in flight requests on shutdown
}

// Server is the CGI hosting web server.
type Server struct {
	logger *log.Logger
	cfg    Config
}

// New returns a new [Server].
func New(cfg Config, logger *log.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	return &Server{
		logger: logger,
		cfg:    cfg,
	}
}

// Handler returns the [http.Handler] that runs the CGI program for every request.
func (s *Server) Handler() http.Handler {
	env := make([]string, 0, len(s.cfg.Env)+1)
	env = append(env, redirectStatus)
	env = append(env, s.cfg.Env...)

	handler := &cgi.Handler{
		Path:   s.cfg.Script,
		Dir:    s.cfg.Dir,
		Env:    env,
		Stderr: &logWriter{logger: s.logger},
	}

	return s.logRequests(handler)
}

// Run listens on the configured address and serves until ctx is cancelled, at which
// point it shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", s.cfg.Addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve serves requests on ln until ctx is cancelled. It takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.logger.Info("Serving", "addr", ln.Addr().String(), "script", s.cfg.Script, "dir", s.cfg.Dir)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// logRequests wraps next, logging every request with its status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info(
			"Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// statusRecorder is an [http.ResponseWriter] that remembers the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// logWriter logs each line written to it, the CGI program's stderr is written here.
type logWriter struct {
	logger *log.Logger
}

func (l *logWriter) Write(p []byte) (int, error) {
	for line := range bytes.Lines(p) {
		if trimmed := bytes.TrimSpace(line); len(trimmed) != 0 {
			l.logger.Warn("CGI stderr", "line", string(trimmed))
		}
	}
	return len(p), nil
}

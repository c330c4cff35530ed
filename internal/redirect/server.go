// Package redirect implements the loopback HTTP server that receives the
// authorization server's redirect during an installed application flow.
//
// A Server accepts exactly one meaningful request. The first request to
// any path is captured and answered with a success page; requests that
// arrive afterwards are rejected and never recorded. The server has no
// built-in deadline: Wait blocks until a request arrives or its context
// is done.
package redirect

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/matheuscscp/oauth2flow/internal/logging"
	"github.com/matheuscscp/oauth2flow/internal/metrics"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second

	// metricsPath labels every request: the server answers any path and
	// the label set must stay bounded.
	metricsPath = "/"
)

//go:embed success.html
var successPage string

var ErrNotListening = errors.New("redirect server is not listening")

type Server struct {
	host        string
	port        int
	successPage string
	metrics     *metrics.Metrics
	logger      logrus.FieldLogger

	listener net.Listener
	addr     string
	server   *http.Server
	captured chan string
	serveErr chan error

	mu    sync.Mutex
	state State
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) { s.logger = l }
}

// New returns a Server in the Created state. successMessage is shown to
// the user in the browser once the redirect is captured.
func New(host string, port int, successMessage string, opts ...Option) *Server {
	s := &Server{
		host:        host,
		port:        port,
		successPage: strings.ReplaceAll(successPage, "SUCCESS_MESSAGE", html.EscapeString(successMessage)),
		logger:      logrus.StandardLogger(),
		captured:    make(chan string, 1),
		serveErr:    make(chan error, 1),
		state:       Created,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds host:port and starts serving in the background. Bind
// errors are returned as is; no other port is tried. A zero port lets the
// operating system pick one, see Port.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Created {
		return fmt.Errorf("redirect server cannot listen in state %s", s.state)
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start redirect server on %s: %w", addr, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.addr = net.JoinHostPort(s.host, strconv.Itoa(s.port))

	s.server = &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return logging.IntoContext(context.Background(), s.logger)
		},
	}
	s.server.SetKeepAlivesEnabled(false)

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.serveErr <- err
		}
	}()

	s.state = Listening
	s.logger.WithField("redirectServer", logrus.Fields{
		"addr": listener.Addr().String(),
	}).Debug("redirect server listening")

	return nil
}

// Port returns the bound port once listening, or the configured one before.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until a request is captured and returns its request URI
// (path and query string, as sent by the user agent).
func (s *Server) Wait(ctx context.Context) (string, error) {
	if st := s.State(); st == Created || st == Stopped {
		return "", ErrNotListening
	}
	select {
	case requestURI := <-s.captured:
		return requestURI, nil
	case err := <-s.serveErr:
		return "", fmt.Errorf("redirect server failed: %w", err)
	case <-ctx.Done():
		return "", fmt.Errorf("failed waiting for the authorization redirect: %w", ctx.Err())
	}
}

// Close shuts the server down and releases the port. It is safe to call
// more than once and in any state.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.state == Created || s.state == Stopped {
		s.state = Stopped
		s.mu.Unlock()
		return nil
	}
	s.state = ShuttingDown
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		err = errors.Join(err, s.server.Close())
	}
	// Serve may not have tracked the listener yet, in which case Shutdown
	// leaves the socket open.
	if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = errors.Join(err, cerr)
	}

	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()

	s.logger.Debug("redirect server stopped")

	if err != nil {
		return fmt.Errorf("failed to shut down redirect server: %w", err)
	}
	return nil
}

func (s *Server) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		sr := &statusRecorder{ResponseWriter: w}
		if s.metrics != nil {
			defer func() {
				status := fmt.Sprintf("%d", sr.getStatusCode())
				s.metrics.RequestDurationSecs.
					WithLabelValues(s.addr, r.Method, metricsPath, status).
					Observe(time.Since(t).Seconds())
			}()
		}

		w = sr
		r = logging.IntoRequest(r, logging.FromRequest(r).WithField("http", logrus.Fields{
			"host":   r.Host,
			"method": r.Method,
			"path":   r.URL.Path,
		}))

		s.serveRedirect(w, r)
	})
}

func (s *Server) serveRedirect(w http.ResponseWriter, r *http.Request) {
	l := logging.FromRequest(r)

	s.mu.Lock()
	first := s.state == Listening
	if first {
		s.state = RequestCaptured
	}
	s.mu.Unlock()

	if !first {
		l.Debug("ignoring request received after the redirect was captured")
		http.Error(w, "Authorization response already received", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	if _, err := w.Write([]byte(s.successPage)); err != nil {
		l.WithError(err).Error("failed to write success page")
	}

	// Origin form even when the request line carried an absolute URI.
	s.captured <- r.URL.RequestURI()
	l.Info("authorization redirect captured")
}

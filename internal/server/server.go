package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/vidpub/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the paths it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// CallbackServer serves a single OAuth callback on a local address.
type CallbackServer struct {
	handler  *OAuthHandler
	srv      *http.Server
	listener net.Listener
	errs     chan error
	logger   *log.Logger
}

// NewCallbackServer routes handler behind request logging and panic recovery.
func NewCallbackServer(addr string, handler *OAuthHandler, logger *log.Logger) *CallbackServer {
	router := NewBasicRouter()
	router.Use(Recoverer(logger), RequestLogger(logger))
	router.Handler(handler)
	router.Handle(http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	return &CallbackServer{
		handler: handler,
		srv:     &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second},
		errs:    make(chan error, 1),
		logger:  logger,
	}
}

// Start binds the address before returning, so a busy port fails immediately.
func (s *CallbackServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.listener = ln

	go func() {
		s.logger.Info("starting OAuth callback server", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
	}()
	return nil
}

// Addr is the bound address, useful when started on port 0.
func (s *CallbackServer) Addr() string {
	if s.listener == nil {
		return s.srv.Addr
	}
	return s.listener.Addr().String()
}

// Wait blocks until the callback delivers a token, the server fails, the timeout elapses
// or ctx is cancelled. The server is shut down before returning.
func (s *CallbackServer) Wait(ctx context.Context, timeout time.Duration) (*oauth2.Token, error) {
	defer s.shutdown()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result OAuthResult
	select {
	case result = <-s.handler.Result():
	case err := <-s.errs:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}

func (s *CallbackServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("error shutting down server", "error", err)
	}
}

// Package callback runs the short-lived loopback HTTP listener that
// captures the OAuth authorization-code redirect from the browser.
//
// A listener accepts exactly one redirect: the first root-path request
// carrying a code or error query parameter settles the pending Wait, and
// later root-path requests get a plain 404. The caller owns the listener
// and must Close it on success and failure paths alike.
package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	// DefaultPort is tried first before falling back to an ephemeral port.
	DefaultPort = 8989

	// DefaultTimeout bounds how long Wait blocks for the redirect.
	DefaultTimeout = 5 * time.Minute
)

// ErrTimeout reports that no redirect arrived within the wait window.
// Distinct from AuthorizationError so callers can suggest "try again"
// rather than "check your credentials".
var ErrTimeout = errors.New("timed out waiting for authorization callback")

// AuthorizationError reports an error redirect from the OAuth provider.
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s", e.Description)
	}
	return fmt.Sprintf("authorization failed: %s", e.Code)
}

type result struct {
	code string
	err  error
}

// Listener is a bound single-shot callback server.
type Listener struct {
	listener net.Listener
	server   *http.Server

	results  chan result
	settled  atomic.Bool
	serveErr chan error
}

// Start binds the callback server to preferredPort on loopback, falling
// back to an OS-assigned ephemeral port when preferredPort is taken.
// Bind failures other than port-in-use propagate. Returns once bound;
// the caller must Close the listener.
func Start(preferredPort int) (*Listener, error) {
	if preferredPort <= 0 {
		preferredPort = DefaultPort
	}

	netListener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", preferredPort))
	if errors.Is(err, syscall.EADDRINUSE) {
		netListener, err = net.Listen("tcp", "127.0.0.1:0")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind callback listener: %w", err)
	}

	l := &Listener{
		listener: netListener,
		results:  make(chan result, 1),
		serveErr: make(chan error, 1),
	}

	mux := http.NewServeMux()
	// "/{$}" matches exactly the root path; everything else gets the
	// ServeMux's own 404 and leaves the pending wait untouched.
	mux.HandleFunc("GET /{$}", l.handleRedirect)

	l.server = &http.Server{
		Handler: applyMiddlewares(mux,
			Logging(),
			Recovery,
		),
		ReadTimeout:  10 * time.Second, // Bounds slow clients on a localhost-only listener
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		err := l.server.Serve(netListener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.serveErr <- err
		}
		close(l.serveErr)
	}()

	return l, nil
}

// Port returns the bound port.
func (l *Listener) Port() int {
	return l.listener.Addr().(*net.TCPAddr).Port
}

// RedirectURI returns the redirect URI registered with the OAuth provider
// for this listener.
func (l *Listener) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/", l.Port())
}

// handleRedirect settles the pending Wait with either the authorization
// code or the provider's error, and serves the terminal page to the
// browser independent of the programmatic result.
func (l *Listener) handleRedirect(w http.ResponseWriter, r *http.Request) {
	if l.settled.Load() {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		l.deliver(result{err: &AuthorizationError{
			Code:        errCode,
			Description: query.Get("error_description"),
		}})
		writePage(w, failurePage)
		return
	}

	code := query.Get("code")
	if code == "" {
		// Stray root-path request without a code: keep waiting.
		http.NotFound(w, r)
		return
	}

	l.deliver(result{code: code})
	writePage(w, successPage)
}

// deliver settles the listener exactly once.
func (l *Listener) deliver(res result) {
	if l.settled.CompareAndSwap(false, true) {
		l.results <- res
	}
}

// Wait blocks until the redirect arrives, the timeout elapses, or ctx is
// cancelled. Exactly one of {code, AuthorizationError, ErrTimeout, ctx
// error} resolves a given listener; the caller closes it afterward on
// every path.
func (l *Listener) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-l.results:
		if res.err != nil {
			return "", res.err
		}
		return res.code, nil
	case <-timer.C:
		l.settled.Store(true)
		return "", ErrTimeout
	case <-ctx.Done():
		l.settled.Store(true)
		return "", ctx.Err()
	case err := <-l.serveErr:
		l.settled.Store(true)
		if err == nil {
			err = errors.New("callback listener closed")
		}
		return "", fmt.Errorf("callback listener failed: %w", err)
	}
}

// Close performs graceful shutdown of the callback server.
func (l *Listener) Close(ctx context.Context) error {
	if err := l.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = l.server.Close()
		return fmt.Errorf("callback listener shutdown failed: %w", err)
	}
	return nil
}

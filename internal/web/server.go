// Package web serves the operator status page, a JSON stats endpoint,
// a health probe and the Discord interactions endpoint when the bot
// runs in webhook mode. Everything except /healthz and /interactions
// sits behind HTTP Basic Auth against the admin credential from the
// config file.
package web

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hwestman/personabot/internal/channels"
	"github.com/hwestman/personabot/internal/config"
	. "github.com/hwestman/personabot/internal/logging"
)

// Statuser reports per-channel runtime state. Implemented by
// channels.Manager.
type Statuser interface {
	Status() map[string]channels.ChannelStatus
}

// UsageCounter aggregates interaction outcomes for the status page.
// Implemented by store.Store.
type UsageCounter interface {
	CountUsageSince(ctx context.Context, since time.Time) (map[string]int64, error)
}

// InteractionsProvider returns the handler for POST /interactions, or
// nil when no channel is serving signed webhooks. It is consulted per
// request so a config reload that switches Discord between gateway and
// webhook mode takes effect without restarting the web server.
type InteractionsProvider func() http.Handler

// Server is the embedded admin web server.
type Server struct {
	cfg          config.WebConfig
	version      string
	chans        Statuser
	usage        UsageCounter
	interactions InteractionsProvider
	rateLimiter  *RateLimiter
	server       *http.Server
	wg           sync.WaitGroup
}

// NewServer validates the admin credential and builds the server.
// chans, usage and interactions may be nil; the affected sections
// degrade to "unavailable".
func NewServer(cfg config.WebConfig, version string, chans Statuser, usage UsageCounter, interactions InteractionsProvider) (*Server, error) {
	if cfg.AdminUser == "" || cfg.AdminPasswordHash == "" {
		return nil, fmt.Errorf("web server requires adminUser and adminPasswordHash (run 'personabot setup')")
	}
	if _, err := bcrypt.Cost([]byte(cfg.AdminPasswordHash)); err != nil {
		return nil, fmt.Errorf("adminPasswordHash is not a bcrypt hash: %w", err)
	}

	s := &Server{
		cfg:          cfg,
		version:      version,
		chans:        chans,
		usage:        usage,
		interactions: interactions,
		rateLimiter:  NewRateLimiter(10 * time.Second),
	}

	s.server = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Middleware chain: logging -> strip headers -> auth.
	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return s.logRequest(s.stripHeaders(s.basicAuth(h)))
	}
	open := func(h http.HandlerFunc) http.HandlerFunc {
		return s.logRequest(s.stripHeaders(h))
	}

	// The interactions endpoint authenticates with Discord's request
	// signature instead of Basic Auth.
	mux.HandleFunc("/healthz", open(s.handleHealthz))
	mux.HandleFunc("/interactions", open(s.handleInteractions))

	mux.HandleFunc("/", wrap(s.handleIndex))
	mux.HandleFunc("/stats", wrap(s.handleStats))

	return mux
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("web: server starting", "addr", s.server.Addr)

		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			L_error("web: server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the web server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		L_error("web: shutdown error", "error", err)
		return err
	}

	s.wg.Wait()
	L_info("web: server stopped")
	return nil
}

// basicAuth enforces HTTP Basic Authentication against the single
// admin credential, with a failure delay per client IP.
func (s *Server) basicAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r)

		if s.rateLimiter.IsLimited(clientIP) {
			L_warn("web: rate limited", "ip", clientIP)
			w.Header().Set("WWW-Authenticate", `Basic realm="PersonaBot"`)
			http.Error(w, "Too many failed attempts. Try again later.", http.StatusTooManyRequests)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="PersonaBot"`)
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.AdminUser)) == 1
		passOK := bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminPasswordHash), []byte(password)) == nil
		if !userOK || !passOK {
			s.rateLimiter.RecordFailure(clientIP)
			L_warn("web: auth failed", "username", username, "ip", clientIP)
			w.Header().Set("WWW-Authenticate", `Basic realm="PersonaBot"`)
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		s.rateLimiter.ClearFailure(clientIP)

		handler(w, r)
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For first (if behind reverse proxy)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// logRequest wraps an HTTP handler to log requests.
func (s *Server) logRequest(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(lw, r)

		L_trace("web: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.statusCode,
			"duration", time.Since(start))
	}
}

// stripHeaders removes fingerprinting headers.
func (s *Server) stripHeaders(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Del("Server")
		w.Header().Del("X-Powered-By")

		handler(w, r)
	}
}

// loggingResponseWriter wraps ResponseWriter to capture the status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

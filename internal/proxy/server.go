package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gateway-bridge/internal/auth"
	"github.com/nerrad567/gateway-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gateway-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// healthCheckTimeout bounds each component probe on /healthz.
const healthCheckTimeout = 5 * time.Second

// HealthChecker probes one dependency for /healthz reporting.
type HealthChecker func(ctx context.Context) error

// Deps holds the dependencies required by the proxy server.
type Deps struct {
	Server   config.ServerConfig
	Upstream config.UpstreamConfig
	Auth     config.AuthConfig
	Logger   *logging.Logger
	Verifier *auth.Verifier
	Metrics  Recorder // optional; nil discards events
	Checks   map[string]HealthChecker
	Version  string
}

// Server hosts the WebSocket proxy endpoint, the login endpoint that
// issues client tokens, and the health probe.
//
// Lifecycle matches the other infrastructure components:
//
//	server, err := proxy.NewServer(deps)
//	server.Start(ctx)
//	defer server.Close()
type Server struct {
	cfg      config.ServerConfig
	upstream config.UpstreamConfig
	authCfg  config.AuthConfig
	logger   *logging.Logger
	verifier *auth.Verifier
	metrics  Recorder
	checks   map[string]HealthChecker
	version  string

	registry *Registry
	server   *http.Server
}

// NewServer creates the proxy server. It is not listening until Start().
func NewServer(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	if deps.Upstream.URL == "" {
		return nil, fmt.Errorf("upstream URL is required")
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = NopRecorder{}
	}

	connector, err := NewDialer(deps.Upstream.URL, deps.Upstream.GetConnectTimeout())
	if err != nil {
		return nil, fmt.Errorf("configuring upstream dialer: %w", err)
	}

	s := &Server{
		cfg:      deps.Server,
		upstream: deps.Upstream,
		authCfg:  deps.Auth,
		logger:   deps.Logger,
		verifier: deps.Verifier,
		metrics:  metrics,
		checks:   deps.Checks,
		version:  deps.Version,
	}

	sessionCfg := SessionConfig{
		APIKey:            deps.Upstream.APIKey,
		AuthTimeout:       deps.Upstream.GetAuthTimeout(),
		MaxReconnectDelay: float64(deps.Upstream.ReconnectMaxDelay),
	}
	s.registry = NewRegistry(sessionCfg, tokenVerifier{deps.Verifier}, connector, NewScheduler(), deps.Logger, metrics)

	return s, nil
}

// Registry exposes the connection registry, mainly for health reporting.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("proxy server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("proxy server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("proxy server error", "error", err)
		}
	}()

	return nil
}

// Close shuts the server down: every proxy session is closed so clients
// see a going-away frame, then the listener drains in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	s.registry.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("proxy server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down proxy server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("proxy health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("proxy server not started")
	}

	return nil
}

// buildRouter creates the HTTP router with routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/ws", s.registry.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
	})

	return r
}

// handleHealthz reports per-component status plus the active session count.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.checks))
	status := "ok"

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
		} else {
			components[name] = "ok"
		}
		cancel()
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":          status,
		"version":         s.version,
		"active_sessions": s.registry.SessionCount(),
		"components":      components,
	})
}

// loginRequest is the POST /api/v1/auth/login body.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin exchanges a username/password pair for an access token.
// The token's expiry claim later feeds the proxy's expiration tracking.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, err := s.verifier.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.logger.Warn("login failed", "username", req.Username, "error", err)
		writeUnauthorized(w, "invalid credentials")
		return
	}

	token, err := s.verifier.IssueToken(user, s.authCfg.AccessTokenTTL)
	if err != nil {
		s.logger.Error("token issue failed", "username", req.Username, "error", err)
		writeInternalError(w, "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": s.authCfg.AccessTokenTTL * 60,
		"role":       user.Role,
	})
}

// tokenVerifier adapts auth.Verifier to the registry's TokenVerifier.
type tokenVerifier struct {
	v *auth.Verifier
}

func (t tokenVerifier) Verify(ctx context.Context, token string) (string, time.Time, error) {
	_, claims, err := t.v.Verify(ctx, token)
	if err != nil {
		return "", time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return "", time.Time{}, auth.ErrTokenInvalid
	}
	return claims.Subject, claims.ExpiresAt.Time, nil
}

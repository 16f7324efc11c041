// Package server exposes the HTTP API: device authorization, the Keycloak
// login callback, shared conversation reads, the GitLab webhook receiver,
// license status, health, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"openhands-enterprise/backend/internal/observability/logger"
)

// Config carries the listener address and the knobs handlers need.
type Config struct {
	// Addr is the listen address (e.g. :8080).
	Addr string
	// Env is the application environment; "production" selects gin release mode.
	Env string
	// WebHost is the public base URL of the web frontend (scheme included).
	WebHost string
	// SessionTTL bounds the session cookie lifetime.
	SessionTTL time.Duration
}

// Deps holds the services handlers dispatch to.
type Deps struct {
	// License reports upload staleness for GET /api/license/status. If nil, the route returns 503.
	License LicenseReporter
	// DeviceCodes drives the device authorization flow. If nil, device routes return 503.
	DeviceCodes DeviceCodeService
	// APIKeys issues LiteLLM keys for authorized device codes. If nil, token polling cannot complete.
	APIKeys APIKeyIssuer
	// Auth handles the Keycloak callback and email verification redirects. If nil, oauth routes return 503.
	Auth AuthService
	// Sessions parses the session cookie on routes that need a signed-in user.
	Sessions SessionParser
	// Conversations serves shared conversation reads. If nil, shared routes return 503.
	Conversations ConversationReader
	// Webhooks looks up GitLab webhook registrations for secret validation. If nil, the receiver returns 503.
	Webhooks WebhookLookup
	// Pinger is used by GET /health for readiness (e.g. *sql.DB). If nil, the DB check is skipped.
	Pinger Pinger
}

// Server is the HTTP API server.
type Server struct {
	cfg    Config
	deps   Deps
	log    *zap.Logger
	engine *gin.Engine
	nowFn  func() time.Time
}

// New builds the server and its routes. A nil log falls back to a no-op logger.
func New(cfg Config, deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:   cfg,
		deps:  deps,
		log:   log,
		nowFn: time.Now,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/health", "/metrics"},
	}))
	s.engine = engine
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.HealthCheck)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	api.GET("/license/status", s.GetLicenseStatus)
	api.POST("/device/code", s.CreateDeviceCode)
	api.POST("/device/authorize", s.AuthorizeDeviceCode)
	api.POST("/device/deny", s.DenyDeviceCode)
	api.POST("/device/token", s.PollDeviceToken)
	api.GET("/shared/conversations/:id", s.GetSharedConversation)
	api.GET("/shared/conversations/:id/events", s.ListSharedConversationEvents)
	api.GET("/shared/conversations/:id/events/:seq", s.GetSharedConversationEvent)

	oauth := s.engine.Group("/oauth")
	oauth.GET("/keycloak/callback", s.KeycloakCallback)
	oauth.GET("/email/verify", s.VerifyEmail)
	oauth.GET("/email/verified", s.VerifiedEmail)

	s.engine.POST("/webhooks/gitlab", s.GitlabWebhook)
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// abortError writes a JSON error body and stops the handler chain.
func abortError(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}

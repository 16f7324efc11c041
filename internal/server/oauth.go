package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"openhands-enterprise/backend/internal/auth"
)

// AuthService evaluates the Keycloak login callback and builds email
// verification redirects.
type AuthService interface {
	HandleCallback(ctx context.Context, code, state string) (*auth.CallbackResult, error)
	VerifyEmailURL(returnURI string) string
	WebHost() string
}

// KeycloakCallback completes the login flow. On success it sets the session
// cookie and redirects into the app; identity-provider failures answer 502
// so they are distinguishable from our own errors.
func (s *Server) KeycloakCallback(c *gin.Context) {
	if s.deps.Auth == nil {
		abortError(c, http.StatusServiceUnavailable, "auth unavailable")
		return
	}

	result, err := s.deps.Auth.HandleCallback(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingCode):
			abortError(c, http.StatusBadRequest, "missing authorization code")
		case errors.Is(err, auth.ErrTokenExchange), errors.Is(err, auth.ErrUserInfo):
			s.log.Error("keycloak callback rejected upstream", zap.Error(err))
			abortError(c, http.StatusBadGateway, "identity provider error")
		default:
			s.log.Error("keycloak callback failed", zap.Error(err))
			abortError(c, http.StatusInternalServerError, "server_error")
		}
		return
	}

	if result.SessionToken != "" {
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(auth.SessionCookieName, result.SessionToken,
			int(s.cfg.SessionTTL.Seconds()), "/", "", s.secureCookies(), true)
	}
	c.Redirect(http.StatusFound, result.RedirectURL)
}

// VerifyEmail sends the user into the hosted Keycloak verification flow,
// returning to /oauth/email/verified on this host when done.
func (s *Server) VerifyEmail(c *gin.Context) {
	if s.deps.Auth == nil {
		abortError(c, http.StatusServiceUnavailable, "auth unavailable")
		return
	}
	c.Redirect(http.StatusFound, s.deps.Auth.VerifyEmailURL(requestBaseURL(c)+"/oauth/email/verified"))
}

// VerifiedEmail lands the user back on the app root after Keycloak confirms
// the address.
func (s *Server) VerifiedEmail(c *gin.Context) {
	if s.deps.Auth == nil {
		abortError(c, http.StatusServiceUnavailable, "auth unavailable")
		return
	}
	c.Redirect(http.StatusFound, s.deps.Auth.WebHost()+"/")
}

func (s *Server) secureCookies() bool {
	return strings.HasPrefix(s.cfg.WebHost, "https://")
}

// requestBaseURL rebuilds the externally visible base URL of the request.
// Local hosts keep http so the flow works in development.
func requestBaseURL(c *gin.Context) string {
	hostname := c.Request.Host
	if h, _, err := net.SplitHostPort(hostname); err == nil {
		hostname = h
	}
	scheme := "https"
	if hostname == "localhost" || hostname == "127.0.0.1" {
		scheme = "http"
	}
	return scheme + "://" + c.Request.Host
}

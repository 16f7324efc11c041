package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"openhands-enterprise/backend/internal/blocklist"
	"openhands-enterprise/backend/internal/observability/events"
	settingsdomain "openhands-enterprise/backend/internal/settings/domain"
	userdomain "openhands-enterprise/backend/internal/user/domain"
	userrepo "openhands-enterprise/backend/internal/user/repository"

	"go.uber.org/zap"
)

var (
	// ErrMissingCode is returned when the callback carries no authorization
	// code. Maps to a 400.
	ErrMissingCode = errors.New("missing authorization code")
	// ErrTokenExchange is returned when Keycloak rejects the code exchange.
	// Maps to a 502.
	ErrTokenExchange = errors.New("keycloak token exchange failed")
	// ErrUserInfo is returned when userinfo cannot be fetched or names no
	// subject. Maps to a 502.
	ErrUserInfo = errors.New("keycloak userinfo failed")
)

// KeycloakProvider is the slice of the Keycloak client the callback needs.
type KeycloakProvider interface {
	ExchangeCode(ctx context.Context, code string) (*Tokens, error)
	GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error)
	VerifyEmailURL(redirectURI string) string
}

// SettingsProvisioner provisions LiteLLM-backed settings for a user.
type SettingsProvisioner interface {
	ProvisionUser(ctx context.Context, userID, email string) (*settingsdomain.UserSettings, error)
}

// CallbackResult is the outcome of a successful callback evaluation. The
// HTTP layer turns it into a redirect, setting the session cookie when
// SessionToken is non-empty.
type CallbackResult struct {
	RedirectURL  string
	SessionToken string
}

// Service drives the Keycloak login callback.
type Service struct {
	keycloak KeycloakProvider
	users    userrepo.Repository
	settings SettingsProvisioner
	blocker  *blocklist.DomainBlocker
	sessions *SessionMinter
	emitter  events.Emitter
	webHost  string
	log      *zap.Logger
}

// NewService creates the callback service. webHost is the public app root
// used for post-auth redirects. A nil emitter disables product events.
func NewService(keycloak KeycloakProvider, users userrepo.Repository, settings SettingsProvisioner, blocker *blocklist.DomainBlocker, sessions *SessionMinter, emitter events.Emitter, webHost string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		keycloak: keycloak,
		users:    users,
		settings: settings,
		blocker:  blocker,
		sessions: sessions,
		emitter:  emitter,
		webHost:  strings.TrimRight(webHost, "/"),
		log:      log,
	}
}

// HandleCallback evaluates one login callback. Errors are returned only for
// request and upstream failures; policy rejections (missing or unverified
// email, blocked domain, removed duplicate account) come back as redirects
// without a session token.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (*CallbackResult, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	tokens, err := s.keycloak.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	info, err := s.keycloak.GetUserInfo(ctx, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("%w: userinfo carries no subject", ErrUserInfo)
	}

	if info.Email == "" {
		return &CallbackResult{RedirectURL: s.errorRedirect("email-missing")}, nil
	}
	if !info.EmailVerified {
		return &CallbackResult{RedirectURL: s.webHost + "/?email_verification_required=true"}, nil
	}
	if s.blocker.IsDomainBlocked(info.Email) {
		s.log.Warn("login rejected by email domain blocklist",
			zap.String("keycloak_user_id", info.Subject))
		events.EmitAsync(ctx, s.emitter, &events.Event{
			Kind:   "auth.domain_blocked",
			UserID: info.Subject,
		})
		return &CallbackResult{RedirectURL: s.errorRedirect("domain-blocked")}, nil
	}

	if err := s.upsertUser(ctx, info); err != nil {
		return nil, err
	}

	removed, err := s.removeDuplicateAccounts(ctx, info)
	if err != nil {
		return nil, err
	}
	if removed {
		return &CallbackResult{RedirectURL: s.errorRedirect("duplicate-email")}, nil
	}

	if _, err := s.settings.ProvisionUser(ctx, info.Subject, info.Email); err != nil {
		// Login proceeds; provisioning is retried on the next settings read.
		s.log.Error("provision settings during login",
			zap.String("keycloak_user_id", info.Subject),
			zap.Error(err))
	}

	token, err := s.sessions.Mint(info.Subject, info.Email, tokens.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("mint session token: %w", err)
	}

	return &CallbackResult{RedirectURL: s.returnURL(state), SessionToken: token}, nil
}

// VerifyEmailURL returns the hosted Keycloak flow that forces email
// verification before returning to returnURI.
func (s *Service) VerifyEmailURL(returnURI string) string {
	return s.keycloak.VerifyEmailURL(returnURI)
}

// WebHost returns the app root used for post-auth redirects.
func (s *Service) WebHost() string { return s.webHost }

func (s *Service) upsertUser(ctx context.Context, info *UserInfo) error {
	existing, err := s.users.GetByKeycloakID(ctx, info.Subject)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if existing == nil {
		u := &userdomain.User{
			KeycloakUserID: info.Subject,
			Email:          info.Email,
			EmailVerified:  true,
		}
		if err := s.users.Create(ctx, u); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		s.log.Info("created user from keycloak login",
			zap.String("keycloak_user_id", info.Subject))
		events.EmitAsync(ctx, s.emitter, &events.Event{
			Kind:   "auth.user_signed_up",
			UserID: info.Subject,
		})
		return nil
	}

	if existing.Email == info.Email && existing.EmailVerified {
		return nil
	}
	existing.Email = info.Email
	existing.EmailVerified = true
	if err := s.users.Update(ctx, existing); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// removeDuplicateAccounts deletes every account sharing the email except the
// oldest one. It reports whether the logging-in account was among the
// removed, in which case the login is rejected.
func (s *Service) removeDuplicateAccounts(ctx context.Context, info *UserInfo) (bool, error) {
	accounts, err := s.users.ListByEmail(ctx, info.Email)
	if err != nil {
		return false, fmt.Errorf("duplicate account check: %w", err)
	}
	if len(accounts) <= 1 {
		return false, nil
	}

	currentRemoved := false
	for _, dup := range accounts[1:] {
		if err := s.users.Delete(ctx, dup.ID); err != nil {
			return false, fmt.Errorf("delete duplicate account: %w", err)
		}
		s.log.Warn("removed duplicate account",
			zap.String("keycloak_user_id", dup.KeycloakUserID))
		if dup.KeycloakUserID == info.Subject {
			currentRemoved = true
		}
	}
	return currentRemoved, nil
}

func (s *Service) errorRedirect(code string) string {
	return s.webHost + "/?error=" + url.QueryEscape(code)
}

// returnURL resolves the post-login redirect. Only relative paths from state
// are honored; absolute and protocol-relative targets fall back to the app
// root.
func (s *Service) returnURL(state string) string {
	if state != "" && strings.HasPrefix(state, "/") && !strings.HasPrefix(state, "//") {
		return s.webHost + state
	}
	return s.webHost
}

// Package auth implements the Keycloak login callback: OAuth code exchange,
// userinfo retrieval, account upsert with duplicate-email cleanup, and the
// signed session cookie handed back to the browser.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const keycloakRequestTimeout = 15 * time.Second

// KeycloakConfig holds the OAuth client settings for the login realm.
type KeycloakConfig struct {
	ServerURL    string
	Realm        string
	ClientID     string
	ClientSecret string
	// RedirectURI is this service's callback URL registered with Keycloak.
	RedirectURI string
}

// Enabled reports whether the client is configured for code exchange.
func (c KeycloakConfig) Enabled() bool {
	return c.ServerURL != "" && c.Realm != "" && c.ClientID != ""
}

// Tokens is the token response from the Keycloak token endpoint.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserInfo is the subset of OIDC userinfo the callback consumes.
type UserInfo struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
}

// KeycloakClient talks to the Keycloak OIDC endpoints of one realm.
type KeycloakClient struct {
	cfg        KeycloakConfig
	httpClient *http.Client
	log        *zap.Logger
}

// NewKeycloakClient creates a Keycloak client. A nil logger is replaced
// with a no-op logger.
func NewKeycloakClient(cfg KeycloakConfig, log *zap.Logger) *KeycloakClient {
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if log == nil {
		log = zap.NewNop()
	}
	return &KeycloakClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: keycloakRequestTimeout},
		log:        log,
	}
}

// Enabled reports whether the client is configured.
func (c *KeycloakClient) Enabled() bool { return c.cfg.Enabled() }

// ExchangeCode swaps an authorization code for tokens at the realm's token
// endpoint.
func (c *KeycloakClient) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {c.cfg.ClientID},
		"code":         {code},
		"redirect_uri": {c.cfg.RedirectURI},
	}
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	endpoint := c.realmURL("protocol/openid-connect/token")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError("keycloak token endpoint", resp)
	}

	var tokens Tokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("keycloak token endpoint returned no access token")
	}
	return &tokens, nil
}

// GetUserInfo fetches the OIDC userinfo claims for an access token.
func (c *KeycloakClient) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	endpoint := c.realmURL("protocol/openid-connect/userinfo")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError("keycloak userinfo endpoint", resp)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo response: %w", err)
	}
	return &info, nil
}

// VerifyEmailURL returns the hosted Keycloak login URL that forces the email
// verification action before returning to redirectURI.
func (c *KeycloakClient) VerifyEmailURL(redirectURI string) string {
	q := url.Values{
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"scope":         {"openid"},
		"kc_action":     {"VERIFY_EMAIL"},
	}
	return c.realmURL("protocol/openid-connect/auth") + "?" + q.Encode()
}

func (c *KeycloakClient) realmURL(path string) string {
	return fmt.Sprintf("%s/realms/%s/%s", c.cfg.ServerURL, url.PathEscape(c.cfg.Realm), path)
}

func newStatusError(what string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: status %d: %s", what, resp.StatusCode, strings.TrimSpace(string(body)))
}

// Package litellm is a client for the LiteLLM proxy admin API. It provisions
// proxy users, issues and revokes virtual keys, and verifies keys.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"openhands-enterprise/backend/internal/observability/logger"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 30 * time.Second

// Config carries the admin API connection settings. The admin API is
// optional; with an empty URL or key every provisioning call becomes a no-op
// at the service layer.
type Config struct {
	// APIURL is the base URL of the proxy, e.g. https://llm.example.com.
	APIURL string
	// APIKey is the proxy master key.
	APIKey string
	// TeamID is the team new users are added to. Optional.
	TeamID string
}

// Enabled reports whether the admin API is configured.
func (c Config) Enabled() bool { return c.APIURL != "" && c.APIKey != "" }

// APIError is a non-2xx response from the admin API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("litellm: status %d: %s", e.Status, e.Body)
}

// Client talks to the LiteLLM proxy admin API with the master key.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient builds a client. A nil logger is replaced with a no-op logger.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		log:        log,
	}
}

// Enabled reports whether the admin API is configured.
func (c *Client) Enabled() bool { return c.cfg.Enabled() }

// UserInfo is the subset of the proxy's user record this service reads.
// Budget and spend are pointers so an empty record is distinguishable from
// explicit zeros.
type UserInfo struct {
	MaxBudget *float64 `json:"max_budget"`
	Spend     *float64 `json:"spend"`
}

// GetUserInfo fetches the proxy's record for a user. It returns (nil, nil)
// when the proxy does not know the user: older proxies answer 200 with a
// null user_info, newer ones answer 404.
func (c *Client) GetUserInfo(ctx context.Context, userID string) (*UserInfo, error) {
	endpoint := c.cfg.APIURL + "/user/info?user_id=" + url.QueryEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp)
	}

	var payload struct {
		UserInfo *UserInfo `json:"user_info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return payload.UserInfo, nil
}

// CreateUserRequest describes a user to provision. A nil Email creates the
// user without an email binding, which sidesteps duplicate-email conflicts
// when the email is already claimed by another proxy user.
type CreateUserRequest struct {
	UserID    string
	Email     *string
	MaxBudget float64
	Spend     float64
	Model     string
	Version   int
}

// CreateUser provisions a proxy user with an auto-created virtual key and
// returns that key.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (string, error) {
	teams := []string{}
	if c.cfg.TeamID != "" {
		teams = append(teams, c.cfg.TeamID)
	}
	var model any
	if req.Model != "" {
		model = req.Model
	}
	payload := map[string]any{
		"user_id":           req.UserID,
		"user_email":        req.Email,
		"models":            []string{},
		"max_budget":        req.MaxBudget,
		"spend":             req.Spend,
		"teams":             teams,
		"auto_create_key":   true,
		"send_invite_email": false,
		"metadata": map[string]any{
			"version": req.Version,
			"model":   model,
		},
	}

	var out struct {
		Key string `json:"key"`
	}
	if err := c.post(ctx, "/user/new", payload, &out); err != nil {
		return "", err
	}
	if out.Key == "" {
		return "", errors.New("litellm: user/new response missing key")
	}
	return out.Key, nil
}

// DeleteUser removes the proxy user and all of its keys.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.post(ctx, "/user/delete", map[string]any{"user_ids": []string{userID}}, nil)
}

// GenerateKey creates a fresh virtual key bound to the user.
func (c *Client) GenerateKey(ctx context.Context, userID string) (string, error) {
	payload := map[string]any{"user_id": userID}
	if c.cfg.TeamID != "" {
		payload["team_id"] = c.cfg.TeamID
	}
	var out struct {
		Key string `json:"key"`
	}
	if err := c.post(ctx, "/key/generate", payload, &out); err != nil {
		return "", err
	}
	if out.Key == "" {
		return "", errors.New("litellm: key/generate response missing key")
	}
	return out.Key, nil
}

// DeleteKey revokes one virtual key.
func (c *Client) DeleteKey(ctx context.Context, key string) error {
	return c.post(ctx, "/key/delete", map[string]any{"keys": []string{key}}, nil)
}

// VerifyKey reports whether the key is accepted by the proxy, checked with a
// model-list call authenticated as that key. Every failure mode reports
// false: auth rejection, proxy errors, timeouts, network errors, and missing
// configuration. Verification never surfaces an error to the caller.
func (c *Client) VerifyKey(ctx context.Context, key string) bool {
	if key == "" || c.cfg.APIURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("litellm key verification request failed",
			zap.String("key", logger.MaskAPIKey(key)),
			zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
}

func newAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// Package settings manages per-user LLM settings and provisions users in the
// LiteLLM proxy. Users on managed defaults follow the current default model
// across version bumps; users who brought their own model, base URL or key
// are never auto-migrated.
package settings

import (
	"context"
	"fmt"

	"openhands-enterprise/backend/internal/litellm"
	"openhands-enterprise/backend/internal/settings/domain"
	"openhands-enterprise/backend/internal/settings/repository"

	"go.uber.org/zap"
)

// defaultMaxBudget is the proxy budget for users LiteLLM does not know yet.
const defaultMaxBudget = 10.0

// Provisioner is the slice of the LiteLLM admin client the service needs.
type Provisioner interface {
	Enabled() bool
	GetUserInfo(ctx context.Context, userID string) (*litellm.UserInfo, error)
	DeleteUser(ctx context.Context, userID string) error
	CreateUser(ctx context.Context, req litellm.CreateUserRequest) (string, error)
}

// Service applies managed LLM defaults to user settings.
type Service struct {
	repo           repository.Repository
	llm            Provisioner
	defaultBaseURL string
	log            *zap.Logger
}

// NewService builds a settings service. defaultBaseURL is the proxy URL users
// run against; settings pointing anywhere else count as custom.
func NewService(repo repository.Repository, llm Provisioner, defaultBaseURL string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, llm: llm, defaultBaseURL: defaultBaseURL, log: log}
}

// Get returns the user's settings, or (nil, nil) when none exist yet.
func (s *Service) Get(ctx context.Context, userID string) (*domain.UserSettings, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// ProvisionUser loads (or initializes) the user's settings, applies managed
// defaults, and persists the result. Called on login.
func (s *Service) ProvisionUser(ctx context.Context, userID, email string) (*domain.UserSettings, error) {
	current, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	updated, err := s.ApplyDefaults(ctx, userID, email, current)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return updated, nil
}

// ApplyDefaults provisions the user in the LiteLLM proxy and fills managed
// defaults into current. Custom settings are preserved; only a blank API key
// is filled from the freshly issued proxy key. Non-custom users are moved to
// the current default model and base URL, which upgrades anyone still on the
// stock model of an older settings version. No-op when the admin API is not
// configured. A nil current is treated as empty settings for the user.
func (s *Service) ApplyDefaults(ctx context.Context, userID, email string, current *domain.UserSettings) (*domain.UserSettings, error) {
	if current == nil {
		current = &domain.UserSettings{KeycloakUserID: userID, BillingMargin: 1.0}
	}
	if s.llm == nil || !s.llm.Enabled() {
		return current, nil
	}

	stored, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load stored settings: %w", err)
	}
	storedVersion := 0
	margin := 1.0
	if stored != nil {
		storedVersion = stored.UserVersion
		margin = stored.BillingMargin
	}

	info, err := s.llm.GetUserInfo(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("litellm user info: %w", err)
	}
	maxBudget := defaultMaxBudget
	spend := 0.0
	if info != nil {
		if info.MaxBudget != nil {
			maxBudget = *info.MaxBudget
		}
		if info.Spend != nil {
			spend = *info.Spend
		}
	}

	// Rows written before the margin moved into the proxy budget carry it
	// separately; fold it in once and reset it below.
	migrateMargin := storedVersion < domain.BillingMarginVersion && margin != 1.0
	if migrateMargin {
		maxBudget *= margin
		spend *= margin
	}

	hasCustom := domain.HasCustomSettings(current, storedVersion, s.defaultBaseURL)
	model := current.Model()
	if !hasCustom {
		model = domain.CurrentDefaultModel()
	}

	key, err := s.provisionProxyUser(ctx, userID, email, maxBudget, spend, model)
	if err != nil {
		return nil, err
	}

	if !hasCustom {
		baseURL := s.defaultBaseURL
		current.LLMModel = &model
		current.LLMBaseURL = &baseURL
	}
	if current.APIKey() == "" {
		current.LLMAPIKey = &key
	}

	if migrateMargin {
		if err := s.repo.SetBillingMargin(ctx, userID, 1.0); err != nil {
			return nil, fmt.Errorf("reset billing margin: %w", err)
		}
		s.log.Info("billing margin folded into proxy budget",
			zap.String("user_id", userID), zap.Float64("margin", margin))
	}
	return current, nil
}

// provisionProxyUser recreates the proxy user: delete, then create with an
// auto-issued key. Recreating refreshes team membership and metadata for
// existing users while their budget and spend are carried over. A create
// rejected because the email is already claimed is retried once without it.
func (s *Service) provisionProxyUser(ctx context.Context, userID, email string, maxBudget, spend float64, model string) (string, error) {
	if err := s.llm.DeleteUser(ctx, userID); err != nil {
		s.log.Warn("litellm user delete before recreate failed",
			zap.String("user_id", userID), zap.Error(err))
	}

	req := litellm.CreateUserRequest{
		UserID:    userID,
		MaxBudget: maxBudget,
		Spend:     spend,
		Model:     model,
		Version:   domain.CurrentUserSettingsVersion,
	}
	if email != "" {
		req.Email = &email
	}

	key, err := s.llm.CreateUser(ctx, req)
	if err == nil {
		return key, nil
	}
	if req.Email == nil {
		return "", fmt.Errorf("provision litellm user: %w", err)
	}

	s.log.Warn("litellm user create failed, retrying without email",
		zap.String("user_id", userID), zap.Error(err))
	req.Email = nil
	key, err = s.llm.CreateUser(ctx, req)
	if err != nil {
		return "", fmt.Errorf("provision litellm user: %w", err)
	}
	return key, nil
}

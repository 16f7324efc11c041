// Package apikeys resolves the LiteLLM proxy key handed to authenticated
// clients. Keys are issued by the proxy and cached in the database; a cached
// key is re-verified against the proxy on every resolution and replaced when
// it stops working.
package apikeys

import (
	"context"
	"fmt"

	"openhands-enterprise/backend/internal/apikeys/domain"
	"openhands-enterprise/backend/internal/apikeys/repository"
	"openhands-enterprise/backend/internal/observability/logger"

	"go.uber.org/zap"
)

// KeyProvider issues and retires proxy keys.
type KeyProvider interface {
	GenerateKey(ctx context.Context, userID string) (string, error)
	DeleteKey(ctx context.Context, key string) error
	// VerifyKey reports whether the key is accepted by the proxy. Transport
	// failures count as not accepted.
	VerifyKey(ctx context.Context, key string) bool
}

// Service hands out per-user proxy keys.
type Service struct {
	repo repository.Repository
	llm  KeyProvider
	log  *zap.Logger
}

// NewService creates an API key service.
func NewService(repo repository.Repository, llm KeyProvider, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, llm: llm, log: log}
}

// GetOrCreateLitellmKey returns a working proxy key for the user, generating
// one when none is stored and replacing a stored key that no longer
// verifies.
func (s *Service) GetOrCreateLitellmKey(ctx context.Context, userID string) (string, error) {
	stored, err := s.repo.GetByUserAndProvider(ctx, userID, domain.ProviderLitellm)
	if err != nil {
		return "", fmt.Errorf("load api key: %w", err)
	}

	if stored == nil {
		key, err := s.llm.GenerateKey(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("generate litellm key: %w", err)
		}
		record := &domain.ApiKey{UserID: userID, Provider: domain.ProviderLitellm, Key: key}
		if err := s.repo.Create(ctx, record); err != nil {
			return "", fmt.Errorf("store api key: %w", err)
		}
		return key, nil
	}

	if s.llm.VerifyKey(ctx, stored.Key) {
		return stored.Key, nil
	}

	// The stored key stopped working. Retire it best-effort and issue a
	// replacement; a failed delete must not block the user.
	if err := s.llm.DeleteKey(ctx, stored.Key); err != nil {
		s.log.Warn("delete stale litellm key failed",
			zap.String("user_id", userID),
			zap.String("key", logger.MaskAPIKey(stored.Key)),
			zap.Error(err))
	}
	key, err := s.llm.GenerateKey(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("generate litellm key: %w", err)
	}
	if err := s.repo.UpdateKey(ctx, stored.ID, key); err != nil {
		return "", fmt.Errorf("store api key: %w", err)
	}
	return key, nil
}

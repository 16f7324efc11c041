// Package devicecode implements the device authorization flow: a CLI or IDE
// plugin obtains a code pair, the person approves the short user code in the
// browser, and the device polls with the long device code until the row is
// authorized or denied.
package devicecode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"openhands-enterprise/backend/internal/devicecode/domain"
	"openhands-enterprise/backend/internal/devicecode/repository"

	"go.uber.org/zap"
)

// maxCreateAttempts bounds code regeneration when a generated pair collides
// with an existing row.
const maxCreateAttempts = 3

// Service drives device code issuance, approval, and cleanup.
type Service struct {
	repo repository.Repository
	ttl  time.Duration
	log  *zap.Logger

	nowFn func() time.Time
}

// NewService creates a device code service. ttl is the lifetime of issued
// code pairs.
func NewService(repo repository.Repository, ttl time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:  repo,
		ttl:   ttl,
		log:   log,
		nowFn: time.Now,
	}
}

// Create issues a fresh pending code pair. Collisions with existing rows are
// retried with new codes up to maxCreateAttempts times.
func (s *Service) Create(ctx context.Context) (*domain.DeviceCode, error) {
	var lastErr error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		deviceCode, err := GenerateDeviceCode()
		if err != nil {
			return nil, fmt.Errorf("generate device code: %w", err)
		}
		userCode, err := GenerateUserCode()
		if err != nil {
			return nil, fmt.Errorf("generate user code: %w", err)
		}

		code := &domain.DeviceCode{
			DeviceCode: deviceCode,
			UserCode:   userCode,
			Status:     domain.StatusPending,
			ExpiresAt:  s.nowFn().Add(s.ttl),
		}
		err = s.repo.Create(ctx, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return nil, err
		}
		lastErr = err
		s.log.Warn("device code collision, regenerating", zap.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("failed to generate unique device codes after %d attempts: %w", maxCreateAttempts, lastErr)
}

// GetByDeviceCode returns the row the device is polling for, or (nil, nil)
// when the code is unknown.
func (s *Service) GetByDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, error) {
	return s.repo.GetByDeviceCode(ctx, deviceCode)
}

// GetByUserCode returns the row for a typed user code, or (nil, nil) when
// the code is unknown.
func (s *Service) GetByUserCode(ctx context.Context, userCode string) (*domain.DeviceCode, error) {
	return s.repo.GetByUserCode(ctx, userCode)
}

// Authorize binds the pending code identified by userCode to userID. It
// reports false when the code is unknown, expired, or already resolved.
func (s *Service) Authorize(ctx context.Context, userCode, userID string) (bool, error) {
	code, err := s.repo.GetByUserCode(ctx, userCode)
	if err != nil {
		return false, err
	}
	if code == nil || !code.Pending(s.nowFn()) {
		return false, nil
	}

	code.Authorize(userID)
	if err := s.repo.Update(ctx, code); err != nil {
		return false, err
	}
	s.log.Info("device code authorized", zap.String("user_id", userID))
	return true, nil
}

// Deny rejects the pending code identified by userCode. It reports false
// when the code is unknown, expired, or already resolved.
func (s *Service) Deny(ctx context.Context, userCode string) (bool, error) {
	code, err := s.repo.GetByUserCode(ctx, userCode)
	if err != nil {
		return false, err
	}
	if code == nil || !code.Pending(s.nowFn()) {
		return false, nil
	}

	code.Deny()
	if err := s.repo.Update(ctx, code); err != nil {
		return false, err
	}
	return true, nil
}

// CleanupStale deletes at most limit expired rows and returns the deleted
// count. Pending, authorized, and denied rows past their expiry are all
// eligible.
func (s *Service) CleanupStale(ctx context.Context, limit int) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.nowFn(), limit)
}

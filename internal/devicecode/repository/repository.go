// Package repository provides data access for device authorization codes.
package repository

import (
	"context"
	"errors"
	"time"

	"openhands-enterprise/backend/internal/devicecode/domain"
)

// ErrDuplicateCode is returned by Create when a generated code collides with
// an existing row. Callers regenerate and retry.
var ErrDuplicateCode = errors.New("device code already exists")

// Repository persists device authorization codes.
type Repository interface {
	// Create inserts a new code row. Returns ErrDuplicateCode when either
	// code collides with an existing row.
	Create(ctx context.Context, code *domain.DeviceCode) error

	// GetByDeviceCode returns the row for a device code, or (nil, nil) when
	// absent.
	GetByDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, error)

	// GetByUserCode returns the row for a user code, or (nil, nil) when
	// absent.
	GetByUserCode(ctx context.Context, userCode string) (*domain.DeviceCode, error)

	// Update persists status transitions.
	Update(ctx context.Context, code *domain.DeviceCode) error

	// DeleteExpired deletes at most limit rows whose expiry lies before the
	// given time, oldest first, and returns the deleted count.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error)
}

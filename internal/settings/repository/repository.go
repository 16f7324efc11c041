// Package repository provides data access for per-user settings.
package repository

import (
	"context"

	"openhands-enterprise/backend/internal/settings/domain"
)

// Repository persists user settings rows.
type Repository interface {
	// GetByUserID returns the settings for a Keycloak user id, or (nil, nil)
	// when the user has no settings row yet.
	GetByUserID(ctx context.Context, keycloakUserID string) (*domain.UserSettings, error)

	// Save inserts or updates the row for s.KeycloakUserID and stamps it with
	// the current settings version.
	Save(ctx context.Context, s *domain.UserSettings) error

	// SetBillingMargin updates only the billing margin of an existing row,
	// leaving the stored version untouched.
	SetBillingMargin(ctx context.Context, keycloakUserID string, margin float64) error
}

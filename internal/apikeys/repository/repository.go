// Package repository provides data access for provisioned API keys.
package repository

import (
	"context"

	"openhands-enterprise/backend/internal/apikeys/domain"

	"github.com/bwmarrin/snowflake"
)

// Repository persists provisioned API keys.
type Repository interface {
	// GetByUserAndProvider returns the user's key for a provider, or
	// (nil, nil) when absent.
	GetByUserAndProvider(ctx context.Context, userID, provider string) (*domain.ApiKey, error)
	Create(ctx context.Context, key *domain.ApiKey) error
	// UpdateKey replaces the key material of an existing record.
	UpdateKey(ctx context.Context, id snowflake.ID, key string) error
}

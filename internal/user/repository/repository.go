package repository

import (
	"context"

	"openhands-enterprise/backend/internal/user/domain"

	"github.com/bwmarrin/snowflake"
)

// Repository defines persistence for users.
type Repository interface {
	GetByKeycloakID(ctx context.Context, keycloakUserID string) (*domain.User, error)
	// ListByEmail returns all users with the given email ordered by creation
	// time ascending. Used for duplicate-account detection.
	ListByEmail(ctx context.Context, email string) ([]domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id snowflake.ID) error
	// FirstAcceptedTOSEmail returns the email of the earliest user that
	// accepted the terms of service and has a non-empty email, or "" when no
	// such user exists.
	FirstAcceptedTOSEmail(ctx context.Context) (string, error)
	Count(ctx context.Context) (int64, error)
}

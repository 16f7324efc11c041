package repository

import (
	"context"
	"errors"

	"openhands-enterprise/backend/internal/user/domain"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type PostgresRepository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *gorm.DB, genID *snowflake.Node) *PostgresRepository {
	return &PostgresRepository{db: db, genID: genID}
}

// GetByKeycloakID returns the user for the Keycloak subject, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByKeycloakID(ctx context.Context, keycloakUserID string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("keycloak_user_id = ?", keycloakUserID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// ListByEmail returns all users with the given email ordered by creation time ascending.
func (r *PostgresRepository) ListByEmail(ctx context.Context, email string) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).Where("email = ?", email).Order("created_at ASC").Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Create persists the user. An unset ID is assigned before insert.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.ID == 0 {
		u.ID = r.genID.Generate()
	}
	return r.db.WithContext(ctx).Create(u).Error
}

// Update saves the user record. Missing rows are not an error.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(u).Error
}

// Delete removes the user row. Deleting a missing row is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Delete(&domain.User{}, "id = ?", id).Error
}

// FirstAcceptedTOSEmail returns the email of the earliest accepted-ToS user
// with a non-empty email, or "" when no such user exists.
func (r *PostgresRepository) FirstAcceptedTOSEmail(ctx context.Context) (string, error) {
	var u domain.User
	err := r.db.WithContext(ctx).
		Where("accepted_tos IS NOT NULL").
		Where("email <> ''").
		Order("accepted_tos ASC").
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return u.Email, nil
}

// Count returns the total number of users.
func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

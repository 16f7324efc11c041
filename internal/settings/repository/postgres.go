package repository

import (
	"context"
	"errors"

	"openhands-enterprise/backend/internal/settings/domain"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PostgresRepository is a GORM-backed settings repository.
type PostgresRepository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

// NewPostgresRepository creates a settings repository.
func NewPostgresRepository(db *gorm.DB, genID *snowflake.Node) *PostgresRepository {
	return &PostgresRepository{db: db, genID: genID}
}

// GetByUserID returns the settings for a Keycloak user id, or (nil, nil) when
// no row exists.
func (r *PostgresRepository) GetByUserID(ctx context.Context, keycloakUserID string) (*domain.UserSettings, error) {
	var s domain.UserSettings
	err := r.db.WithContext(ctx).
		Where("keycloak_user_id = ?", keycloakUserID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Save inserts or updates the settings row and stamps it with the current
// settings version.
func (r *PostgresRepository) Save(ctx context.Context, s *domain.UserSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	existing, err := r.GetByUserID(ctx, s.KeycloakUserID)
	if err != nil {
		return err
	}

	s.UserVersion = domain.CurrentUserSettingsVersion
	if existing != nil {
		s.ID = existing.ID
		s.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(s).Error
	}

	if s.ID == 0 {
		s.ID = r.genID.Generate()
	}
	return r.db.WithContext(ctx).Create(s).Error
}

// SetBillingMargin updates only the billing margin of an existing row.
func (r *PostgresRepository) SetBillingMargin(ctx context.Context, keycloakUserID string, margin float64) error {
	return r.db.WithContext(ctx).
		Model(&domain.UserSettings{}).
		Where("keycloak_user_id = ?", keycloakUserID).
		Update("billing_margin", margin).Error
}

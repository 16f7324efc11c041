package repository

import (
	"context"
	"errors"

	"openhands-enterprise/backend/internal/apikeys/domain"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PostgresRepository is a GORM-backed API key repository.
type PostgresRepository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

// NewPostgresRepository creates an API key repository.
func NewPostgresRepository(db *gorm.DB, genID *snowflake.Node) *PostgresRepository {
	return &PostgresRepository{db: db, genID: genID}
}

// GetByUserAndProvider returns the user's key for a provider, or (nil, nil)
// when absent.
func (r *PostgresRepository) GetByUserAndProvider(ctx context.Context, userID, provider string) (*domain.ApiKey, error) {
	var key domain.ApiKey
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// Create inserts the key record, assigning an id when unset.
func (r *PostgresRepository) Create(ctx context.Context, key *domain.ApiKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if key.ID == 0 {
		key.ID = r.genID.Generate()
	}
	return r.db.WithContext(ctx).Create(key).Error
}

// UpdateKey replaces the key material of an existing record.
func (r *PostgresRepository) UpdateKey(ctx context.Context, id snowflake.ID, key string) error {
	return r.db.WithContext(ctx).
		Model(&domain.ApiKey{}).
		Where("id = ?", id).
		Update("key", key).Error
}

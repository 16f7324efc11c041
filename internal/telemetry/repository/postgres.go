package repository

import (
	"context"
	"errors"

	"openhands-enterprise/backend/internal/telemetry/domain"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PostgresRepository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

// NewPostgresRepository returns a telemetry repository that uses the given db for persistence.
func NewPostgresRepository(db *gorm.DB, genID *snowflake.Node) *PostgresRepository {
	return &PostgresRepository{db: db, genID: genID}
}

// SaveBatch inserts a new metric batch. An unset ID is assigned before insert;
// a nil metrics map is stored as an empty object.
func (r *PostgresRepository) SaveBatch(ctx context.Context, b *domain.MetricBatch) error {
	if b.ID == 0 {
		b.ID = r.genID.Generate()
	}
	if b.MetricsData == nil {
		b.MetricsData = datatypes.JSONMap{}
	}
	return r.db.WithContext(ctx).Create(b).Error
}

// LatestCollected returns the most recently collected batch, or nil when no
// batch exists. It returns an error only for database failures.
func (r *PostgresRepository) LatestCollected(ctx context.Context) (*domain.MetricBatch, error) {
	var b domain.MetricBatch
	err := r.db.WithContext(ctx).Order("collected_at DESC").First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// LatestUploaded returns the uploaded batch with the most recent uploaded_at,
// or nil when nothing has been uploaded yet.
func (r *PostgresRepository) LatestUploaded(ctx context.Context) (*domain.MetricBatch, error) {
	var b domain.MetricBatch
	err := r.db.WithContext(ctx).
		Where("uploaded_at IS NOT NULL").
		Order("uploaded_at DESC").
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// ListPending returns all batches awaiting upload, oldest collection first.
func (r *PostgresRepository) ListPending(ctx context.Context) ([]*domain.MetricBatch, error) {
	var batches []*domain.MetricBatch
	err := r.db.WithContext(ctx).
		Where("uploaded_at IS NULL").
		Order("collected_at ASC").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// CountBatches returns the total number of metric batches.
func (r *PostgresRepository) CountBatches(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.MetricBatch{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// CountPending returns the number of batches awaiting upload.
func (r *PostgresRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.MetricBatch{}).
		Where("uploaded_at IS NULL").
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateBatches persists mutations to the given batches in one transaction,
// so a crash mid-upload never leaves a half-written watermark.
func (r *PostgresRepository) UpdateBatches(ctx context.Context, batches []*domain.MetricBatch) error {
	if len(batches) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, b := range batches {
			if err := tx.Save(b).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetIdentity returns the singleton identity row, or nil if it does not exist.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetIdentity(ctx context.Context) (*domain.Identity, error) {
	var identity domain.Identity
	err := r.db.WithContext(ctx).Where("id = ?", domain.IdentityRowID).First(&identity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &identity, nil
}

// SaveIdentity creates or updates the singleton identity row. The row id is
// forced to IdentityRowID regardless of the value passed in.
func (r *PostgresRepository) SaveIdentity(ctx context.Context, identity *domain.Identity) error {
	identity.ID = domain.IdentityRowID
	existing, err := r.GetIdentity(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.WithContext(ctx).Create(identity).Error
	}
	return r.db.WithContext(ctx).Save(identity).Error
}

package repository

import (
	"context"
	"errors"
	"time"

	"openhands-enterprise/backend/internal/devicecode/domain"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PostgresRepository is a GORM-backed device code repository.
type PostgresRepository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

// NewPostgresRepository creates a device code repository.
func NewPostgresRepository(db *gorm.DB, genID *snowflake.Node) *PostgresRepository {
	return &PostgresRepository{db: db, genID: genID}
}

// Create inserts the code row, assigning an id when unset. Unique violations
// on either code column come back as ErrDuplicateCode.
func (r *PostgresRepository) Create(ctx context.Context, code *domain.DeviceCode) error {
	if code.ID == 0 {
		code.ID = r.genID.Generate()
	}
	err := r.db.WithContext(ctx).Create(code).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateCode
	}
	return err
}

// GetByDeviceCode returns the row for a device code, or (nil, nil) when absent.
func (r *PostgresRepository) GetByDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, error) {
	return r.getBy(ctx, "device_code = ?", deviceCode)
}

// GetByUserCode returns the row for a user code, or (nil, nil) when absent.
func (r *PostgresRepository) GetByUserCode(ctx context.Context, userCode string) (*domain.DeviceCode, error) {
	return r.getBy(ctx, "user_code = ?", userCode)
}

func (r *PostgresRepository) getBy(ctx context.Context, query string, arg any) (*domain.DeviceCode, error) {
	var code domain.DeviceCode
	err := r.db.WithContext(ctx).Where(query, arg).First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// Update persists the row.
func (r *PostgresRepository) Update(ctx context.Context, code *domain.DeviceCode) error {
	return r.db.WithContext(ctx).Save(code).Error
}

// DeleteExpired deletes at most limit expired rows, oldest first. The ids are
// selected first so the limit holds on Postgres, which has no DELETE LIMIT.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&domain.DeviceCode{}).
		Where("expires_at < ?", before).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.DeviceCode{})
	return res.RowsAffected, res.Error
}

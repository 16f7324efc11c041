package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// IdentityRowID is the fixed primary key of the singleton identity row.
const IdentityRowID = 1

// Identity is the singleton licensing identity for this installation.
// It is created lazily on the first upload tick that can resolve an admin
// email, and never deleted.
type Identity struct {
	ID         int       `gorm:"primaryKey"`
	CustomerID *string   `gorm:"type:text"`
	InstanceID *string   `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Identity) TableName() string { return "telemetry_identity" }

// Established reports whether both the customer and instance ids are set.
// Scheduling switches from the bootstrap interval to the normal interval once
// this holds.
func (i *Identity) Established() bool {
	return i != nil && i.CustomerID != nil && i.InstanceID != nil
}

// MetricBatch is one collection snapshot. Batches are created by the
// collection loop and mutated by the upload loop; they are never deleted.
type MetricBatch struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	MetricsData     datatypes.JSONMap `gorm:"column:metrics_data;type:jsonb;not null"`
	CollectedAt     time.Time         `gorm:"not null;index"`
	UploadedAt      *time.Time        `gorm:"index"` // nil while the batch is pending
	UploadAttempts  int               `gorm:"not null;default:0"`
	LastUploadError *string           `gorm:"type:text"`
}

// TableName sets the database table name.
func (MetricBatch) TableName() string { return "telemetry_metrics" }

// Pending reports whether the batch has not been uploaded yet.
func (b *MetricBatch) Pending() bool { return b.UploadedAt == nil }

// Metric is a single key/value measurement produced by a collector.
type Metric struct {
	Key   string
	Value any
}

package repository

import (
	"context"

	"openhands-enterprise/backend/internal/telemetry/domain"
)

// Repository defines persistence for metric batches and the identity singleton.
type Repository interface {
	// SaveBatch inserts a new metric batch. An unset ID is assigned.
	SaveBatch(ctx context.Context, b *domain.MetricBatch) error
	// LatestCollected returns the batch with the most recent collected_at,
	// or nil when no batch exists.
	LatestCollected(ctx context.Context) (*domain.MetricBatch, error)
	// LatestUploaded returns the uploaded batch with the most recent
	// uploaded_at, or nil when nothing has been uploaded.
	LatestUploaded(ctx context.Context) (*domain.MetricBatch, error)
	// ListPending returns all batches with no uploaded_at, ordered by
	// collected_at ascending.
	ListPending(ctx context.Context) ([]*domain.MetricBatch, error)
	CountBatches(ctx context.Context) (int64, error)
	CountPending(ctx context.Context) (int64, error)
	// UpdateBatches persists mutations to the given batches in one
	// transaction.
	UpdateBatches(ctx context.Context, batches []*domain.MetricBatch) error

	// GetIdentity returns the singleton identity row, or nil when it has not
	// been created yet.
	GetIdentity(ctx context.Context) (*domain.Identity, error)
	// SaveIdentity creates or updates the singleton identity row.
	SaveIdentity(ctx context.Context, identity *domain.Identity) error
}

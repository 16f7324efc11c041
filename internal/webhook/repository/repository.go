// Package repository provides data access for GitLab webhook records.
package repository

import (
	"context"

	"openhands-enterprise/backend/internal/webhook/domain"
)

// Repository persists GitLab webhook installation state. Lookups identify a
// resource by exactly one of projectID and groupID.
type Repository interface {
	// Upsert writes the record for the webhook's resource, replacing any
	// existing row for the same project or group.
	Upsert(ctx context.Context, webhook *domain.GitlabWebhook) error

	// GetByResource returns the record for a resource owned by userID, or
	// (nil, nil) when absent.
	GetByResource(ctx context.Context, projectID, groupID *string, userID string) (*domain.GitlabWebhook, error)

	// GetByResourceOnly returns the record for a resource regardless of the
	// installing user, or (nil, nil) when absent.
	GetByResourceOnly(ctx context.Context, projectID, groupID *string) (*domain.GitlabWebhook, error)

	// MarkForReinstallation clears webhook_exists on every record owned by
	// userID and returns the number of records, counting rows that were
	// already cleared.
	MarkForReinstallation(ctx context.Context, userID string) (int64, error)

	// ResetByResource clears the install state of one resource and records
	// userID as the last user to touch it. Reports false when the resource
	// has no record.
	ResetByResource(ctx context.Context, projectID, groupID *string, userID string) (bool, error)

	// GetByResources bulk-fetches records, returning maps keyed by project
	// id and by group id. Unknown ids are simply absent from the maps.
	GetByResources(ctx context.Context, projectIDs, groupIDs []string) (map[string]*domain.GitlabWebhook, map[string]*domain.GitlabWebhook, error)
}

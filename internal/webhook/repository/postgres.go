package repository

import (
	"context"
	"errors"

	"openhands-enterprise/backend/internal/webhook/domain"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PostgresRepository is a GORM-backed webhook repository.
type PostgresRepository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

// NewPostgresRepository creates a webhook repository.
func NewPostgresRepository(db *gorm.DB, genID *snowflake.Node) *PostgresRepository {
	return &PostgresRepository{db: db, genID: genID}
}

// Upsert writes the record for the webhook's resource. An existing row for
// the same project or group keeps its id and creation time.
func (r *PostgresRepository) Upsert(ctx context.Context, webhook *domain.GitlabWebhook) error {
	if err := webhook.Validate(); err != nil {
		return err
	}

	existing, err := r.GetByResourceOnly(ctx, webhook.ProjectID, webhook.GroupID)
	if err != nil {
		return err
	}
	if existing != nil {
		webhook.ID = existing.ID
		webhook.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(webhook).Error
	}

	if webhook.ID == 0 {
		webhook.ID = r.genID.Generate()
	}
	return r.db.WithContext(ctx).Create(webhook).Error
}

// GetByResource returns the record for a resource owned by userID, or
// (nil, nil) when absent.
func (r *PostgresRepository) GetByResource(ctx context.Context, projectID, groupID *string, userID string) (*domain.GitlabWebhook, error) {
	q, err := r.resourceQuery(ctx, projectID, groupID)
	if err != nil {
		return nil, err
	}
	return first(q.Where("user_id = ?", userID))
}

// GetByResourceOnly returns the record for a resource regardless of the
// installing user, or (nil, nil) when absent.
func (r *PostgresRepository) GetByResourceOnly(ctx context.Context, projectID, groupID *string) (*domain.GitlabWebhook, error) {
	q, err := r.resourceQuery(ctx, projectID, groupID)
	if err != nil {
		return nil, err
	}
	return first(q)
}

// MarkForReinstallation clears webhook_exists for every record owned by
// userID. The count includes rows that were already cleared.
func (r *PostgresRepository) MarkForReinstallation(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.GitlabWebhook{}).
		Where("user_id = ?", userID).
		Update("webhook_exists", false)
	return res.RowsAffected, res.Error
}

// ResetByResource clears the install state of one resource and reassigns the
// record to userID. Any user may reset a resource, not just the installer.
func (r *PostgresRepository) ResetByResource(ctx context.Context, projectID, groupID *string, userID string) (bool, error) {
	q, err := r.resourceQuery(ctx, projectID, groupID)
	if err != nil {
		return false, err
	}
	res := q.Model(&domain.GitlabWebhook{}).Updates(map[string]any{
		"webhook_exists": false,
		"webhook_uuid":   nil,
		"user_id":        userID,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetByResources bulk-fetches records keyed by project id and by group id.
func (r *PostgresRepository) GetByResources(ctx context.Context, projectIDs, groupIDs []string) (map[string]*domain.GitlabWebhook, map[string]*domain.GitlabWebhook, error) {
	projects := make(map[string]*domain.GitlabWebhook, len(projectIDs))
	groups := make(map[string]*domain.GitlabWebhook, len(groupIDs))

	if len(projectIDs) > 0 {
		var rows []domain.GitlabWebhook
		if err := r.db.WithContext(ctx).Where("project_id IN ?", projectIDs).Find(&rows).Error; err != nil {
			return nil, nil, err
		}
		for i := range rows {
			projects[*rows[i].ProjectID] = &rows[i]
		}
	}
	if len(groupIDs) > 0 {
		var rows []domain.GitlabWebhook
		if err := r.db.WithContext(ctx).Where("group_id IN ?", groupIDs).Find(&rows).Error; err != nil {
			return nil, nil, err
		}
		for i := range rows {
			groups[*rows[i].GroupID] = &rows[i]
		}
	}
	return projects, groups, nil
}

func (r *PostgresRepository) resourceQuery(ctx context.Context, projectID, groupID *string) (*gorm.DB, error) {
	q := r.db.WithContext(ctx)
	switch {
	case projectID != nil && groupID == nil:
		return q.Where("project_id = ?", *projectID), nil
	case groupID != nil && projectID == nil:
		return q.Where("group_id = ?", *groupID), nil
	default:
		return nil, errors.New("exactly one of project id or group id must be set")
	}
}

func first(q *gorm.DB) (*domain.GitlabWebhook, error) {
	var webhook domain.GitlabWebhook
	err := q.First(&webhook).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &webhook, nil
}

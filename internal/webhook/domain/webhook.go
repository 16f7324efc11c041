// Package domain defines GitLab webhook installation records.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// GitlabWebhook tracks one webhook installed on a GitLab project or group.
// Exactly one of ProjectID and GroupID is set. WebhookExists is flipped off
// to mark the hook for reinstallation on the user's next interaction.
type GitlabWebhook struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	ProjectID     *string      `gorm:"column:project_id;type:text;index"`
	GroupID       *string      `gorm:"column:group_id;type:text;index"`
	UserID        string       `gorm:"column:user_id;type:text;not null;index"`
	WebhookExists bool         `gorm:"column:webhook_exists;not null;default:false"`
	WebhookURL    string       `gorm:"column:webhook_url;type:text;not null"`
	WebhookSecret string       `gorm:"column:webhook_secret;type:text;not null"`
	WebhookUUID   *string      `gorm:"column:webhook_uuid;type:text"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (GitlabWebhook) TableName() string { return "gitlab_webhooks" }

// Validate checks required fields and the project/group exclusivity rule.
func (w *GitlabWebhook) Validate() error {
	if (w.ProjectID == nil) == (w.GroupID == nil) {
		return errors.New("exactly one of project id or group id must be set")
	}
	if w.UserID == "" {
		return errors.New("user id is required")
	}
	return nil
}

package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// UserSettings is the per-user LLM configuration. The model, base URL and
// API key are nil while the user runs on managed defaults; a user who brings
// their own provider fills them in and is never auto-migrated afterwards.
type UserSettings struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	KeycloakUserID   string       `gorm:"column:keycloak_user_id;type:text;not null;uniqueIndex"`
	LLMModel         *string      `gorm:"column:llm_model;type:text"`
	LLMBaseURL       *string      `gorm:"column:llm_base_url;type:text"`
	LLMAPIKey        *string      `gorm:"column:llm_api_key;type:text"`
	MaxBudgetPerTask *float64     `gorm:"column:max_budget_per_task"`
	UserVersion      int          `gorm:"not null;default:0"`
	BillingMargin    float64      `gorm:"not null;default:1"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UserSettings) TableName() string { return "user_settings" }

// Validate validates the settings for persistence.
func (s *UserSettings) Validate() error {
	if s.KeycloakUserID == "" {
		return errors.New("keycloak user id is required")
	}
	return nil
}

// Model returns the trimmed model reference, or "" when unset.
func (s *UserSettings) Model() string {
	return strings.TrimSpace(stringValue(s.LLMModel))
}

// BaseURL returns the trimmed base URL, or "" when unset.
func (s *UserSettings) BaseURL() string {
	return strings.TrimSpace(stringValue(s.LLMBaseURL))
}

// APIKey returns the trimmed API key, or "" when unset.
func (s *UserSettings) APIKey() string {
	return strings.TrimSpace(stringValue(s.LLMAPIKey))
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

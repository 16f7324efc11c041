// Package domain defines provisioned API key records.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ProviderLitellm is the provider name for keys issued by the LiteLLM proxy.
const ProviderLitellm = "litellm"

// ApiKey is one provisioned key. A user holds at most one key per provider.
type ApiKey struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    string       `gorm:"column:user_id;type:text;not null;uniqueIndex:idx_api_keys_user_provider"`
	Provider  string       `gorm:"type:text;not null;uniqueIndex:idx_api_keys_user_provider"`
	Key       string       `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ApiKey) TableName() string { return "api_keys" }

// Validate checks required fields.
func (k *ApiKey) Validate() error {
	if k.UserID == "" {
		return errors.New("user id is required")
	}
	if k.Provider == "" {
		return errors.New("provider is required")
	}
	if k.Key == "" {
		return errors.New("key is required")
	}
	return nil
}

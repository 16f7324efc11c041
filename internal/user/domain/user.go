package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is a platform account resolved from the identity provider. The
// Keycloak subject is the stable external key; ID is the internal record id.
type User struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	KeycloakUserID string       `gorm:"column:keycloak_user_id;type:text;not null;uniqueIndex"`
	Email          string       `gorm:"type:text;not null;index"`
	EmailVerified  bool         `gorm:"not null;default:false"`
	AcceptedTOS    *time.Time   `gorm:"column:accepted_tos"` // nil until the user accepts terms
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.KeycloakUserID == "" {
		return errors.New("keycloak user id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

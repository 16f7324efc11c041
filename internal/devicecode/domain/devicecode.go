package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of a device code.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusDenied     Status = "denied"
)

// DeviceCode is one device authorization attempt. The device polls with
// DeviceCode while a person enters UserCode in the browser; the row is bound
// to that person's user id on approval.
type DeviceCode struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	DeviceCode string       `gorm:"column:device_code;type:text;not null;uniqueIndex"`
	UserCode   string       `gorm:"column:user_code;type:text;not null;uniqueIndex"`
	Status     Status       `gorm:"type:text;not null;default:'pending'"`
	UserID     *string      `gorm:"column:user_id;type:text"` // nil until authorized
	ExpiresAt  time.Time    `gorm:"not null;index"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (DeviceCode) TableName() string { return "device_codes" }

// Expired reports whether the code's lifetime has passed at now.
func (d *DeviceCode) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// Pending reports whether the code can still be authorized or denied.
// Expired codes are not transitionable even when their status is pending.
func (d *DeviceCode) Pending(now time.Time) bool {
	return d.Status == StatusPending && !d.Expired(now)
}

// Authorize binds the code to the approving user.
func (d *DeviceCode) Authorize(userID string) {
	d.Status = StatusAuthorized
	d.UserID = &userID
}

// Deny marks the code rejected.
func (d *DeviceCode) Deny() {
	d.Status = StatusDenied
}

// Package domain defines conversation records for the shared read paths.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Conversation is the slice of conversation state this service reads. Rows
// are written by the application tier; here they only gate event access via
// the Shared flag.
type Conversation struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	UserID    string    `gorm:"column:user_id;type:text;not null;index" json:"-"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	Shared    bool      `gorm:"not null;default:false" json:"shared"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Conversation) TableName() string { return "conversations" }

// ConversationEvent is one event in a conversation's transcript. Seq orders
// events within a conversation and is unique per conversation.
type ConversationEvent struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"-"`
	ConversationID string            `gorm:"column:conversation_id;type:text;not null;uniqueIndex:idx_conversation_events_conv_seq" json:"conversation_id"`
	Seq            int64             `gorm:"not null;uniqueIndex:idx_conversation_events_conv_seq" json:"seq"`
	Kind           string            `gorm:"type:text;not null" json:"kind"`
	Payload        datatypes.JSONMap `gorm:"type:jsonb" json:"payload"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ConversationEvent) TableName() string { return "conversation_events" }

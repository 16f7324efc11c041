// Package repository provides data access for conversations and their events.
package repository

import (
	"context"

	"openhands-enterprise/backend/internal/sharing/domain"
)

// ConversationRepository reads conversation rows.
type ConversationRepository interface {
	// GetByID returns the conversation, or (nil, nil) when absent.
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	Create(ctx context.Context, c *domain.Conversation) error
	// Count returns the total number of conversations.
	Count(ctx context.Context) (int64, error)
}

// EventRepository reads conversation event rows.
type EventRepository interface {
	// GetBySeq returns the event with the given sequence number within a
	// conversation, or (nil, nil) when absent.
	GetBySeq(ctx context.Context, conversationID string, seq int64) (*domain.ConversationEvent, error)
	// ListAfter returns up to limit events with seq greater than afterSeq,
	// ordered by seq ascending.
	ListAfter(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]domain.ConversationEvent, error)
	Create(ctx context.Context, e *domain.ConversationEvent) error
	// Count returns the number of events in a conversation.
	Count(ctx context.Context, conversationID string) (int64, error)
}

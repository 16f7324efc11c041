// Package sharing implements read-only access to shared conversations.
// Every read first checks the conversation's share flag; events of unshared
// or unknown conversations come back as empty results, never as errors, so
// callers cannot distinguish hidden conversations from absent ones.
package sharing

import (
	"context"

	"openhands-enterprise/backend/internal/sharing/domain"
	"openhands-enterprise/backend/internal/sharing/repository"

	"go.uber.org/zap"
)

// eventPageLimit is the default and maximum SearchEvents page size.
// Out-of-range limits are clamped.
const eventPageLimit = 100

// EventPage is one ascending page of conversation events. NextAfterSeq is
// the cursor for the following page, nil when this page is the last.
type EventPage struct {
	Events       []domain.ConversationEvent `json:"events"`
	NextAfterSeq *int64                     `json:"next_after_seq,omitempty"`
}

// Service serves event reads for shared conversations.
type Service struct {
	conversations repository.ConversationRepository
	events        repository.EventRepository
	log           *zap.Logger
}

// NewService creates a shared conversation read service.
func NewService(conversations repository.ConversationRepository, events repository.EventRepository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{conversations: conversations, events: events, log: log}
}

// GetConversation returns the conversation when it exists and is shared,
// (nil, nil) otherwise.
func (s *Service) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil || !conv.Shared {
		return nil, nil
	}
	return conv, nil
}

// GetEvent returns one event by sequence number, or (nil, nil) when the
// conversation is not shared or the event is absent.
func (s *Service) GetEvent(ctx context.Context, conversationID string, seq int64) (*domain.ConversationEvent, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}
	return s.events.GetBySeq(ctx, conversationID, seq)
}

// SearchEvents returns an ascending page of events with seq greater than
// afterSeq. An unshared conversation yields an empty page.
func (s *Service) SearchEvents(ctx context.Context, conversationID string, afterSeq int64, limit int) (EventPage, error) {
	if limit <= 0 || limit > eventPageLimit {
		limit = eventPageLimit
	}

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return EventPage{}, err
	}
	if conv == nil {
		return EventPage{Events: []domain.ConversationEvent{}}, nil
	}

	events, err := s.events.ListAfter(ctx, conversationID, afterSeq, limit)
	if err != nil {
		return EventPage{}, err
	}

	page := EventPage{Events: events}
	if len(events) == limit {
		next := events[len(events)-1].Seq
		page.NextAfterSeq = &next
	}
	return page, nil
}

// CountEvents returns the number of events in a shared conversation, zero
// when the conversation is not shared.
func (s *Service) CountEvents(ctx context.Context, conversationID string) (int64, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if conv == nil {
		return 0, nil
	}
	return s.events.Count(ctx, conversationID)
}

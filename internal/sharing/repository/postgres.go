package repository

import (
	"context"
	"errors"

	"openhands-enterprise/backend/internal/sharing/domain"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PostgresConversationRepository is a GORM-backed conversation reader.
type PostgresConversationRepository struct {
	db *gorm.DB
}

// NewPostgresConversationRepository creates a conversation repository.
func NewPostgresConversationRepository(db *gorm.DB) *PostgresConversationRepository {
	return &PostgresConversationRepository{db: db}
}

// GetByID returns the conversation, or (nil, nil) when absent.
func (r *PostgresConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Create inserts the conversation row.
func (r *PostgresConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// Count returns the total number of conversations.
func (r *PostgresConversationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Conversation{}).Count(&n).Error
	return n, err
}

// PostgresEventRepository is a GORM-backed conversation event reader.
type PostgresEventRepository struct {
	db    *gorm.DB
	genID *snowflake.Node
}

// NewPostgresEventRepository creates an event repository.
func NewPostgresEventRepository(db *gorm.DB, genID *snowflake.Node) *PostgresEventRepository {
	return &PostgresEventRepository{db: db, genID: genID}
}

// GetBySeq returns the event with the given sequence number, or (nil, nil)
// when absent.
func (r *PostgresEventRepository) GetBySeq(ctx context.Context, conversationID string, seq int64) (*domain.ConversationEvent, error) {
	var event domain.ConversationEvent
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq = ?", conversationID, seq).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListAfter returns up to limit events with seq greater than afterSeq,
// ordered by seq ascending.
func (r *PostgresEventRepository) ListAfter(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]domain.ConversationEvent, error) {
	var events []domain.ConversationEvent
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ?", conversationID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Create inserts the event row, assigning an id when unset.
func (r *PostgresEventRepository) Create(ctx context.Context, e *domain.ConversationEvent) error {
	if e.ID == 0 {
		e.ID = r.genID.Generate()
	}
	return r.db.WithContext(ctx).Create(e).Error
}

// Count returns the number of events in a conversation.
func (r *PostgresEventRepository) Count(ctx context.Context, conversationID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.ConversationEvent{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}

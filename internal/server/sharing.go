package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"openhands-enterprise/backend/internal/sharing"
	"openhands-enterprise/backend/internal/sharing/domain"
)

// ConversationReader serves shared conversation reads. Unshared and unknown
// conversations come back empty, never as errors.
type ConversationReader interface {
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	GetEvent(ctx context.Context, conversationID string, seq int64) (*domain.ConversationEvent, error)
	SearchEvents(ctx context.Context, conversationID string, afterSeq int64, limit int) (sharing.EventPage, error)
	CountEvents(ctx context.Context, conversationID string) (int64, error)
}

// GetSharedConversation returns a shared conversation and its event count.
// Conversations that are unknown or not shared answer 404 alike, so callers
// cannot probe for hidden ones.
func (s *Server) GetSharedConversation(c *gin.Context) {
	if s.deps.Conversations == nil {
		abortError(c, http.StatusServiceUnavailable, "sharing unavailable")
		return
	}

	id := c.Param("id")
	conv, err := s.deps.Conversations.GetConversation(c.Request.Context(), id)
	if err != nil {
		s.log.Error("get shared conversation", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "server_error")
		return
	}
	if conv == nil {
		abortError(c, http.StatusNotFound, "not_found")
		return
	}

	count, err := s.deps.Conversations.CountEvents(c.Request.Context(), id)
	if err != nil {
		s.log.Error("count shared conversation events", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "server_error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation": conv,
		"event_count":  count,
	})
}

// ListSharedConversationEvents returns one ascending page of events for a
// shared conversation. after_seq and limit are optional; unshared or unknown
// conversations yield an empty page.
func (s *Server) ListSharedConversationEvents(c *gin.Context) {
	if s.deps.Conversations == nil {
		abortError(c, http.StatusServiceUnavailable, "sharing unavailable")
		return
	}

	afterSeq := int64(0)
	if raw := c.Query("after_seq"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			abortError(c, http.StatusBadRequest, "invalid after_seq")
			return
		}
		afterSeq = parsed
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			abortError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := s.deps.Conversations.SearchEvents(c.Request.Context(), c.Param("id"), afterSeq, limit)
	if err != nil {
		s.log.Error("search shared conversation events", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "server_error")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetSharedConversationEvent returns one event by sequence number. Missing
// events and unshared or unknown conversations answer 404 alike.
func (s *Server) GetSharedConversationEvent(c *gin.Context) {
	if s.deps.Conversations == nil {
		abortError(c, http.StatusServiceUnavailable, "sharing unavailable")
		return
	}

	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq < 0 {
		abortError(c, http.StatusBadRequest, "invalid seq")
		return
	}

	event, err := s.deps.Conversations.GetEvent(c.Request.Context(), c.Param("id"), seq)
	if err != nil {
		s.log.Error("get shared conversation event", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "server_error")
		return
	}
	if event == nil {
		abortError(c, http.StatusNotFound, "not_found")
		return
	}
	c.JSON(http.StatusOK, event)
}

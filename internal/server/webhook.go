package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"openhands-enterprise/backend/internal/observability/logger"
	"openhands-enterprise/backend/internal/webhook/domain"
)

// WebhookLookup resolves the stored webhook registration for a resource.
type WebhookLookup interface {
	GetByResourceOnly(ctx context.Context, projectID, groupID *string) (*domain.GitlabWebhook, error)
}

// gitlabEventPayload is the subset of a GitLab webhook body needed to find
// the registration the event belongs to. Project events carry project info;
// group hooks may only carry the group id.
type gitlabEventPayload struct {
	ProjectID *int64 `json:"project_id"`
	Project   *struct {
		ID int64 `json:"id"`
	} `json:"project"`
	GroupID *int64 `json:"group_id"`
	Group   *struct {
		ID int64 `json:"id"`
	} `json:"group"`
}

func (p *gitlabEventPayload) projectID() *string {
	if p.Project != nil {
		id := strconv.FormatInt(p.Project.ID, 10)
		return &id
	}
	if p.ProjectID != nil {
		id := strconv.FormatInt(*p.ProjectID, 10)
		return &id
	}
	return nil
}

func (p *gitlabEventPayload) groupID() *string {
	if p.Group != nil {
		id := strconv.FormatInt(p.Group.ID, 10)
		return &id
	}
	if p.GroupID != nil {
		id := strconv.FormatInt(*p.GroupID, 10)
		return &id
	}
	return nil
}

// GitlabWebhook acknowledges GitLab events after validating X-Gitlab-Token
// against the secret stored for the event's project or group. Events for
// resources we never registered answer 404 so GitLab disables retries.
func (s *Server) GitlabWebhook(c *gin.Context) {
	if s.deps.Webhooks == nil {
		abortError(c, http.StatusServiceUnavailable, "webhooks unavailable")
		return
	}

	token := c.GetHeader("X-Gitlab-Token")
	if token == "" {
		abortError(c, http.StatusUnauthorized, "missing webhook token")
		return
	}

	var payload gitlabEventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		abortError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	hook, err := s.lookupWebhook(c.Request.Context(), &payload)
	if err != nil {
		s.log.Error("look up gitlab webhook", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "server_error")
		return
	}
	if hook == nil {
		abortError(c, http.StatusNotFound, "unknown resource")
		return
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(hook.WebhookSecret)) != 1 {
		s.log.Warn("gitlab webhook token mismatch",
			zap.Stringp("project_id", payload.projectID()),
			zap.Stringp("group_id", payload.groupID()),
			zap.String("token", logger.MaskAPIKey(token)))
		abortError(c, http.StatusUnauthorized, "invalid webhook token")
		return
	}

	s.log.Info("gitlab webhook received",
		zap.String("event", c.GetHeader("X-Gitlab-Event")),
		zap.Stringp("project_id", payload.projectID()),
		zap.Stringp("group_id", payload.groupID()),
	)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// lookupWebhook tries the project registration first. Project events fired
// by a group-level hook fall back to the group registration.
func (s *Server) lookupWebhook(ctx context.Context, payload *gitlabEventPayload) (*domain.GitlabWebhook, error) {
	if projectID := payload.projectID(); projectID != nil {
		hook, err := s.deps.Webhooks.GetByResourceOnly(ctx, projectID, nil)
		if err != nil || hook != nil {
			return hook, err
		}
	}
	if groupID := payload.groupID(); groupID != nil {
		return s.deps.Webhooks.GetByResourceOnly(ctx, nil, groupID)
	}
	return nil, nil
}

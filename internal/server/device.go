package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"openhands-enterprise/backend/internal/auth"
	"openhands-enterprise/backend/internal/devicecode/domain"
)

// devicePollInterval is the minimum seconds a device should wait between polls.
const devicePollInterval = 5

// DeviceCodeService drives the device authorization flow.
type DeviceCodeService interface {
	Create(ctx context.Context) (*domain.DeviceCode, error)
	GetByDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, error)
	Authorize(ctx context.Context, userCode, userID string) (bool, error)
	Deny(ctx context.Context, userCode string) (bool, error)
}

// APIKeyIssuer hands out the API key an authorized device polls for.
type APIKeyIssuer interface {
	GetOrCreateLitellmKey(ctx context.Context, userID string) (string, error)
}

// SessionParser validates the session cookie on routes that need a signed-in user.
type SessionParser interface {
	Parse(tokenString string) (*auth.SessionClaims, error)
}

type userCodeRequest struct {
	UserCode string `json:"user_code"`
}

type deviceTokenRequest struct {
	DeviceCode string `json:"device_code"`
}

// CreateDeviceCode issues a new device/user code pair. The device keeps the
// device code and polls /api/device/token with it; the person types the user
// code into the browser at the verification URI.
func (s *Server) CreateDeviceCode(c *gin.Context) {
	if s.deps.DeviceCodes == nil {
		abortError(c, http.StatusServiceUnavailable, "device flow unavailable")
		return
	}

	code, err := s.deps.DeviceCodes.Create(c.Request.Context())
	if err != nil {
		s.log.Error("create device code", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "server_error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_code":      code.DeviceCode,
		"user_code":        code.UserCode,
		"verification_uri": s.cfg.WebHost + "/device",
		"expires_in":       int(code.ExpiresAt.Sub(s.nowFn()).Seconds()),
		"interval":         devicePollInterval,
	})
}

// AuthorizeDeviceCode approves a pending user code on behalf of the
// signed-in user. Codes that are unknown, expired, or already resolved are
// rejected with 400.
func (s *Server) AuthorizeDeviceCode(c *gin.Context) {
	if s.deps.DeviceCodes == nil {
		abortError(c, http.StatusServiceUnavailable, "device flow unavailable")
		return
	}

	userID, ok := s.currentUserID(c)
	if !ok {
		abortError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var req userCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserCode == "" {
		abortError(c, http.StatusBadRequest, "user_code is required")
		return
	}

	authorized, err := s.deps.DeviceCodes.Authorize(c.Request.Context(), req.UserCode, userID)
	if err != nil {
		s.log.Error("authorize device code", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "server_error")
		return
	}
	if !authorized {
		abortError(c, http.StatusBadRequest, "invalid_code")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "authorized"})
}

// DenyDeviceCode rejects a pending user code on behalf of the signed-in user.
func (s *Server) DenyDeviceCode(c *gin.Context) {
	if s.deps.DeviceCodes == nil {
		abortError(c, http.StatusServiceUnavailable, "device flow unavailable")
		return
	}

	if _, ok := s.currentUserID(c); !ok {
		abortError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var req userCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserCode == "" {
		abortError(c, http.StatusBadRequest, "user_code is required")
		return
	}

	denied, err := s.deps.DeviceCodes.Deny(c.Request.Context(), req.UserCode)
	if err != nil {
		s.log.Error("deny device code", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "server_error")
		return
	}
	if !denied {
		abortError(c, http.StatusBadRequest, "invalid_code")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "denied"})
}

// PollDeviceToken exchanges an authorized device code for an API key.
// Pending codes answer 428 so clients keep polling; denied codes answer 403.
func (s *Server) PollDeviceToken(c *gin.Context) {
	if s.deps.DeviceCodes == nil || s.deps.APIKeys == nil {
		abortError(c, http.StatusServiceUnavailable, "device flow unavailable")
		return
	}

	var req deviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceCode == "" {
		abortError(c, http.StatusBadRequest, "device_code is required")
		return
	}

	code, err := s.deps.DeviceCodes.GetByDeviceCode(c.Request.Context(), req.DeviceCode)
	if err != nil {
		s.log.Error("look up device code", zap.Error(err))
		abortError(c, http.StatusInternalServerError, "server_error")
		return
	}
	if code == nil {
		abortError(c, http.StatusNotFound, "invalid_code")
		return
	}
	if code.Expired(s.nowFn()) {
		abortError(c, http.StatusBadRequest, "expired_token")
		return
	}

	switch code.Status {
	case domain.StatusPending:
		abortError(c, http.StatusPreconditionRequired, "authorization_pending")
	case domain.StatusDenied:
		abortError(c, http.StatusForbidden, "access_denied")
	case domain.StatusAuthorized:
		if code.UserID == nil {
			s.log.Error("authorized device code has no user", zap.String("user_code", code.UserCode))
			abortError(c, http.StatusInternalServerError, "server_error")
			return
		}
		key, err := s.deps.APIKeys.GetOrCreateLitellmKey(c.Request.Context(), *code.UserID)
		if err != nil {
			s.log.Error("issue api key for device", zap.Error(err))
			abortError(c, http.StatusInternalServerError, "server_error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"api_key": key})
	default:
		abortError(c, http.StatusInternalServerError, "server_error")
	}
}

// currentUserID resolves the signed-in user from the session cookie.
func (s *Server) currentUserID(c *gin.Context) (string, bool) {
	if s.deps.Sessions == nil {
		return "", false
	}
	token, err := c.Cookie(auth.SessionCookieName)
	if err != nil || token == "" {
		return "", false
	}
	claims, err := s.deps.Sessions.Parse(token)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

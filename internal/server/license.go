package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"openhands-enterprise/backend/internal/telemetry"
)

// LicenseReporter reports whether metric uploads have gone stale.
type LicenseReporter interface {
	LicenseWarningStatus(ctx context.Context) telemetry.LicenseStatus
}

// GetLicenseStatus returns the upload-staleness warning shown in the UI.
func (s *Server) GetLicenseStatus(c *gin.Context) {
	if s.deps.License == nil {
		abortError(c, http.StatusServiceUnavailable, "license status unavailable")
		return
	}
	c.JSON(http.StatusOK, s.deps.License.LicenseWarningStatus(c.Request.Context()))
}

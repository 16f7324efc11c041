package telemetry

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// LicenseStatus is the upload-staleness warning state shown in the UI.
type LicenseStatus struct {
	ShouldWarn      bool   `json:"should_warn"`
	DaysSinceUpload *int   `json:"days_since_upload"`
	Message         string `json:"message"`
}

// LicenseWarningStatus reports whether the UI should warn that metric
// uploads have gone stale: true once whole days since the most recent upload
// exceed the warning threshold. It never fails; lookup errors produce a
// non-warning status carrying the error message, so a telemetry problem can
// never break the UI.
func (s *Scheduler) LicenseWarningStatus(ctx context.Context) LicenseStatus {
	latest, err := s.repo.LatestUploaded(ctx)
	if err != nil {
		s.log.Error("license warning status lookup failed", zap.Error(err))
		return LicenseStatus{Message: fmt.Sprintf("Error: %v", err)}
	}
	if latest == nil {
		return LicenseStatus{Message: "No uploads yet"}
	}

	days := int(s.now().Sub(*latest.UploadedAt).Hours() / 24)
	return LicenseStatus{
		ShouldWarn:      days > s.cfg.WarningThresholdDays,
		DaysSinceUpload: &days,
		Message:         fmt.Sprintf("Last upload: %d days ago", days),
	}
}

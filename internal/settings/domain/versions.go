package domain

import "strings"

// CurrentUserSettingsVersion is stamped on every saved settings row. It is
// bumped whenever the managed default model changes, so rows written under an
// older version can be recognized and upgraded on the next settings refresh.
const CurrentUserSettingsVersion = 5

// BillingMarginVersion is the version that moved margin handling into the
// proxy budget. Rows older than it with a margin other than 1.0 get their
// proxy budget and spend scaled once, then the margin is reset.
const BillingMarginVersion = 4

const defaultModelPrefix = "litellm_proxy/prod/"

// Stock default model per settings version. Only versions that changed the
// default have an entry.
var versionDefaultModels = map[int]string{
	1: "claude-3-5-sonnet-20241022",
	5: "claude-opus-4-5-20251101",
}

// DefaultModelForVersion returns the fully qualified proxy model that was the
// stock default at the given settings version. Versions without an entry map
// to the current default.
func DefaultModelForVersion(version int) string {
	model, ok := versionDefaultModels[version]
	if !ok {
		model = versionDefaultModels[CurrentUserSettingsVersion]
	}
	return defaultModelPrefix + model
}

// CurrentDefaultModel is the stock model new users are provisioned with.
func CurrentDefaultModel() string {
	return DefaultModelForVersion(CurrentUserSettingsVersion)
}

// HasCustomSettings reports whether the settings deviate from the managed
// defaults. A non-blank base URL different from defaultBaseURL is always
// custom. A blank model is not custom. A model equal to the stock default of
// storedVersion, exactly or by base name, is not custom either: that user is
// on an old default and eligible for the upgrade to the current one.
func HasCustomSettings(s *UserSettings, storedVersion int, defaultBaseURL string) bool {
	if s == nil {
		return false
	}
	if baseURL := s.BaseURL(); baseURL != "" && baseURL != defaultBaseURL {
		return true
	}
	model := s.Model()
	if model == "" {
		return false
	}
	stockModel, ok := versionDefaultModels[storedVersion]
	if !ok {
		return true
	}
	return model != stockModel && baseModelName(model) != stockModel
}

// baseModelName returns the last path segment of a model reference:
// "anthropic/claude-x" and "litellm_proxy/prod/claude-x" both yield
// "claude-x".
func baseModelName(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

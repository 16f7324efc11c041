// Package blocklist evaluates email addresses against a configured list of
// blocked domain patterns. Patterns come in three forms: exact domains
// ("example.com" blocks user@example.com), subdomains ("example.com" also
// blocks user@sub.example.com), and leading-dot suffixes (".us" blocks
// user@company.us and user@sub.company.us). Leading-dot patterns are a plain
// string-suffix test, not a label-aware one: ".us" matches "x.us" but never
// "xus".
package blocklist

import (
	"strings"

	"go.uber.org/zap"
)

// DomainBlocker checks whether an email's domain matches a blocked pattern.
// The pattern list is fixed at construction.
type DomainBlocker struct {
	patterns []string
	log      *zap.Logger
}

// NewDomainBlocker builds a blocker from the given patterns. Patterns are
// trimmed and lower-cased; empty entries are dropped. A nil logger is
// replaced with a no-op logger.
func NewDomainBlocker(patterns []string, log *zap.Logger) *DomainBlocker {
	if log == nil {
		log = zap.NewNop()
	}
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		normalized = append(normalized, p)
	}
	if len(normalized) > 0 {
		log.Info("loaded blocked email domains", zap.Int("count", len(normalized)))
	}
	return &DomainBlocker{patterns: normalized, log: log}
}

// IsActive reports whether any blocked patterns are configured.
func (b *DomainBlocker) IsActive() bool {
	return len(b.patterns) > 0
}

// IsDomainBlocked reports whether the email's domain matches a blocked
// pattern. It returns false when blocking is inactive, the email is empty,
// or no domain can be extracted.
func (b *DomainBlocker) IsDomainBlocked(email string) bool {
	if !b.IsActive() {
		return false
	}
	domain := extractDomain(email)
	if domain == "" {
		return false
	}

	for _, pattern := range b.patterns {
		if strings.HasPrefix(pattern, ".") {
			if strings.HasSuffix(domain, pattern) {
				b.log.Warn("email domain blocked by suffix pattern",
					zap.String("domain", domain),
					zap.String("pattern", pattern))
				return true
			}
			continue
		}
		if domain == pattern || strings.HasSuffix(domain, "."+pattern) {
			b.log.Warn("email domain blocked by domain pattern",
				zap.String("domain", domain),
				zap.String("pattern", pattern))
			return true
		}
	}
	return false
}

// extractDomain returns the normalized domain of the email, or "" when none
// can be extracted. The domain is the segment after the first "@", trimmed
// and lower-cased.
func extractDomain(email string) string {
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) < 2 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(parts[1]))
}

// Package validation checks operator-supplied tenant and credential attributes before they
// reach the repositories.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxSlugLength = 63
	MaxNameLength = 200
	// MaxQuota bounds a per-tenant requests-per-window override.
	MaxQuota = 1_000_000
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidateSlug checks that a tenant slug is a lowercase DNS-label style identifier
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("slug is required")
	}
	if len(slug) > MaxSlugLength {
		return fmt.Errorf("slug must be at most %d characters", MaxSlugLength)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("slug %q must contain only lowercase letters, digits and inner hyphens", slug)
	}
	return nil
}

// ValidateName checks a display name for a tenant or credential
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("name is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return fmt.Errorf("name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// ValidateQuota checks an optional quota override; nil means the platform default.
func ValidateQuota(quota *int) error {
	if quota == nil {
		return nil
	}
	if *quota < 1 || *quota > MaxQuota {
		return fmt.Errorf("requests_per_window must be between 1 and %d", MaxQuota)
	}
	return nil
}

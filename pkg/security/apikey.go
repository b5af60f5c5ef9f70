// Package security provides validation and safe logging of provider API keys.
package security

import (
	"regexp"
	"strings"
)

var (
	validPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	stripPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// APIKeyValidator provides validation and handling of debrid API keys
type APIKeyValidator struct {
	minLength int
	maxLength int
}

// NewAPIKeyValidator creates a validator with bounds covering every known
// provider key format
func NewAPIKeyValidator() *APIKeyValidator {
	return &APIKeyValidator{
		minLength: 8,
		maxLength: 128,
	}
}

// ValidateAPIKey validates API key format and length
func (v *APIKeyValidator) ValidateAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}
	if len(apiKey) < v.minLength || len(apiKey) > v.maxLength {
		return false
	}
	return validPattern.MatchString(apiKey)
}

// SanitizeAPIKey trims whitespace and strips characters unsafe for URLs and
// headers
func (v *APIKeyValidator) SanitizeAPIKey(apiKey string) string {
	return stripPattern.ReplaceAllString(strings.TrimSpace(apiKey), "")
}

// MaskAPIKey creates a masked version for logging
func (v *APIKeyValidator) MaskAPIKey(apiKey string) string {
	if len(apiKey) == 0 {
		return "[empty]"
	}
	if len(apiKey) <= 8 {
		return "[***]"
	}
	return apiKey[:3] + "..." + apiKey[len(apiKey)-3:]
}

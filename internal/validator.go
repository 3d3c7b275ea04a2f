package internal

import (
	"fmt"
	"strings"

	pkgerrs "github.com/jamesprial/redditcore/pkg/errors"
)

const (
	// maxUserAgentLength bounds the User-Agent header to a sane size.
	maxUserAgentLength = 256

	// minUserAgentLength guards against the default placeholder user agents
	// (e.g. a bare "python-requests/x.y"-equivalent) Reddit rejects outright.
	minUserAgentLength = 7
)

// Validator groups the input checks the core performs before it will build a
// request or an authorization URL.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateUserAgent validates the User-Agent string to prevent header
// injection and to reject non-descriptive placeholders.
func (v *Validator) ValidateUserAgent(ua string) error {
	if len(ua) == 0 {
		return &pkgerrs.ConfigError{Field: "user_agent", Message: "user agent cannot be empty"}
	}
	if len(ua) < minUserAgentLength {
		return &pkgerrs.ConfigError{Field: "user_agent", Message: "user agent is not descriptive"}
	}
	if strings.ContainsAny(ua, "\r\n") {
		return &pkgerrs.ConfigError{Field: "user_agent", Message: "user agent cannot contain newline characters"}
	}
	if len(ua) > maxUserAgentLength {
		return &pkgerrs.ConfigError{Field: "user_agent", Message: fmt.Sprintf("user agent too long (max %d characters)", maxUserAgentLength)}
	}
	return nil
}

// ValidateScopes checks that a requested scope list is non-empty and free of
// whitespace that would corrupt the space-joined "scope" form field.
func (v *Validator) ValidateScopes(scopes []string) error {
	if len(scopes) == 0 {
		return &pkgerrs.ConfigError{Field: "scopes", Message: "at least one scope is required"}
	}
	for i, scope := range scopes {
		if scope == "" {
			return &pkgerrs.ConfigError{Field: "scopes", Message: fmt.Sprintf("scope at index %d is empty", i)}
		}
		if strings.ContainsAny(scope, " \t\r\n") {
			return &pkgerrs.ConfigError{Field: "scopes", Message: fmt.Sprintf("scope %q contains whitespace", scope)}
		}
	}
	return nil
}

// ValidateDuration checks the OAuth2 "duration" parameter accepted by
// Reddit's authorize endpoint.
func (v *Validator) ValidateDuration(duration string) error {
	switch duration {
	case "", "temporary", "permanent":
		return nil
	default:
		return &pkgerrs.ConfigError{Field: "duration", Message: fmt.Sprintf("duration must be %q or %q, got %q", "temporary", "permanent", duration)}
	}
}

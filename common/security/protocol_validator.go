package security

import (
	"fmt"
	"strings"
)

// ProtocolValidator restricts outbound requests to http/https, blocking
// schemes that would reach something other than an HTTP server
// (file://, jdbc://, gopher://, ...).
type ProtocolValidator struct {
	allowed map[string]bool
}

func NewProtocolValidator() *ProtocolValidator {
	return &ProtocolValidator{
		allowed: map[string]bool{"http": true, "https": true},
	}
}

func (v *ProtocolValidator) Validate(scheme string) error {
	normalized := strings.ToLower(strings.TrimSpace(scheme))
	if normalized == "" {
		return fmt.Errorf("url scheme is required")
	}
	if !v.allowed[normalized] {
		return fmt.Errorf("scheme %q is not allowed: only http/https permitted", scheme)
	}
	return nil
}

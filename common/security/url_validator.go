// Package security guards outbound HTTP calls issued on a workflow
// author's behalf against SSRF: a Function node's params (including any
// "${var}" interpolation) are under author control, not operator control,
// so the URL they resolve to at execute time must be re-validated every
// call, not just checked once against the authored template.
package security

import (
	"fmt"
	"net/url"
)

// URLValidator runs every outbound-request check: scheme, host/IP
// (SSRF), and path (local file access / traversal).
type URLValidator struct {
	protocol *ProtocolValidator
	host     *HostValidator
	path     *PathValidator
}

func NewURLValidator() *URLValidator {
	return &URLValidator{
		protocol: NewProtocolValidator(),
		host:     NewHostValidator(),
		path:     NewPathValidator(),
	}
}

// Validate parses urlStr and runs all checks against it.
func (v *URLValidator) Validate(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if err := v.protocol.Validate(parsed.Scheme); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if err := v.host.Validate(parsed.Hostname()); err != nil {
		return fmt.Errorf("host: %w", err)
	}
	if err := v.path.Validate(parsed.Path); err != nil {
		return fmt.Errorf("path: %w", err)
	}
	if err := v.validateQuery(parsed.Query()); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

func (v *URLValidator) validateQuery(params url.Values) error {
	for key, values := range params {
		for _, val := range values {
			if err := v.path.Validate(val); err != nil {
				return fmt.Errorf("parameter %q: %w", key, err)
			}
		}
	}
	return nil
}

package security

import (
	"fmt"
	"net"
	"strings"
)

// HostValidator validates a hostname before a Function handler is allowed
// to dial it, blocking the loopback/metadata/private-network targets an
// SSRF attempt would aim at.
type HostValidator struct {
	blockedHostnames []string
	ipValidator      *IPValidator
}

func NewHostValidator() *HostValidator {
	return &HostValidator{
		blockedHostnames: []string{
			"localhost",
			"127.0.0.1",
			"::1",
			"0.0.0.0",
			"::",
			"::ffff:127.0.0.1",
			"[::1]",
			"[::ffff:127.0.0.1]",
			"169.254.169.254", // cloud metadata service
		},
		ipValidator: NewIPValidator(),
	}
}

// Validate rejects the hostname outright if it's on the static blocklist,
// then resolves it and validates every returned address. A DNS failure is
// not treated as a validation failure — the outbound request will simply
// fail on its own.
func (v *HostValidator) Validate(hostname string) error {
	if hostname == "" {
		return fmt.Errorf("hostname is required")
	}

	normalized := strings.ToLower(strings.TrimSpace(hostname))
	for _, blocked := range v.blockedHostnames {
		if normalized == blocked {
			return fmt.Errorf("hostname %q is blocked", hostname)
		}
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return nil
	}
	return v.ipValidator.ValidateAll(ips)
}

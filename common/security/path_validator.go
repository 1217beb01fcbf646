package security

import (
	"fmt"
	"strings"
)

// PathValidator blocks URL paths (and query values, which can carry the
// same payload) that attempt local file access or path traversal.
type PathValidator struct {
	blockedPatterns []string
}

func NewPathValidator() *PathValidator {
	return &PathValidator{
		blockedPatterns: []string{
			"file://",
			"../",
			"..\\",
			"/etc/",
			"/proc/",
			"/sys/",
			"c:/",
			"c:\\",
			`\\.\pipe\`,
		},
	}
}

func (v *PathValidator) Validate(path string) error {
	if path == "" {
		return nil
	}
	normalized := strings.ToLower(path)
	for _, pattern := range v.blockedPatterns {
		if strings.Contains(normalized, pattern) {
			return fmt.Errorf("path contains blocked pattern %q", pattern)
		}
	}
	if v.containsEncodedTraversal(normalized) {
		return fmt.Errorf("path contains url-encoded traversal pattern")
	}
	return nil
}

func (v *PathValidator) containsEncodedTraversal(path string) bool {
	encoded := []string{"%2e%2e/", "%2e%2e%2f", "..%2f", "%2e%2e\\", "%2e%2e%5c", "..%5c"}
	for _, pattern := range encoded {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

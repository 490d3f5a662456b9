package utils

import (
	"fmt"
	"path"
	"strings"
)

func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535: %d", port)
	}
	return nil
}

// ValidateBuildsToKeep refuses retention counts that would prune every build.
func ValidateBuildsToKeep(n int) error {
	if n < 1 {
		return fmt.Errorf("buildsToKeep must be at least 1: %d", n)
	}
	return nil
}

func ValidateRemotePath(p string) error {
	if p == "" {
		return fmt.Errorf("path must not be empty")
	}
	if !path.IsAbs(p) {
		return fmt.Errorf("path must be absolute: %s", p)
	}
	return nil
}

// ValidateIdentifier rejects values that cannot be a service or branch name.
func ValidateIdentifier(field, value string) error {
	if strings.TrimSpace(value) != value || value == "" {
		return fmt.Errorf("%s must not be empty or padded with whitespace: %q", field, value)
	}
	if strings.ContainsAny(value, "\n\r\x00") {
		return fmt.Errorf("%s must not contain control characters: %q", field, value)
	}
	return nil
}

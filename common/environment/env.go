// Package environment reads configuration from environment variables.
//
// Required variables return an error rather than exiting, so callers decide
// how to report them.
package environment

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// StringOr returns the value of the named variable, or defaultValue if it is
// unset or empty.
func StringOr(name, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the value of the named variable or an error naming
// it when unset or empty.
func RequiredString(name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

// DurationOr parses the named variable as a time.Duration ("20s", "1m").
// Unset, unparsable or non-positive values give defaultValue.
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// Package device derives human-readable device names from User-Agent
// headers for audit records.
package device

import (
	"context"
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent turns a raw User-Agent header into a short display name
// such as "Chrome on Mac OS X". An empty header is "Unknown Device".
func ParseUserAgent(rawUA string) string {
	if rawUA == "" {
		return "Unknown Device"
	}

	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	os := ua.OS()

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

type contextKeyDisplayName struct{}

// WithDisplayName injects a device display name into a context. Useful for
// service tests that don't run the full HTTP middleware chain.
func WithDisplayName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, contextKeyDisplayName{}, name)
}

// GetDisplayName retrieves the device display name set by the middleware.
func GetDisplayName(ctx context.Context) string {
	if name, ok := ctx.Value(contextKeyDisplayName{}).(string); ok {
		return name
	}
	return ""
}

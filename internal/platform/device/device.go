// Package device renders User-Agent strings into short human-readable
// summaries for consent receipts.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent extracts a display name in the form "Browser on OS"
// (e.g., "Chrome on Mac OS X", "Safari on iPhone").
func ParseUserAgent(userAgentString string) string {
	if userAgentString == "" {
		return "Unknown Device"
	}

	ua := useragent.New(userAgentString)

	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		platform := ua.Platform()
		if platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}

	return strings.TrimSpace(browser + " on " + os)
}

package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// ClientInfo holds what the audit log keeps about a caller's User-Agent
type ClientInfo struct {
	Browser    string `json:"browser"`
	BrowserVer string `json:"browser_ver,omitempty"`
	OS         string `json:"os"`
	Platform   string `json:"platform"`
	IsBot      bool   `json:"is_bot"`
	Raw        string `json:"raw"`
}

// ParseUserAgent parses a User-Agent string.
// Gateway webhooks arrive from server libraries ("Stripe/1.0 (+https://stripe.com/docs/webhooks)"),
// which the parser reports as bots.
func ParseUserAgent(userAgent string) ClientInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return ClientInfo{Browser: "Unknown", OS: "Unknown", Platform: "unknown", Raw: userAgent}
	}

	parser := ua.New(userAgent)
	name, version := parser.Browser()
	if name == "" {
		name = "Unknown"
	}

	return ClientInfo{
		Browser:    name,
		BrowserVer: version,
		OS:         osName(parser),
		Platform:   platform(parser),
		IsBot:      parser.Bot(),
		Raw:        userAgent,
	}
}

// Fields returns the info as audit details
func (i ClientInfo) Fields() map[string]interface{} {
	return map[string]interface{}{
		"browser":     i.Browser,
		"browser_ver": i.BrowserVer,
		"os":          i.OS,
		"platform":    i.Platform,
		"is_bot":      i.IsBot,
	}
}

func osName(parser *ua.UserAgent) string {
	info := parser.OSInfo()
	if info.Name == "" {
		return "Unknown"
	}
	if info.Version != "" {
		return info.Name + " " + info.Version
	}
	return info.Name
}

// platformPrefixes is checked in order against the lower-cased OS name
var platformPrefixes = []struct {
	match    string
	platform string
}{
	{"android", "android"},
	{"iphone os", "ios"},
	{"ios", "ios"},
	{"windows", "windows"},
	{"mac os x", "mac"},
	{"macos", "mac"},
	{"chrome os", "chromeos"},
	{"linux", "linux"},
	{"ubuntu", "linux"},
}

func platform(parser *ua.UserAgent) string {
	name := strings.ToLower(parser.OSInfo().Name)
	for _, p := range platformPrefixes {
		if strings.Contains(name, p.match) {
			return p.platform
		}
	}
	return "unknown"
}

package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// DevTools endpoints carry a per-browser id that grants full control of the session.
	devtoolsRe = regexp.MustCompile(`(?i)(/devtools/(?:browser|page)/)[0-9a-f-]+`)

	// Session cookies that sometimes leak in navigation error strings.
	sessionCookieRe = regexp.MustCompile(`(?i)\b(jsessionid|sessionid|session)\b\s*[:=]\s*[^\s;"']+`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = devtoolsRe.ReplaceAllString(out, "${1}<redacted>")
	out = sessionCookieRe.ReplaceAllString(out, "${1}=<redacted>")
	return strings.TrimSpace(out)
}

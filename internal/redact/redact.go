// Package redact strips sensitive information from strings before they
// are logged or returned in error responses. Broker and database errors
// tend to echo the full connection string, and webhook errors can echo
// the API secret header, so anything that came out of an external call
// goes through here first.
package redact

import "regexp"

// Redaction placeholders
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedHostPlaceholder       = "[REDACTED_HOST]"
)

// Precompiled patterns, applied in order.
var (
	// Connection strings with inline credentials: postgres://user:pw@host,
	// amqp://user:pw@host, redis://...
	connStringRegex = regexp.MustCompile(`(?i)(postgres|postgresql|amqp|amqps|redis|rediss)://[^@\s]+@`)

	// Bearer tokens and api keys in header-ish text
	bearerRegex = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/]{8,}`)
	apiKeyRegex = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|token)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`)

	// Standard three-part base64url JWT
	jwtRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	// host:port fragments surfaced by dial errors
	hostPortRegex = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}:\d{1,5}\b`)

	replacements = []struct {
		pattern     *regexp.Regexp
		placeholder string
	}{
		{connStringRegex, RedactedCredentialPlaceholder + "@"},
		{bearerRegex, RedactedKeyPlaceholder},
		{apiKeyRegex, RedactedKeyPlaceholder},
		{jwtRegex, RedactedKeyPlaceholder},
		{hostPortRegex, RedactedHostPlaceholder},
	}
)

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range replacements {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
// Returns the empty string for a nil error.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

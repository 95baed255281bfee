package logger

import (
	"log/slog"
	"strings"
)

// MaskValue keeps the first character of a detail value and masks the rest,
// e.g. "alice@example.com" becomes "a****************".
func MaskValue(value string) string {
	runes := []rune(value)
	if len(runes) <= 1 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-1)
}

// MaskDetails masks every value of an account's detail map for logging
func MaskDetails(details map[string]string) map[string]string {
	out := make(map[string]string, len(details))
	for k, v := range details {
		out[k] = MaskValue(v)
	}
	return out
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"key",
	"mfa",
	"auth",
}

// SanitizeQueryString reports whether a query string names a sensitive
// parameter and should be redacted as a whole.
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}

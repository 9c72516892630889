package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces any non-allowlisted log value.
const RedactedValue = "[REDACTED]"

// allowedLogKeys enumerates every key the sanitization policy lets through
// verbatim: the ambient keys Setup stamps on each record plus the domain keys
// the daemons log on their hot paths. Everything else run through MaskField
// carries RedactedValue instead of its content.
var allowedLogKeys = []string{
	"component",
	"env",
	"error",
	"event",
	"message",
	"method",
	"operation",
	"reason",
	"sequence",
	"service",
	"severity",
	"timestamp",
}

var allowedLookup = func() map[string]struct{} {
	m := make(map[string]struct{}, len(allowedLogKeys))
	for _, key := range allowedLogKeys {
		m[key] = struct{}{}
	}
	return m
}()

// IsAllowlisted reports whether a key may carry its value into log output.
func IsAllowlisted(key string) bool {
	_, ok := allowedLookup[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns the allowlisted keys in sorted order.
func RedactionAllowlist() []string {
	keys := append([]string(nil), allowedLogKeys...)
	sort.Strings(keys)
	return keys
}

// MaskValue redacts a non-empty value. Empty strings pass through unchanged.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a slog attr for a possibly sensitive value: allowlisted
// keys and empty values keep their content, everything else is redacted. The
// key keeps its original casing.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

package redact

import (
	"fmt"
	"log"
	"regexp"
	"strings"
)

var (
	authHeaderRe  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	bearerRe      = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	apiKeyFieldRe = regexp.MustCompile(`(?i)("api_key"\s*:\s*")([^"]+)(")`)
	apiKeyKVRe    = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`)
	skKeyRe       = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{8,}`)
)

// String redacts upstream credentials from free-form strings. Every log line
// in this service goes through here so submitter API keys never reach the
// log stream.
func String(s string) string {
	if s == "" {
		return s
	}

	out := s
	out = authHeaderRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = bearerRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRe.ReplaceAllString(out, "${1}[REDACTED]${3}")
	out = apiKeyKVRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = skKeyRe.ReplaceAllString(out, "[REDACTED]")
	for strings.Contains(out, "[REDACTED][REDACTED]") {
		out = strings.ReplaceAll(out, "[REDACTED][REDACTED]", "[REDACTED]")
	}
	return out
}

// Any formats the value with %+v and redacts credentials.
func Any(v any) string {
	return String(fmt.Sprintf("%+v", v))
}

// Sprintf formats like fmt.Sprintf and redacts the result.
func Sprintf(format string, args ...interface{}) string {
	return String(fmt.Sprintf(format, args...))
}

// Logf prints a redacted log line.
func Logf(format string, args ...interface{}) {
	log.Print(Sprintf(format, args...))
}

// Fatalf prints a redacted fatal log line.
func Fatalf(format string, args ...interface{}) {
	log.Fatal(Sprintf(format, args...))
}

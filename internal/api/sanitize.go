package api

import (
	"regexp"
	"strings"
)

const (
	maxFileNameLength = 100
	fallbackFileName  = "tu_futuro.jpg"
)

var (
	unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	repeatedDots    = regexp.MustCompile(`\.{2,}`)
)

// SanitizeFileName makes a client-supplied download name safe to echo into a
// Content-Disposition header: anything outside [a-zA-Z0-9._-] becomes an
// underscore, dot runs collapse so no traversal sequence survives, and the
// result is bounded to 100 characters. Empty or fully-consumed input falls
// back to a fixed name.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeFileChars.ReplaceAllString(name, "_")
	name = repeatedDots.ReplaceAllString(name, ".")
	name = strings.Trim(name, "._")
	if len(name) > maxFileNameLength {
		name = name[:maxFileNameLength]
	}
	if name == "" || name == "." {
		return fallbackFileName
	}
	return name
}

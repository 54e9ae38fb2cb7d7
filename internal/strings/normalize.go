package strings

import (
	"strings"
	"unicode/utf8"
)

// TrimSpace trims surrounding whitespace.
func TrimSpace(value string) string {
	return strings.TrimSpace(value)
}

// IsBlank reports whether the value is empty after trimming whitespace.
func IsBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// NormalizeWhitespace collapses runs of whitespace into single spaces.
func NormalizeWhitespace(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " ")
}

// NormalizeLowerTrimSpace trims surrounding whitespace and lowercases the input.
func NormalizeLowerTrimSpace(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// NormalizeNewlines replaces CRLF and CR with LF.
func NormalizeNewlines(value string) string {
	if value == "" {
		return value
	}
	value = strings.ReplaceAll(value, "\r\n", "\n")
	return strings.ReplaceAll(value, "\r", "\n")
}

// TrimTrailingNewlines removes trailing CR/LF characters.
func TrimTrailingNewlines(value string) string {
	return strings.TrimRight(value, "\r\n")
}

// TrimTrailingSlash removes trailing '/' characters.
func TrimTrailingSlash(value string) string {
	return strings.TrimRight(value, "/")
}

// TruncateRunes limits value to max runes without splitting a character.
func TruncateRunes(value string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(value) <= max {
		return value
	}
	count := 0
	for i := range value {
		if count == max {
			return value[:i]
		}
		count++
	}
	return value
}

// FirstNonBlank returns the first value that is not blank, trimmed.
func FirstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Package utils provides request validation and small conversion helpers.
package utils

import "unicode/utf8"

// BoundedInt returns def when v is not positive and caps the result at max.
func BoundedInt(v, def, max int) int {
	if v <= 0 {
		v = def
	}
	if v > max {
		return max
	}
	return v
}

// Truncate shortens s to at most n runes for log fields.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

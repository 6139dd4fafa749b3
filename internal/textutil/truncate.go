// Package textutil provides small text helpers for logging and display.
//
// Information Hiding:
// - Truncation boundaries and marker format hidden from callers
package textutil

import "fmt"

// Truncate shortens s to at most max characters, appending an ellipsis
// when anything was cut. A max of zero or less returns s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// BoundedDump renders s for diagnostic logs, keeping the first head and
// last tail characters of oversized input. Malformed payloads can be
// arbitrarily large; logs must stay bounded.
func BoundedDump(s string, head, tail int) string {
	if len(s) <= head+tail {
		return s
	}
	omitted := len(s) - head - tail
	return fmt.Sprintf("%s... [%d chars omitted] ...%s", s[:head], omitted, s[len(s)-tail:])
}

// Preview returns the first line of s, truncated to max characters.
// Used when a long tool result or response needs a one-line summary.
func Preview(s string, max int) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			s = s[:i]
			break
		}
	}
	return Truncate(s, max)
}

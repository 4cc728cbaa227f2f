// Package strings provides small string helpers shared across the audit tool
package strings

import std "strings"

// Truncate clips s to at most max bytes, appending a marker when clipped.
// Used to bound error messages before they reach the ledger or logs.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	const marker = "...(truncated)"
	if max <= len(marker) {
		return s[:max]
	}
	return s[:max-len(marker)] + marker
}

// Tail returns the last max bytes of s (useful for stderr tails)
func Tail(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

// SplitCSV splits a comma separated list, trimming blanks
func SplitCSV(s string) []string {
	if std.TrimSpace(s) == "" {
		return nil
	}
	parts := std.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := std.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// SQLNull returns nil if s is blank/whitespace, else the original string.
// Useful for query args where NULL is desired for blanks
func SQLNull(s string) any {
	if std.TrimSpace(s) == "" {
		return nil
	}
	return s
}

package dispatcher

import "unicode/utf8"

// DefaultTruncateLength bounds logged inputs and results.
const DefaultTruncateLength = 500

const truncatedMarker = "... (truncated)"

// Truncate shortens s to max runes followed by a marker. max <= 0 disables it.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + truncatedMarker
		}
		n++
	}
	return s
}

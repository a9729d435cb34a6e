package strings

import (
	"strings"
)

const (
	// MaxCellLen bounds free-form text such as agent messages in table output.
	MaxCellLen = 80

	// MaxBodyExcerptLen bounds response bodies quoted in error messages.
	MaxBodyExcerptLen = 200

	// MinTruncateLen is the smallest useful limit: one character plus "...".
	MinTruncateLen = 4
)

// SingleLine collapses all whitespace runs, newlines included, into single
// spaces and cuts the result to maxLen runes, ending in "..." when cut.
// maxLen below MinTruncateLen is raised to MinTruncateLen.
func SingleLine(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

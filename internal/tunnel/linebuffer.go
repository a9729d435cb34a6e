package tunnel

import "strings"

// LineBuffer turns arbitrary output chunks into complete lines. A line split
// across chunks is held until its newline arrives.
type LineBuffer struct {
	partial strings.Builder
}

// Write appends chunk and returns every line it completed, without the
// trailing newline or carriage return.
func (b *LineBuffer) Write(chunk []byte) []string {
	var lines []string
	for len(chunk) > 0 {
		i := indexNewline(chunk)
		if i < 0 {
			b.partial.Write(chunk)
			break
		}
		b.partial.Write(chunk[:i])
		lines = append(lines, strings.TrimRight(b.partial.String(), "\r"))
		b.partial.Reset()
		chunk = chunk[i+1:]
	}
	return lines
}

// Flush returns the incomplete tail, if any, and clears it.
func (b *LineBuffer) Flush() (string, bool) {
	if b.partial.Len() == 0 {
		return "", false
	}
	line := strings.TrimRight(b.partial.String(), "\r")
	b.partial.Reset()
	return line, true
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}

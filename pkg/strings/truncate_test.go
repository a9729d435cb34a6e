package strings

import (
	"testing"
	"unicode/utf8"
)

func TestSingleLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{name: "short string unchanged", input: "accepted", maxLen: 10, expected: "accepted"},
		{name: "exact length unchanged", input: "accepted", maxLen: 8, expected: "accepted"},
		{name: "long string cut", input: "upstream gateway returned an error page", maxLen: 15, expected: "upstream gat..."},
		{name: "html body flattened", input: "<html>\n  <body>Bad Gateway</body>\n</html>", maxLen: 100, expected: "<html> <body>Bad Gateway</body> </html>"},
		{name: "crlf and tabs", input: "line one\r\n\tline two", maxLen: 40, expected: "line one line two"},
		{name: "surrounding whitespace trimmed", input: "  budget too low  ", maxLen: 40, expected: "budget too low"},
		{name: "empty", input: "", maxLen: 10, expected: ""},
		{name: "whitespace only", input: " \n\t ", maxLen: 10, expected: ""},
		{name: "limit clamped", input: "hello", maxLen: 0, expected: "h..."},
		{name: "negative limit clamped", input: "hello", maxLen: -3, expected: "h..."},
		{name: "short string with small limit", input: "ok", maxLen: 2, expected: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SingleLine(tt.input, tt.maxLen); got != tt.expected {
				t.Errorf("SingleLine(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
		})
	}
}

func TestSingleLine_CountsRunes(t *testing.T) {
	// Six three-byte runes.
	input := "日本語テスト"
	got := SingleLine(input, 5)

	if want := "日本..."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !utf8.ValidString(got) {
		t.Errorf("result is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 5 {
		t.Errorf("expected 5 runes, got %d", n)
	}
}

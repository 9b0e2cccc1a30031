package strings

import (
	"strings"
	"testing"
)

func TestSingleLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{
			name:     "short string unchanged",
			input:    "access_denied",
			maxLen:   20,
			expected: "access_denied",
		},
		{
			name:     "exact length unchanged",
			input:    "hello",
			maxLen:   5,
			expected: "hello",
		},
		{
			name:     "long string truncated",
			input:    "The user denied access to the requested scopes",
			maxLen:   15,
			expected: "The user den...",
		},
		{
			name:     "newlines collapsed",
			input:    "denied\r\n\r\nINFO forged log line",
			maxLen:   100,
			expected: "denied INFO forged log line",
		},
		{
			name:     "control characters dropped",
			input:    "bad\x1b[31mred\x00",
			maxLen:   100,
			expected: "bad[31mred",
		},
		{
			name:     "unicode truncated on rune boundary",
			input:    "zugriff verweigert äöü",
			maxLen:   20,
			expected: "zugriff verweiger...",
		},
		{
			name:     "max length clamped",
			input:    "abcdefgh",
			maxLen:   1,
			expected: "a...",
		},
		{
			name:     "empty",
			input:    "  \n\t ",
			maxLen:   10,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SingleLine(tt.input, tt.maxLen)
			if result != tt.expected {
				t.Errorf("SingleLine(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
			}
		})
	}
}

func TestSingleLine_NeverExceedsMax(t *testing.T) {
	input := strings.Repeat("x", 10*MaxProviderTextLen)
	if got := len([]rune(SingleLine(input, MaxProviderTextLen))); got != MaxProviderTextLen {
		t.Errorf("expected %d runes, got %d", MaxProviderTextLen, got)
	}
}

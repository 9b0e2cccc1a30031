// Package strings holds text helpers for values that come from outside the
// process, such as error descriptions sent by the identity provider.
package strings

import (
	"strings"
	"unicode"
)

// MaxProviderTextLen bounds provider-supplied text in messages and logs.
const MaxProviderTextLen = 300

// MinTruncateLen is the minimum maxLen accepted by SingleLine. Smaller
// values would not leave room for one character plus "...".
const MinTruncateLen = 4

// SingleLine makes untrusted text safe to embed in a log line or terminal
// message: control characters are dropped, runs of whitespace (including
// newlines) become a single space, and the result is cut to maxLen runes
// with a trailing "..." when it was longer.
func SingleLine(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

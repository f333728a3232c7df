package figure

import (
	"regexp"
	"strings"
)

// MaxNameRunes bounds sanitized names.
const MaxNameRunes = 50

var illegalPathChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// Sanitize makes s usable as a file name: whitespace runs collapse to one
// space, path-illegal characters become "_", and the result is cut to
// MaxNameRunes runes.
func Sanitize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = illegalPathChars.ReplaceAllString(s, "_")
	if r := []rune(s); len(r) > MaxNameRunes {
		s = strings.TrimSpace(string(r[:MaxNameRunes]))
	}
	return s
}

// Package caption classifies text blocks as figure captions.
package caption

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// markers are matched case-insensitively, longest first so that "Figure"
// is not consumed as "Fig" followed by "ure".
var markers = []string{"figure", "fig.", "fig"}

// IsCaption reports whether text starts with a caption marker followed by a
// figure number: "图", "Fig", "Fig." or "Figure", optional whitespace, then at
// least one ASCII digit. Leading whitespace is ignored.
func IsCaption(text string) bool {
	s := strings.TrimLeftFunc(text, unicode.IsSpace)
	rest, ok := cutMarker(s)
	if !ok {
		return false
	}
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	return rest != "" && rest[0] >= '0' && rest[0] <= '9'
}

func cutMarker(s string) (string, bool) {
	if rest, ok := strings.CutPrefix(s, "图"); ok {
		return rest, true
	}
	for _, m := range markers {
		if len(s) >= len(m) && strings.EqualFold(s[:len(m)], m) {
			return s[len(m):], true
		}
	}
	return "", false
}

// Normalize applies NFKC and collapses whitespace runs to single spaces.
// Full-width forms such as "Ｆｉｇ．１" become "Fig.1".
func Normalize(text string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(text)), " ")
}

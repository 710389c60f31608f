package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain treats content as UTF-8, repairing invalid sequences with the
// replacement character. The byte cap applied upstream can cut a multi-byte
// rune in half; the dangling fragment is repaired here like any other bad
// sequence, so capped extraction stays deterministic.
func extractPlain(content []byte) (string, error) {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return s, nil
}

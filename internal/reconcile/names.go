package reconcile

import (
	"strings"
	"unicode/utf8"
)

// MoreComplete reports whether incoming should replace existing as a contact
// name: more whitespace-separated tokens wins, and on equal token counts the
// longer string wins. An empty incoming name never wins.
func MoreComplete(existing, incoming string) bool {
	incoming = NormalizeName(incoming)
	existing = NormalizeName(existing)
	if incoming == "" {
		return false
	}
	if existing == "" {
		return true
	}
	in, ex := len(strings.Fields(incoming)), len(strings.Fields(existing))
	if in != ex {
		return in > ex
	}
	return utf8.RuneCountInString(incoming) > utf8.RuneCountInString(existing)
}

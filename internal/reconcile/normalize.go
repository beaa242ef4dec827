package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone keeps the digits of s and a leading '+'. It returns "" when s
// carries no digits at all.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.Trim(out, "+") == "" {
		return ""
	}
	return out
}

// NormalizeName trims s and puts it in NFC form. Case is preserved: contact
// names match case-sensitively.
func NormalizeName(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// FoldTitle is the case-insensitive comparison key for event titles.
func FoldTitle(s string) string {
	return folder.String(NormalizeName(s))
}

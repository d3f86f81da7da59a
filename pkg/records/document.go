package records

import "strings"

// MinDocumentDigits is the length of a CPF, the shortest accepted document.
const MinDocumentDigits = 11

// CleanDocument strips everything but ASCII digits, so "CPF: 123.456.789-09"
// becomes "12345678909".
func CleanDocument(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CleanText applies CleanDocument to a present value. Absent values are
// returned unchanged.
func CleanText(t Text) Text {
	if !t.Valid {
		return t
	}
	return TextOf(CleanDocument(t.String))
}

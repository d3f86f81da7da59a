package records

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date form records carry after normalization.
const DateLayout = "2006-01-02"

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	DateLayout,
}

// NormalizeDate converts an ISO-8601 timestamp (with or without zone) into a
// plain calendar date. Blank input yields an absent value; input that does not
// parse is returned unchanged.
func NormalizeDate(raw Text) Text {
	if raw.Blank() {
		return Text{}
	}
	s := strings.TrimSpace(raw.String)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TextOf(t.Format(DateLayout))
		}
	}
	return raw
}

var storeLayouts = []string{
	"02/01/2006",
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseDate reads a date in dd/mm/yyyy, yyyy-mm-dd or ISO-8601 timestamp form
// and returns it as midnight UTC of that calendar day. ok is false for blank or
// unrecognized input, which callers store as NULL.
func ParseDate(raw Text) (d time.Time, ok bool) {
	if raw.Blank() {
		return time.Time{}, false
	}
	s := strings.TrimSpace(raw.String)
	for _, layout := range storeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// DatePtr is ParseDate returning nil for unparseable input.
func DatePtr(raw Text) *time.Time {
	d, ok := ParseDate(raw)
	if !ok {
		return nil
	}
	return &d
}

// SameDate reports whether two optional dates name the same calendar day.
func SameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DaysOverdue returns the number of whole days between due and now, or 0 when
// due is not in the past. due is taken as midnight of its calendar day in
// now's location.
func DaysOverdue(due time.Time, now time.Time) int {
	start := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, now.Location())
	if !now.After(start) {
		return 0
	}
	return int(now.Sub(start) / (24 * time.Hour))
}

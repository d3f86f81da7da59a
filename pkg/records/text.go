package records

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Text is an optional scalar value, shaped like sql.NullString. Valid is
// false when the value was absent or null. Numbers and booleans decode as
// their literal JSON text.
type Text struct {
	String string
	Valid  bool
}

// TextOf returns a present Text.
func TextOf(s string) Text {
	return Text{String: s, Valid: true}
}

// NonBlank returns a present Text unless s is empty after trimming.
func NonBlank(s string) Text {
	if strings.TrimSpace(s) == "" {
		return Text{}
	}
	return TextOf(s)
}

// Blank reports whether the value is absent or only whitespace.
func (t Text) Blank() bool {
	return !t.Valid || strings.TrimSpace(t.String) == ""
}

// Or returns the value, or def when blank.
func (t Text) Or(def string) string {
	if t.Blank() {
		return def
	}
	return t.String
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Text{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode text: %w", err)
		}
		*t = TextOf(s)
		return nil
	}
	// Numbers, booleans and nested values keep their literal form.
	*t = TextOf(string(data))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.String)
}

// Scan implements sql.Scanner so Text can be read from nullable columns.
func (t *Text) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = Text{}
	case string:
		*t = TextOf(v)
	case []byte:
		*t = TextOf(string(v))
	default:
		*t = TextOf(fmt.Sprint(v))
	}
	return nil
}

// Value implements driver.Valuer.
func (t Text) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.String, nil
}

// FirstOrDefault returns the first element of items, or the zero value of T
// when items is empty. Nested portal arrays (identities, addresses, e-mails)
// are read through it so a missing entry yields empty fields instead of a
// lookup failure.
func FirstOrDefault[T any](items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[0]
}

package portal

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a monetary amount as the portal sends it: a JSON number, a numeric
// string, or a formatted string such as "R$ 1.234,56". Values that do not
// parse decode as absent rather than failing the whole payload.
type Money struct {
	decimal.NullDecimal
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Money) UnmarshalJSON(data []byte) error {
	m.NullDecimal = decimal.NullDecimal{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '"' {
		if d, err := decimal.NewFromString(string(data)); err == nil {
			m.NullDecimal = decimal.NewNullDecimal(d)
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	m.NullDecimal = ParseAmount(s)
	return nil
}

// ParseAmount reads a plain or Brazilian-formatted amount.
func ParseAmount(s string) decimal.NullDecimal {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if s == "" {
		return decimal.NullDecimal{}
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

package handlers

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// flexInt accepts a JSON number or a numeric string. Set stays false for an
// absent field or null.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = flexInt{}
		return nil
	}
	raw := strings.TrimSpace(strings.Trim(string(data), `"`))
	if raw == "" {
		*f = flexInt{}
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("value %s is not an integer", string(data))
	}
	*f = flexInt{Value: n, Set: true}
	return nil
}

func (f flexInt) Ptr() *int {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

// flexDecimal accepts a JSON number or a numeric string. Unparsable input does
// not fail decoding: Invalid is set so the handler can answer with a field error.
type flexDecimal struct {
	Value   decimal.Decimal
	Set     bool
	Invalid bool
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*f = flexDecimal{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := strings.TrimSpace(strings.Trim(string(data), `"`))
	if raw == "" {
		return nil
	}
	f.Set = true
	v, err := decimal.NewFromString(raw)
	if err != nil {
		f.Invalid = true
		return nil
	}
	f.Value = v
	return nil
}

func (f flexDecimal) Ptr() *decimal.Decimal {
	if !f.Set || f.Invalid {
		return nil
	}
	v := f.Value
	return &v
}

// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package zwave

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// ValueKind is the dynamic type of a device value.
type ValueKind int

const (
	// KindOther covers strings, objects, arrays, null and absent values.
	KindOther ValueKind = iota
	// KindNumber is any JSON number.
	KindNumber
	// KindBool is a JSON boolean.
	KindBool
)

// String returns the kind name used in logs.
func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return "other"
	}
}

// Value is a tagged variant over what zwave-js-ui reports as a value.
// Only the field matching Kind is meaningful. Raw keeps the original JSON
// for KindOther so it can be logged.
type Value struct {
	Kind   ValueKind
	Number float64
	Bool   bool
	Raw    json.RawMessage
}

// NumberValue returns a KindNumber value.
func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Number: n}
}

// BoolValue returns a KindBool value.
func BoolValue(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// OtherValue returns a KindOther value carrying raw JSON.
func OtherValue(raw string) Value {
	return Value{Kind: KindOther, Raw: json.RawMessage(raw)}
}

// UnmarshalJSON decodes any JSON value. It never fails on well-formed
// JSON; values that are neither numbers nor booleans become KindOther.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = Value{}

	switch {
	case bytes.Equal(data, []byte("true")):
		v.Kind, v.Bool = KindBool, true
	case bytes.Equal(data, []byte("false")):
		v.Kind, v.Bool = KindBool, false
	case len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
		// Out-of-range numbers saturate to ±Inf, which a gauge can hold.
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return err
		}
		v.Kind, v.Number = KindNumber, n
	default:
		v.Raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// MarshalJSON encodes the value back to its JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		if math.IsInf(v.Number, 0) || math.IsNaN(v.Number) {
			// JSON has no literal for these.
			return json.Marshal(v.String())
		}
		return json.Marshal(v.Number)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		if len(v.Raw) == 0 {
			return []byte("null"), nil
		}
		return v.Raw, nil
	}
}

// String renders the value for logs.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		if len(v.Raw) == 0 {
			return "undefined"
		}
		return string(v.Raw)
	}
}

// Key is a property or property key, which zwave-js reports as either a
// string or a number. Numbers keep their decimal JSON text.
type Key string

// UnmarshalJSON accepts a JSON string, number or null.
func (k *Key) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*k = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = Key(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*k = Key(n.String())
	return nil
}

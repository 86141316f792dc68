package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueKind identifies the primitive kind of a cell value.
// Cell values form a closed variant so that equality comparisons during
// dependency analysis stay well-defined across heterogeneous inputs.
type ValueKind string

const (
	ValueNull   ValueKind = "null"
	ValueText   ValueKind = "text"
	ValueNumber ValueKind = "number"
	ValueDate   ValueKind = "date"
)

// dateLayouts are the accepted textual date forms, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
}

// Value is a single cell value in a relation row.
// Exactly one payload field is meaningful, selected by Kind.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	Date   time.Time
}

// NullValue returns the null cell value.
func NullValue() Value {
	return Value{Kind: ValueNull}
}

// TextValue returns a text cell value.
func TextValue(s string) Value {
	return Value{Kind: ValueText, Text: s}
}

// NumberValue returns a numeric cell value.
func NumberValue(f float64) Value {
	return Value{Kind: ValueNumber, Number: f}
}

// DateValue returns a date cell value.
func DateValue(t time.Time) Value {
	return Value{Kind: ValueDate, Date: t}
}

// ParseValue interprets a raw text cell. Empty or whitespace-only text is
// null, numeric text becomes a number, recognized date forms become dates,
// and everything else stays text.
func ParseValue(s string) Value {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return NullValue()
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return NumberValue(f)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return DateValue(t)
		}
	}
	return TextValue(trimmed)
}

// CoerceValue converts an arbitrary ingested value (database driver output,
// decoded JSON, caller-supplied Go value) into the closed variant.
func CoerceValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case Value:
		return x
	case string:
		return ParseValue(x)
	case []byte:
		return ParseValue(string(x))
	case bool:
		return TextValue(strconv.FormatBool(x))
	case int:
		return NumberValue(float64(x))
	case int32:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case float32:
		return NumberValue(float64(x))
	case float64:
		return NumberValue(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return NumberValue(f)
		}
		return TextValue(x.String())
	case time.Time:
		return DateValue(x)
	default:
		return ParseValue(fmt.Sprintf("%v", x))
	}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.Kind == ValueNull
}

// Equal reports whether two values are the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueNull:
		return true
	case ValueText:
		return v.Text == other.Text
	case ValueNumber:
		return v.Number == other.Number
	case ValueDate:
		return v.Date.Equal(other.Date)
	}
	return false
}

// Key returns a canonical string usable as a map key when grouping rows by
// value. Distinct values always produce distinct keys and equal values
// always produce equal keys, across kinds.
func (v Value) Key() string {
	switch v.Kind {
	case ValueNull:
		return "\x00"
	case ValueText:
		return "t:" + v.Text
	case ValueNumber:
		return "n:" + strconv.FormatFloat(v.Number, 'g', -1, 64)
	case ValueDate:
		return "d:" + v.Date.UTC().Format(time.RFC3339)
	}
	return ""
}

// String renders the value for display and evidence messages.
func (v Value) String() string {
	switch v.Kind {
	case ValueNull:
		return ""
	case ValueText:
		return v.Text
	case ValueNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case ValueDate:
		if v.Date.Hour() == 0 && v.Date.Minute() == 0 && v.Date.Second() == 0 {
			return v.Date.Format("2006-01-02")
		}
		return v.Date.Format("2006-01-02 15:04:05")
	}
	return ""
}

// MarshalJSON emits the natural scalar form: null, string, number, or an
// ISO date string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueNull:
		return []byte("null"), nil
	case ValueNumber:
		return json.Marshal(v.Number)
	default:
		return json.Marshal(v.String())
	}
}

// UnmarshalJSON accepts any JSON scalar and coerces it.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = CoerceValue(raw)
	return nil
}

// MarshalYAML emits the natural scalar form, mirroring MarshalJSON.
func (v Value) MarshalYAML() (any, error) {
	switch v.Kind {
	case ValueNull:
		return nil, nil
	case ValueNumber:
		return v.Number, nil
	default:
		return v.String(), nil
	}
}

// UnmarshalYAML accepts any YAML scalar and coerces it.
func (v *Value) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*v = CoerceValue(raw)
	return nil
}

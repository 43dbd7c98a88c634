// Package catalog holds the source-level record model: optional field values,
// raw records, record sets and the layouts used to decode them.
package catalog

import (
	"encoding/json"
	"strconv"
)

// Kind tags the type held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindCode
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindCode:
		return "code"
	case KindText:
		return "text"
	default:
		return "null"
	}
}

// Value is an optional, typed field value. The zero Value is null.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
}

// Null returns the null value
func Null() Value { return Value{} }

// IntValue wraps an integer
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// FloatValue wraps a float
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// CodeValue wraps a single-character code
func CodeValue(v string) Value { return Value{Kind: KindCode, Str: v} }

// TextValue wraps free text
func TextValue(v string) Value { return Value{Kind: KindText, Str: v} }

// IsNull reports whether the value is absent
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Float64 returns the numeric reading of the value. Codes that look like
// numbers (phase flags) are numeric too.
func (v Value) Float64() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	case KindCode:
		f, err := strconv.ParseFloat(v.Str, 64)
		return f, err == nil
	}
	return 0, false
}

// Int64 returns the integer reading of the value; floats qualify only when integral
func (v Value) Int64() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindFloat:
		if v.Float == float64(int64(v.Float)) {
			return int64(v.Float), true
		}
	case KindCode:
		i, err := strconv.ParseInt(v.Str, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// String renders the value for display and grouping; null renders empty
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindCode, KindText:
		return v.Str
	}
	return ""
}

// MarshalJSON writes null, a number or a string
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindCode, KindText:
		return json.Marshal(v.Str)
	}
	return []byte("null"), nil
}

// RawRecord maps field names to values for one source row
type RawRecord map[string]Value

// RecordSet is the parsed content of one catalog source
type RecordSet struct {
	Source    string      `json:"source"`
	IDField   string      `json:"id_field"`
	Columns   []string    `json:"columns"`
	Records   []RawRecord `json:"-"`
	Malformed int         `json:"malformed"`
	Err       error       `json:"-"`
}

// Len returns the number of accepted records
func (s *RecordSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Empty returns an empty record set that remembers why it is empty
func Empty(source, idField string, err error) *RecordSet {
	return &RecordSet{Source: source, IDField: idField, Err: err}
}

// FieldType is the declared type of a fixed-width field
type FieldType string

const (
	FieldInt   FieldType = "int"
	FieldFloat FieldType = "float"
	FieldCode  FieldType = "code"
)

// FieldSpec locates one field in a fixed-width line as the byte range [Start, End)
type FieldSpec struct {
	Name  string    `mapstructure:"name" json:"name"`
	Start int       `mapstructure:"start" json:"start"`
	End   int       `mapstructure:"end" json:"end"`
	Type  FieldType `mapstructure:"type" json:"type"`
}

// Layout describes a fixed-width catalog
type Layout struct {
	IDField string      `mapstructure:"id_field" json:"id_field"`
	Fields  []FieldSpec `mapstructure:"fields" json:"fields"`
}

// Table is an already tabular source: named columns and string cells.
// Types optionally carries a per-column hint ("numeric" or "text").
type Table struct {
	Columns []string
	Types   map[string]string
	Rows    [][]string
}

const (
	TypeNumeric = "numeric"
	TypeText    = "text"
)

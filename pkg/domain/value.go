package domain

import (
	"fmt"
	"math"
	"strconv"
)

// VarType is the declared type of an automaton variable.
type VarType string

const (
	VarInt    VarType = "Int"
	VarDouble VarType = "Double"
	VarString VarType = "String"
)

// ParseVarType maps a type keyword from the text format to a VarType.
func ParseVarType(s string) (VarType, error) {
	switch s {
	case "Int":
		return VarInt, nil
	case "Double":
		return VarDouble, nil
	case "String":
		return VarString, nil
	}
	return "", fmt.Errorf("type %q: %w", s, ErrUnknownVarType)
}

// Value is a typed runtime variable binding. It is a tagged union over the
// three variable types, replacing ad hoc string-to-type inference with
// explicit coercion.
type Value struct {
	typ VarType
	i   int64
	f   float64
	s   string
}

// Int wraps an integer value.
func Int(v int64) Value { return Value{typ: VarInt, i: v} }

// Double wraps a floating point value.
func Double(v float64) Value { return Value{typ: VarDouble, f: v} }

// String wraps a string value.
func String(v string) Value { return Value{typ: VarString, s: v} }

// Type returns the value's declared type.
func (v Value) Type() VarType { return v.typ }

// Interface returns the value as a JSON-native Go type: int64, float64,
// or string.
func (v Value) Interface() any {
	switch v.typ {
	case VarInt:
		return v.i
	case VarDouble:
		return v.f
	default:
		return v.s
	}
}

func (v Value) String() string {
	switch v.typ {
	case VarInt:
		return strconv.FormatInt(v.i, 10)
	case VarDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return v.s
	}
}

// ParseValue parses a string-encoded value (as stored in the text format)
// against a declared type.
func ParseValue(typ VarType, raw string) (Value, error) {
	switch typ {
	case VarInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as Int: %w", raw, ErrCoercion)
		}
		return Int(n), nil
	case VarDouble:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %q as Double: %w", raw, ErrCoercion)
		}
		return Double(f), nil
	case VarString:
		return String(raw), nil
	}
	return Value{}, fmt.Errorf("type %q: %w", typ, ErrUnknownVarType)
}

// Coerce maps a JSON-native value (string, number, bool, nil) onto the
// declared type. Numbers arriving from JSON decoding are float64; an Int
// coercion requires the number to be integral. Booleans coerce to 1/0 for
// numeric types. A value that cannot be represented fails with ErrCoercion
// and the caller must leave the store unchanged.
func Coerce(typ VarType, raw any) (Value, error) {
	switch typ {
	case VarInt:
		switch n := raw.(type) {
		case float64:
			if n != math.Trunc(n) {
				return Value{}, fmt.Errorf("%v is not integral: %w", n, ErrCoercion)
			}
			return Int(int64(n)), nil
		case int:
			return Int(int64(n)), nil
		case int64:
			return Int(n), nil
		case bool:
			if n {
				return Int(1), nil
			}
			return Int(0), nil
		case string:
			return ParseValue(VarInt, n)
		}
	case VarDouble:
		switch n := raw.(type) {
		case float64:
			return Double(n), nil
		case int:
			return Double(float64(n)), nil
		case int64:
			return Double(float64(n)), nil
		case bool:
			if n {
				return Double(1), nil
			}
			return Double(0), nil
		case string:
			return ParseValue(VarDouble, n)
		}
	case VarString:
		switch s := raw.(type) {
		case string:
			return String(s), nil
		case float64:
			return String(strconv.FormatFloat(s, 'g', -1, 64)), nil
		case int64:
			return String(strconv.FormatInt(s, 10)), nil
		case bool:
			return String(strconv.FormatBool(s)), nil
		}
	default:
		return Value{}, fmt.Errorf("type %q: %w", typ, ErrUnknownVarType)
	}
	return Value{}, fmt.Errorf("cannot coerce %T to %s: %w", raw, typ, ErrCoercion)
}

// Copyright (C) 1994-2018 Lua.org, PUC-Rio.
// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package luacode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type is a Lua type tag as stored in a binary chunk.
// The low four bits hold the basic type
// and bits 4-5 hold the variant.
type Type uint8

// Basic types.
const (
	TypeNil           Type = 0
	TypeBoolean       Type = 1
	TypeLightUserdata Type = 2
	TypeNumber        Type = 3
	TypeString        Type = 4
	TypeTable         Type = 5
	TypeFunction      Type = 6
	TypeUserdata      Type = 7
	TypeThread        Type = 8
)

// Variants.
const (
	TypeFloat       = TypeNumber | 0<<4
	TypeInteger     = TypeNumber | 1<<4
	TypeShortString = TypeString | 0<<4
	TypeLongString  = TypeString | 1<<4
)

// ParseType converts a tag byte into a [Type].
// It returns a [*TypeError] matching [InvalidType]
// if b is not a known tag.
// Plain number and string tags are read as their first variant,
// [TypeFloat] and [TypeShortString].
func ParseType(b byte) (Type, error) {
	t := Type(b)
	switch t {
	case TypeNil, TypeBoolean, TypeLightUserdata,
		TypeFloat, TypeInteger,
		TypeShortString, TypeLongString,
		TypeTable, TypeFunction, TypeUserdata, TypeThread:
		return t, nil
	default:
		return 0, &TypeError{Tag: b}
	}
}

// NoVariant returns the basic type of t.
func (t Type) NoVariant() Type {
	return t & 0x0f
}

// isConstant reports whether values of type t
// can appear in a function's constant table.
func (t Type) isConstant() bool {
	switch t {
	case TypeNil, TypeBoolean, TypeFloat, TypeInteger, TypeShortString, TypeLongString:
		return true
	default:
		return false
	}
}

// String returns the Lua name of the type.
func (t Type) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeLightUserdata, TypeUserdata:
		return "userdata"
	case TypeFloat:
		return "number"
	case TypeInteger:
		return "integer"
	case TypeShortString, TypeLongString:
		return "string"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	case TypeThread:
		return "thread"
	default:
		return fmt.Sprintf("luacode.Type(%#02x)", uint8(t))
	}
}

// maxShortStringLength is the longest string
// that is dumped with [TypeShortString].
const maxShortStringLength = 40

// Value is a subset of Lua values that can be used as constants:
// nil, booleans, floats, integers, and strings.
// The zero value is nil.
// Values can be compared for equality with the == operator.
type Value struct {
	bits uint64
	s    string
	t    Type
}

// BoolValue converts a boolean to a [Value].
func BoolValue(b bool) Value {
	v := Value{t: TypeBoolean}
	if b {
		v.bits = 1
	}
	return v
}

// IntegerValue converts an integer to a [Value].
func IntegerValue(i int64) Value {
	return Value{
		t:    TypeInteger,
		bits: uint64(i),
	}
}

// FloatValue converts a floating-point number to a [Value].
func FloatValue(f float64) Value {
	return Value{
		t:    TypeFloat,
		bits: math.Float64bits(f),
	}
}

// StringValue converts a string to a [Value].
func StringValue(s string) Value {
	return Value{
		t: TypeShortString,
		s: s,
	}
}

// Type returns the value's type tag.
// Strings report [TypeShortString] or [TypeLongString]
// depending on how they would be stored in a chunk.
func (v Value) Type() Type {
	if v.t == TypeShortString && len(v.s) > maxShortStringLength {
		return TypeLongString
	}
	return v.t
}

// IsNil reports whether v is the zero value.
func (v Value) IsNil() bool {
	return v.t == TypeNil
}

// IsNumber reports whether the value is a number.
func (v Value) IsNumber() bool {
	return v.t.NoVariant() == TypeNumber
}

// IsInteger reports whether the value is an integer.
func (v Value) IsInteger() bool {
	return v.t == TypeInteger
}

// IsString reports whether the value is a string.
func (v Value) IsString() bool {
	return v.t.NoVariant() == TypeString
}

// IsBoolean reports whether the value is a boolean.
func (v Value) IsBoolean() bool {
	return v.t == TypeBoolean
}

// Bool reports whether the value tests true in Lua
// and whether the value is a boolean.
func (v Value) Bool() (_ bool, isBool bool) {
	if v.t == TypeBoolean {
		return v.bits != 0, true
	}
	return v.t != TypeNil, false
}

// Float64 returns the value as a floating-point number
// and reports whether the value is a number.
// No coercion occurs.
func (v Value) Float64() (_ float64, isNumber bool) {
	switch v.t {
	case TypeInteger:
		return float64(int64(v.bits)), true
	case TypeFloat:
		return math.Float64frombits(v.bits), true
	default:
		return 0, false
	}
}

// Int64 returns the value as an integer
// and reports whether the value is a number.
// If the value is a floating point number without an exact integer representation,
// then ok will be false.
// No other coercion occurs.
func (v Value) Int64() (_ int64, ok bool) {
	switch v.t {
	case TypeInteger:
		return int64(v.bits), true
	case TypeFloat:
		return FloatToInteger(math.Float64frombits(v.bits))
	default:
		return 0, false
	}
}

// Unquoted returns the value as a string
// and reports whether the value is a string.
// Numbers are coerced to a string,
// but isString will be false.
func (v Value) Unquoted() (s string, isString bool) {
	switch v.t {
	case TypeShortString:
		return v.s, true
	case TypeFloat:
		f, _ := v.Float64()
		return formatFloat(f), false
	case TypeInteger:
		i, _ := v.Int64()
		return strconv.FormatInt(i, 10), false
	default:
		return "", false
	}
}

// formatFloat formats a float the way Lua's tostring does.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.Trim(s, "-0123456789") == "" {
		// Looks like an integer.
		s += ".0"
	}
	return s
}

// String returns the value as a Lua constant.
func (v Value) String() string {
	switch v.t {
	case TypeNil:
		return "nil"
	case TypeBoolean:
		if v.bits != 0 {
			return "true"
		}
		return "false"
	case TypeFloat, TypeInteger:
		s, _ := v.Unquoted()
		return s
	case TypeShortString:
		return quote(v.s)
	default:
		return "<invalid value>"
	}
}

// quote returns s as a double-quoted string
// with the escapes that luac -l uses.
func quote(s string) string {
	sb := new(strings.Builder)
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\a':
			sb.WriteString(`\a`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\v':
			sb.WriteString(`\v`)
		default:
			if ' ' <= c && c <= '~' {
				sb.WriteByte(c)
			} else {
				fmt.Fprintf(sb, `\%03d`, c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// FloatToInteger converts a floating-point number to an integer
// if the number has an exact integer representation.
func FloatToInteger(n float64) (_ int64, ok bool) {
	if math.Floor(n) != n {
		return 0, false
	}

	// math.MinInt64 always has an exact representation as a float,
	// but math.MaxInt64 may not.
	ok = math.MinInt64 <= n && n < -math.MinInt64
	if !ok {
		return 0, false
	}
	return int64(n), true
}

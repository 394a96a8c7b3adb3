package host

import (
	"errors"
	"fmt"
)

// ErrValueTooLarge is returned by Store.Set when a value exceeds the per-entry ceiling.
var ErrValueTooLarge = errors.New("host: property value exceeds entry limit")

type ValueKind uint8

const (
	ValueString ValueKind = iota + 1
	ValueNumber
	ValueBool
)

type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

func String(s string) Value  { return Value{Kind: ValueString, Str: s} }
func Number(f float64) Value { return Value{Kind: ValueNumber, Num: f} }
func Bool(b bool) Value      { return Value{Kind: ValueBool, Bool: b} }

// Size is the number of bytes a value occupies against the entry ceiling.
func (v Value) Size() int {
	switch v.Kind {
	case ValueString:
		return len(v.Str)
	case ValueNumber:
		return 8
	default:
		return 1
	}
}

func (v Value) String() string {
	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueNumber:
		return fmt.Sprintf("%g", v.Num)
	case ValueBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return ""
	}
}

// Store is scalar key-value persistence scoped to one actor.
type Store interface {
	Get(key string) (Value, bool)
	Set(key string, v Value) error
	Delete(key string) error
}

func GetString(s Store, key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok || v.Kind != ValueString {
		return "", false
	}
	return v.Str, true
}

func GetBool(s Store, key string) (bool, bool) {
	v, ok := s.Get(key)
	if !ok || v.Kind != ValueBool {
		return false, false
	}
	return v.Bool, true
}

func GetNumber(s Store, key string) (float64, bool) {
	v, ok := s.Get(key)
	if !ok || v.Kind != ValueNumber {
		return 0, false
	}
	return v.Num, true
}

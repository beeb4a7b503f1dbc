package schema

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknownKind  = errors.New("schema: unknown field kind")
	ErrKindMismatch = errors.New("schema: field kind mismatch")
	ErrInvalidValue = errors.New("schema: invalid field value")
	ErrUnknownField = errors.New("schema: unknown field")
	ErrMissingField = errors.New("schema: missing field")
)

// Kind is the wire width tag of a field.
type Kind uint8

const (
	KindU8 Kind = iota + 1
	KindU16
	KindBool
	KindF32
)

func (k Kind) Width() int {
	switch k {
	case KindU8, KindBool:
		return 1
	case KindU16:
		return 2
	case KindF32:
		return 4
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindBool:
		return "bool"
	case KindF32:
		return "f32"
	default:
		return "unknown"
	}
}

// Value is one decoded scalar tagged with its kind.
type Value struct {
	Kind Kind
	u    uint16
	b    bool
	f    float32
}

func U8(v uint8) Value    { return Value{Kind: KindU8, u: uint16(v)} }
func U16(v uint16) Value  { return Value{Kind: KindU16, u: v} }
func Bool(v bool) Value   { return Value{Kind: KindBool, b: v} }
func F32(v float32) Value { return Value{Kind: KindF32, f: v} }

func (v Value) Uint8() (uint8, error) {
	if v.Kind != KindU8 {
		return 0, ErrKindMismatch
	}
	return uint8(v.u), nil
}

func (v Value) Uint16() (uint16, error) {
	if v.Kind != KindU16 {
		return 0, ErrKindMismatch
	}
	return v.u, nil
}

func (v Value) Bool() (bool, error) {
	if v.Kind != KindBool {
		return false, ErrKindMismatch
	}
	return v.b, nil
}

func (v Value) Float32() (float32, error) {
	if v.Kind != KindF32 {
		return 0, ErrKindMismatch
	}
	return v.f, nil
}

// Any returns the scalar as its natural Go type.
func (v Value) Any() any {
	switch v.Kind {
	case KindU8:
		return uint8(v.u)
	case KindU16:
		return v.u
	case KindBool:
		return v.b
	case KindF32:
		return v.f
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindU8, KindU16:
		return strconv.FormatUint(uint64(v.u), 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindF32:
		return strconv.FormatFloat(float64(v.f), 'g', -1, 32)
	default:
		return "<invalid>"
	}
}

// Parse reads a textual scalar of kind k.
func Parse(k Kind, raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	switch k {
	case KindU8:
		n, err := strconv.ParseUint(raw, 0, 8)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s %q", ErrInvalidValue, k, raw)
		}
		return U8(uint8(n)), nil
	case KindU16:
		n, err := strconv.ParseUint(raw, 0, 16)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s %q", ErrInvalidValue, k, raw)
		}
		return U16(uint16(n)), nil
	case KindBool:
		switch strings.ToLower(raw) {
		case "on", "yes":
			return Bool(true), nil
		case "off", "no":
			return Bool(false), nil
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s %q", ErrInvalidValue, k, raw)
		}
		return Bool(b), nil
	case KindF32:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("%w: %s %q", ErrInvalidValue, k, raw)
		}
		return F32(float32(f)), nil
	default:
		return Value{}, ErrUnknownKind
	}
}

// FromAny converts a JSON-style scalar into a Value of kind k.
func FromAny(k Kind, in any) (Value, error) {
	switch x := in.(type) {
	case string:
		return Parse(k, x)
	case bool:
		if k != KindBool {
			return Value{}, fmt.Errorf("%w: want %s got bool", ErrKindMismatch, k)
		}
		return Bool(x), nil
	case float64:
		switch k {
		case KindF32:
			f := float32(x)
			if math.IsInf(float64(f), 0) {
				return Value{}, fmt.Errorf("%w: %s %v", ErrInvalidValue, k, x)
			}
			return F32(f), nil
		case KindU8, KindU16:
			if x != math.Trunc(x) || x < 0 {
				return Value{}, fmt.Errorf("%w: %s %v", ErrInvalidValue, k, x)
			}
			return Parse(k, strconv.FormatFloat(x, 'f', 0, 64))
		case KindBool:
			return Bool(x != 0), nil
		}
	}
	return Value{}, fmt.Errorf("%w: %s from %T", ErrInvalidValue, k, in)
}

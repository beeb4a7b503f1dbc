package schema

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danmuck/midikiti/internal/protocol"
)

// Values maps field names to decoded scalars for one parameter block.
type Values map[string]Value

// Clone returns an independent copy.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Conform reports whether v holds exactly the fields of s with matching kinds.
func (s *Schema) Conform(v Values) error {
	for _, f := range s.fields {
		val, ok := v[f.Name]
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrMissingField, s.Name, f.Name)
		}
		if val.Kind != f.Kind {
			return fmt.Errorf("%w: %s.%s want=%s got=%s", ErrKindMismatch, s.Name, f.Name, f.Kind, val.Kind)
		}
	}
	if len(v) != len(s.fields) {
		for name := range v {
			if _, ok := s.index[name]; !ok {
				return fmt.Errorf("%w: %s.%s", ErrUnknownField, s.Name, name)
			}
		}
	}
	return nil
}

// Encode packs v little-endian in schema order.
func (s *Schema) Encode(v Values) ([]byte, error) {
	if err := s.Conform(v); err != nil {
		return nil, err
	}
	buf := make([]byte, s.Width())
	off := 0
	for _, f := range s.fields {
		val := v[f.Name]
		switch f.Kind {
		case KindU8:
			buf[off] = byte(val.u)
		case KindU16:
			binary.LittleEndian.PutUint16(buf[off:], val.u)
		case KindBool:
			if val.b {
				buf[off] = 1
			}
		case KindF32:
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(val.f))
		}
		off += f.Kind.Width()
	}
	return buf, nil
}

// Decode unpacks a parameter block. The buffer must be exactly Width bytes.
func (s *Schema) Decode(buf []byte) (Values, error) {
	want := s.Width()
	if len(buf) < want {
		return nil, fmt.Errorf("%w: %s want=%d got=%d", protocol.ErrTruncatedPayload, s.Name, want, len(buf))
	}
	if len(buf) > want {
		return nil, fmt.Errorf("%w: %s want=%d got=%d", protocol.ErrTrailingBytes, s.Name, want, len(buf))
	}
	out := make(Values, len(s.fields))
	off := 0
	for _, f := range s.fields {
		switch f.Kind {
		case KindU8:
			out[f.Name] = U8(buf[off])
		case KindU16:
			out[f.Name] = U16(binary.LittleEndian.Uint16(buf[off:]))
		case KindBool:
			out[f.Name] = Bool(buf[off] != 0)
		case KindF32:
			out[f.Name] = F32(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])))
		}
		off += f.Kind.Width()
	}
	return out, nil
}

// Defaults returns a zero-valued block conforming to s.
func (s *Schema) Defaults() Values {
	out := make(Values, len(s.fields))
	for _, f := range s.fields {
		out[f.Name] = Value{Kind: f.Kind}
	}
	return out
}

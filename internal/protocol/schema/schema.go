package schema

import (
	"fmt"
	"strings"
)

// Interface type ids reported by the device during layout discovery.
const (
	TypeOctave uint8 = 0xF1
	TypePot    uint8 = 0xF2
	TypeButton uint8 = 0xF3
)

var typeNames = map[uint8]string{
	TypeOctave: "Octave",
	TypePot:    "Pot",
	TypeButton: "Button",
}

// TypeName returns the display name for an interface type id.
func TypeName(typeID uint8) string {
	if name, ok := typeNames[typeID]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", typeID)
}

// Field describes one named primitive in a parameter block.
type Field struct {
	Name    string
	Kind    Kind
	Verbose string
}

// Label is the human-facing field name.
func (f Field) Label() string {
	if f.Verbose != "" {
		return f.Verbose
	}
	parts := strings.Split(f.Name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// Schema is the ordered field list of one interface type's parameter block.
// Field order is wire order.
type Schema struct {
	TypeID uint8
	Name   string
	fields []Field
	index  map[string]int
}

// New builds a schema, rejecting duplicate or empty names and unknown kinds.
func New(typeID uint8, name string, fields ...Field) (*Schema, error) {
	s := &Schema{
		TypeID: typeID,
		Name:   name,
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("schema %s: empty field name", name)
		}
		if f.Kind.Width() == 0 {
			return nil, fmt.Errorf("schema %s: field %q: %w", name, f.Name, ErrUnknownKind)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("schema %s: duplicate field %q", name, f.Name)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

func MustNew(typeID uint8, name string, fields ...Field) *Schema {
	s, err := New(typeID, name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns a copy of the ordered field list.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a descriptor by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Width is the encoded size of a full parameter block.
func (s *Schema) Width() int {
	n := 0
	for _, f := range s.fields {
		n += f.Kind.Width()
	}
	return n
}

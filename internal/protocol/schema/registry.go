package schema

// PotSchema is the parameter block of a rotary pot interface.
var PotSchema = MustNew(TypePot, "Pot",
	Field{Name: "control", Kind: KindU8},
	Field{Name: "high", Kind: KindU16, Verbose: "Analog High"},
	Field{Name: "low", Kind: KindU16, Verbose: "Analog Low"},
	Field{Name: "midi_high", Kind: KindU8, Verbose: "MIDI High"},
	Field{Name: "midi_low", Kind: KindU8, Verbose: "MIDI Low"},
	Field{Name: "threshold", Kind: KindU16},
	Field{Name: "invert", Kind: KindBool},
)

var registry = map[uint8]*Schema{
	TypePot: PotSchema,
}

// Lookup resolves the parameter schema for a device interface type.
// Types without a registered schema report false and stay inert.
func Lookup(typeID uint8) (*Schema, bool) {
	s, ok := registry[typeID]
	return s, ok
}

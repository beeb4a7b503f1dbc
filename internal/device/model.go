package device

import (
	"fmt"
	"sync"

	"github.com/danmuck/midikiti/internal/protocol"
	"github.com/danmuck/midikiti/internal/protocol/schema"
)

// Layout is the discovered tree of commanders for one device connection.
type Layout struct {
	commanders []*Commander
}

// NewLayout builds a layout from per-commander interface type lists.
func NewLayout(types [][]uint8) *Layout {
	l := &Layout{commanders: make([]*Commander, 0, len(types))}
	for c, ids := range types {
		l.commanders = append(l.commanders, newCommander(uint8(c), ids))
	}
	return l
}

// Empty reports whether discovery found no commanders.
func (l *Layout) Empty() bool {
	return l == nil || len(l.commanders) == 0
}

func (l *Layout) Commanders() []*Commander {
	if l == nil {
		return nil
	}
	out := make([]*Commander, len(l.commanders))
	copy(out, l.commanders)
	return out
}

func (l *Layout) Commander(c int) (*Commander, error) {
	if l == nil || c < 0 || c >= len(l.commanders) {
		return nil, fmt.Errorf("%w: commander=%d count=%d", protocol.ErrIndexOutOfRange, c, l.count())
	}
	return l.commanders[c], nil
}

// Interface resolves a commander/interface address.
func (l *Layout) Interface(c, i int) (*Interface, error) {
	cmd, err := l.Commander(c)
	if err != nil {
		return nil, err
	}
	return cmd.Interface(i)
}

// Interfaces walks every interface in commander then interface order.
func (l *Layout) Interfaces() []*Interface {
	var out []*Interface
	for _, c := range l.Commanders() {
		out = append(out, c.interfaces...)
	}
	return out
}

func (l *Layout) count() int {
	if l == nil {
		return 0
	}
	return len(l.commanders)
}

// Commander is a logical group of interfaces addressed by index.
type Commander struct {
	index      uint8
	interfaces []*Interface
}

func newCommander(index uint8, types []uint8) *Commander {
	c := &Commander{index: index, interfaces: make([]*Interface, 0, len(types))}
	for i, typeID := range types {
		c.interfaces = append(c.interfaces, newInterface(index, uint8(i), typeID))
	}
	return c
}

func (c *Commander) Index() uint8 {
	return c.index
}

func (c *Commander) Len() int {
	return len(c.interfaces)
}

func (c *Commander) Interfaces() []*Interface {
	out := make([]*Interface, len(c.interfaces))
	copy(out, c.interfaces)
	return out
}

func (c *Commander) Interface(i int) (*Interface, error) {
	if i < 0 || i >= len(c.interfaces) {
		return nil, fmt.Errorf("%w: commander=%d interface=%d count=%d",
			protocol.ErrIndexOutOfRange, c.index, i, len(c.interfaces))
	}
	return c.interfaces[i], nil
}

// Interface is one addressable control. Its schema is fixed at discovery;
// its values start empty and are replaced wholesale by each preference load.
type Interface struct {
	commander uint8
	index     uint8
	typeID    uint8
	schema    *schema.Schema

	mu      sync.RWMutex
	values  schema.Values
	version uint64
}

func newInterface(commander, index, typeID uint8) *Interface {
	s, _ := schema.Lookup(typeID)
	return &Interface{
		commander: commander,
		index:     index,
		typeID:    typeID,
		schema:    s,
	}
}

func (i *Interface) Commander() uint8 { return i.commander }
func (i *Interface) Index() uint8     { return i.index }
func (i *Interface) TypeID() uint8    { return i.typeID }

func (i *Interface) TypeName() string {
	return schema.TypeName(i.typeID)
}

// Schema returns nil for interface types with no registered parameter block.
func (i *Interface) Schema() *schema.Schema {
	return i.schema
}

func (i *Interface) HasValues() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.values != nil
}

// Values returns a copy of the current parameter values, or nil if none
// have been loaded.
func (i *Interface) Values() schema.Values {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.values.Clone()
}

// Version counts completed preference loads.
func (i *Interface) Version() uint64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.version
}

// Header is the [commander][interface] address used by preference requests.
func (i *Interface) Header() []byte {
	return []byte{i.commander, i.index}
}

// SetValue changes one field of the loaded values. The value must match
// the field's declared kind.
func (i *Interface) SetValue(name string, v schema.Value) error {
	if i.schema == nil {
		return ErrNoSchema
	}
	f, ok := i.schema.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", schema.ErrUnknownField, i.schema.Name, name)
	}
	if f.Kind != v.Kind {
		return fmt.Errorf("%w: %s.%s want=%s got=%s", schema.ErrKindMismatch, i.schema.Name, name, f.Kind, v.Kind)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.values == nil {
		return ErrNoValues
	}
	i.values[name] = v
	return nil
}

// ApplyPreferences decodes a raw parameter buffer and replaces the current
// values. On error the previous values are kept. Interfaces without a
// schema ignore the buffer.
func (i *Interface) ApplyPreferences(buf []byte) (bool, error) {
	if i.schema == nil {
		return false, nil
	}
	values, err := i.schema.Decode(buf)
	if err != nil {
		return false, err
	}
	i.mu.Lock()
	i.values = values
	i.version++
	i.mu.Unlock()
	return true, nil
}

// EncodedValues packs the current values per the interface schema.
// Returns nil with no error when the interface has no schema.
func (i *Interface) EncodedValues() ([]byte, error) {
	if i.schema == nil {
		return nil, nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.values == nil {
		return nil, ErrNoValues
	}
	return i.schema.Encode(i.values)
}

// SetPreferencesPayload builds the outbound SetPreferences payload
// [commander][interface][param_size][type_id][param_bytes...] for the
// current values. Returns nil with no error when the interface has no schema.
func (i *Interface) SetPreferencesPayload() ([]byte, error) {
	param, err := i.EncodedValues()
	if err != nil || param == nil {
		return nil, err
	}
	const header = 4
	if len(param)+header > protocol.MaxPayload {
		return nil, fmt.Errorf("%w: set_preferences len=%d", protocol.ErrPayloadTooLarge, len(param)+header)
	}
	out := make([]byte, 0, len(param)+header)
	out = append(out, i.commander, i.index, uint8(len(param)), i.typeID)
	return append(out, param...), nil
}

func (i *Interface) String() string {
	return fmt.Sprintf("%d.%d(%s)", i.commander, i.index, i.TypeName())
}

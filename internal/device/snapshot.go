package device

// LayoutSnapshot is a point-in-time JSON view of a layout.
type LayoutSnapshot struct {
	Commanders []CommanderSnapshot `json:"commanders"`
}

type CommanderSnapshot struct {
	Index      uint8               `json:"index"`
	Interfaces []InterfaceSnapshot `json:"interfaces"`
}

type InterfaceSnapshot struct {
	Commander uint8           `json:"commander"`
	Index     uint8           `json:"index"`
	TypeID    uint8           `json:"type_id"`
	TypeName  string          `json:"type_name"`
	Schema    string          `json:"schema,omitempty"`
	Loaded    bool            `json:"loaded"`
	Version   uint64          `json:"version"`
	Fields    []FieldSnapshot `json:"fields,omitempty"`
}

type FieldSnapshot struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

func (l *Layout) Snapshot() LayoutSnapshot {
	out := LayoutSnapshot{Commanders: make([]CommanderSnapshot, 0, l.count())}
	for _, c := range l.Commanders() {
		cs := CommanderSnapshot{Index: c.index, Interfaces: make([]InterfaceSnapshot, 0, len(c.interfaces))}
		for _, iface := range c.interfaces {
			cs.Interfaces = append(cs.Interfaces, iface.Snapshot())
		}
		out.Commanders = append(out.Commanders, cs)
	}
	return out
}

func (i *Interface) Snapshot() InterfaceSnapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	snap := InterfaceSnapshot{
		Commander: i.commander,
		Index:     i.index,
		TypeID:    i.typeID,
		TypeName:  i.TypeName(),
		Loaded:    i.values != nil,
		Version:   i.version,
	}
	if i.schema == nil {
		return snap
	}
	snap.Schema = i.schema.Name
	for _, f := range i.schema.Fields() {
		fs := FieldSnapshot{Name: f.Name, Label: f.Label(), Kind: f.Kind.String()}
		if v, ok := i.values[f.Name]; ok {
			fs.Value = v.Any()
		}
		snap.Fields = append(snap.Fields, fs)
	}
	return snap
}

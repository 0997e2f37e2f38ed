package dwarfbuilder

import "debug/dwarf"

// UnitID identifies a unit of a Dwarf.
type UnitID int

// EntryID identifies an entry inside its unit.
type EntryID int

// NoEntry is the parent of a unit's root entry.
const NoEntry EntryID = -1

// Dwarf is an arena of units waiting to be serialized.
type Dwarf struct {
	units []*Unit
}

// Unit owns its entries. Entry 0 is the root.
type Unit struct {
	Version  uint16
	AddrSize int
	entries  []Entry
}

// Entry is a debugging information entry of the output.
type Entry struct {
	Tag      dwarf.Tag
	Parent   EntryID
	Children []EntryID
	Attrs    []Attr
}

// Attr is an attribute of an output entry.
type Attr struct {
	Attr dwarf.Attr
	Val  AttrValue
}

// AddUnit adds a unit whose root entry has tag root.
func (d *Dwarf) AddUnit(version uint16, addrSize int, root dwarf.Tag) UnitID {
	u := &Unit{Version: version, AddrSize: addrSize}
	u.entries = append(u.entries, Entry{Tag: root, Parent: NoEntry})
	d.units = append(d.units, u)
	return UnitID(len(d.units) - 1)
}

// Unit returns unit id.
func (d *Dwarf) Unit(id UnitID) *Unit {
	return d.units[id]
}

// NumUnits returns the number of units.
func (d *Dwarf) NumUnits() int {
	return len(d.units)
}

// Root returns the root entry of u.
func (u *Unit) Root() EntryID {
	return 0
}

// Add appends a new child with tag to parent and returns it.
func (u *Unit) Add(parent EntryID, tag dwarf.Tag) EntryID {
	id := EntryID(len(u.entries))
	u.entries = append(u.entries, Entry{Tag: tag, Parent: parent})
	p := &u.entries[parent]
	p.Children = append(p.Children, id)
	return id
}

// Entry returns entry id. The pointer is invalidated by Add.
func (u *Unit) Entry(id EntryID) *Entry {
	return &u.entries[id]
}

// NumEntries returns the number of entries of u.
func (u *Unit) NumEntries() int {
	return len(u.entries)
}

// Has reports whether id is an entry of u.
func (u *Unit) Has(id EntryID) bool {
	return id >= 0 && int(id) < len(u.entries)
}

// Set appends attribute a with value v to e.
func (e *Entry) Set(a dwarf.Attr, v AttrValue) {
	e.Attrs = append(e.Attrs, Attr{Attr: a, Val: v})
}

// Val returns the value of attribute a, nil if e doesn't have it.
func (e *Entry) Val(a dwarf.Attr) AttrValue {
	for i := range e.Attrs {
		if e.Attrs[i].Attr == a {
			return e.Attrs[i].Val
		}
	}
	return nil
}

package dwarfbuilder

import (
	"bytes"
	"debug/dwarf"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/a2lobf/a2lobf/pkg/dwarf/godwarf"
	"github.com/a2lobf/a2lobf/pkg/dwarf/util"
)

// ErrDanglingRef is returned by Write when a reference attribute names an
// entry that does not exist.
var ErrDanglingRef = errors.New("reference to unknown entry")

type tagDescr struct {
	tag dwarf.Tag

	attr     []dwarf.Attr
	form     []godwarf.Form
	children bool
}

// key encodes descr the way it appears in .debug_abbrev, minus the code.
func (descr *tagDescr) key() string {
	var buf bytes.Buffer
	util.EncodeULEB128(&buf, uint64(descr.tag))
	if descr.children {
		buf.WriteByte(0x01)
	} else {
		buf.WriteByte(0x00)
	}
	for j := range descr.attr {
		util.EncodeULEB128(&buf, uint64(descr.attr[j]))
		util.EncodeULEB128(&buf, uint64(descr.form[j]))
	}
	util.EncodeULEB128(&buf, 0)
	util.EncodeULEB128(&buf, 0)
	return buf.String()
}

type abbrevTable struct {
	codes map[string]uint64
	keys  []string
}

func (t *abbrevTable) code(descr *tagDescr) uint64 {
	k := descr.key()
	if c, ok := t.codes[k]; ok {
		return c
	}
	t.keys = append(t.keys, k)
	c := uint64(len(t.keys))
	t.codes[k] = c
	return c
}

func (t *abbrevTable) bytes() []byte {
	var abbrev bytes.Buffer
	for i, k := range t.keys {
		util.EncodeULEB128(&abbrev, uint64(i+1))
		abbrev.WriteString(k)
	}
	abbrev.WriteByte(0)
	return abbrev.Bytes()
}

// layout is the position of every entry in the output section.
type layout struct {
	unitOff []uint64
	off     [][]uint64 // section offset of each entry, by unit
	abbrev  [][]uint64 // abbrev code of each entry, by unit
}

// Write serializes d as a .debug_info section and the .debug_abbrev
// section it uses. Units are written in 32-bit DWARF format with their own
// version and address size; strings are written inline.
func (d *Dwarf) Write(order binary.ByteOrder) (info, abbrev []byte, err error) {
	tab := &abbrevTable{codes: make(map[string]uint64)}
	l := &layout{
		unitOff: make([]uint64, len(d.units)),
		off:     make([][]uint64, len(d.units)),
		abbrev:  make([][]uint64, len(d.units)),
	}

	// First pass: assign abbrevs and offsets.
	var off uint64
	for ui, u := range d.units {
		l.unitOff[ui] = off
		l.off[ui] = make([]uint64, len(u.entries))
		l.abbrev[ui] = make([]uint64, len(u.entries))
		off += uint64(headerSize(u.Version))
		var walk func(id EntryID) error
		walk = func(id EntryID) error {
			e := &u.entries[id]
			descr, err := u.describe(e)
			if err != nil {
				return fmt.Errorf("unit %d entry %d: %w", ui, id, err)
			}
			code := tab.code(descr)
			l.off[ui][id] = off
			l.abbrev[ui][id] = code
			off += uint64(util.SizeULEB128(code))
			for i := range e.Attrs {
				off += uint64(u.valueSize(descr.form[i], e.Attrs[i].Val))
			}
			for _, c := range e.Children {
				if err := walk(c); err != nil {
					return err
				}
			}
			if len(e.Children) > 0 {
				off++
			}
			return nil
		}
		if err := walk(u.Root()); err != nil {
			return nil, nil, err
		}
		if off-l.unitOff[ui] > 0xfffffff0 || off > 0xffffffff {
			return nil, nil, fmt.Errorf("unit %d does not fit 32-bit DWARF", ui)
		}
	}

	// Second pass: emit.
	out := &bytes.Buffer{}
	out.Grow(int(off))
	for ui, u := range d.units {
		start := l.unitOff[ui]
		end := off
		if ui+1 < len(l.unitOff) {
			end = l.unitOff[ui+1]
		}
		util.WriteUint(out, order, 4, end-start-4)
		util.WriteUint(out, order, 2, uint64(u.Version))
		if u.Version >= 5 {
			ut := uint64(godwarf.UnitTypeCompile)
			if u.entries[0].Tag == dwarf.TagPartialUnit {
				ut = godwarf.UnitTypePartial
			}
			out.WriteByte(byte(ut))
			out.WriteByte(byte(u.AddrSize))
			util.WriteUint(out, order, 4, 0)
		} else {
			util.WriteUint(out, order, 4, 0)
			out.WriteByte(byte(u.AddrSize))
		}
		var walk func(id EntryID) error
		walk = func(id EntryID) error {
			e := &u.entries[id]
			if uint64(out.Len()) != l.off[ui][id] {
				return fmt.Errorf("unit %d entry %d: layout mismatch at %#x", ui, id, out.Len())
			}
			util.EncodeULEB128(out, l.abbrev[ui][id])
			for i := range e.Attrs {
				if err := d.writeValue(out, order, l, UnitID(ui), e.Attrs[i].Val); err != nil {
					return fmt.Errorf("unit %d entry %d attribute %v: %w", ui, id, e.Attrs[i].Attr, err)
				}
			}
			for _, c := range e.Children {
				if err := walk(c); err != nil {
					return err
				}
			}
			if len(e.Children) > 0 {
				out.WriteByte(0)
			}
			return nil
		}
		if err := walk(u.Root()); err != nil {
			return nil, nil, err
		}
	}
	return out.Bytes(), tab.bytes(), nil
}

func headerSize(version uint16) int {
	if version >= 5 {
		return 4 + 2 + 1 + 1 + 4
	}
	return 4 + 2 + 4 + 1
}

func (u *Unit) describe(e *Entry) (*tagDescr, error) {
	descr := &tagDescr{tag: e.Tag, children: len(e.Children) > 0}
	for _, a := range e.Attrs {
		var form godwarf.Form
		switch v := a.Val.(type) {
		case Address:
			form = godwarf.FormAddr
		case Block:
			form = godwarf.FormBlock
		case Data1:
			form = godwarf.FormData1
		case Data2:
			form = godwarf.FormData2
		case Data4:
			form = godwarf.FormData4
		case Data8:
			form = godwarf.FormData8
		case Data16:
			form = godwarf.FormData16
		case Sdata:
			form = godwarf.FormSdata
		case Udata:
			form = godwarf.FormUdata
		case Exprloc:
			form = godwarf.FormExprloc
			if u.Version < 4 {
				form = godwarf.FormBlock
			}
		case Flag:
			form = godwarf.FormFlag
			if v && u.Version >= 4 {
				form = godwarf.FormFlagPresent
			}
		case String:
			form = godwarf.FormString
		case UnitRef:
			form = godwarf.FormRef4
		case DebugInfoRef:
			form = godwarf.FormRefAddr
		default:
			return nil, fmt.Errorf("attribute %v: unknown value type %T", a.Attr, a.Val)
		}
		descr.attr = append(descr.attr, a.Attr)
		descr.form = append(descr.form, form)
	}
	return descr, nil
}

func (u *Unit) valueSize(form godwarf.Form, val AttrValue) int {
	switch v := val.(type) {
	case Address:
		return u.AddrSize
	case Block:
		return util.SizeULEB128(uint64(len(v))) + len(v)
	case Exprloc:
		return util.SizeULEB128(uint64(len(v))) + len(v)
	case Data1:
		return 1
	case Data2:
		return 2
	case Data4:
		return 4
	case Data8:
		return 8
	case Data16:
		return 16
	case Sdata:
		return util.SizeSLEB128(int64(v))
	case Udata:
		return util.SizeULEB128(uint64(v))
	case Flag:
		if form == godwarf.FormFlagPresent {
			return 0
		}
		return 1
	case String:
		return len(v) + 1
	case UnitRef:
		return 4
	case DebugInfoRef:
		if u.Version == 2 {
			return u.AddrSize
		}
		return 4
	}
	return 0
}

func (d *Dwarf) writeValue(out *bytes.Buffer, order binary.ByteOrder, l *layout, ui UnitID, val AttrValue) error {
	u := d.units[ui]
	switch v := val.(type) {
	case Address:
		return util.WriteUint(out, order, u.AddrSize, uint64(v))
	case Block:
		util.EncodeULEB128(out, uint64(len(v)))
		out.Write(v)
	case Exprloc:
		util.EncodeULEB128(out, uint64(len(v)))
		out.Write(v)
	case Data1:
		out.WriteByte(byte(v))
	case Data2:
		return util.WriteUint(out, order, 2, uint64(v))
	case Data4:
		return util.WriteUint(out, order, 4, uint64(v))
	case Data8:
		return util.WriteUint(out, order, 8, uint64(v))
	case Data16:
		out.Write(v[:])
	case Sdata:
		util.EncodeSLEB128(out, int64(v))
	case Udata:
		util.EncodeULEB128(out, uint64(v))
	case Flag:
		if v && u.Version >= 4 {
			return nil
		}
		if v {
			out.WriteByte(1)
		} else {
			out.WriteByte(0)
		}
	case String:
		out.WriteString(string(v))
		out.WriteByte(0)
	case UnitRef:
		if !u.Has(v.Entry) {
			return fmt.Errorf("%w: entry %d", ErrDanglingRef, v.Entry)
		}
		return util.WriteUint(out, order, 4, l.off[ui][v.Entry]-l.unitOff[ui])
	case DebugInfoRef:
		if int(v.Unit) < 0 || int(v.Unit) >= len(d.units) || !d.units[v.Unit].Has(v.Entry) {
			return fmt.Errorf("%w: unit %d entry %d", ErrDanglingRef, v.Unit, v.Entry)
		}
		size := 4
		if u.Version == 2 {
			size = u.AddrSize
		}
		return util.WriteUint(out, order, size, l.off[v.Unit][v.Entry])
	}
	return nil
}

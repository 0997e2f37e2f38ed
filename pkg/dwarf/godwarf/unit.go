package godwarf

import (
	"debug/dwarf"
	"errors"
	"fmt"

	"github.com/a2lobf/a2lobf/pkg/dwarf/util"
)

// Unit types, DWARF v5 section 7.5.1.
const (
	UnitTypeCompile      = 0x01
	UnitTypeType         = 0x02
	UnitTypePartial      = 0x03
	UnitTypeSkeleton     = 0x04
	UnitTypeSplitCompile = 0x05
	UnitTypeSplitType    = 0x06
)

// Unit is the header of a unit of the .debug_info section.
type Unit struct {
	Offset       uint64 // section offset of the unit header
	Length       uint64 // length of the unit, excluding the initial length field
	Dwarf64      bool
	Version      uint16
	UnitType     uint8
	AbbrevOffset uint64
	AddrSize     int

	Signature  uint64 // type units only
	TypeOffset uint64 // type units only
	DWOID      uint64 // skeleton and split units only

	entriesOff uint64 // section offset of the first entry
	data       []byte // entries of the unit
	abbrevs    AbbrevTable
	secs       *Sections
}

// OffsetSize returns the size of a section offset in this unit.
func (u *Unit) OffsetSize() int {
	if u.Dwarf64 {
		return 8
	}
	return 4
}

// End returns the section offset one past the last byte of the unit.
func (u *Unit) End() uint64 {
	return u.entriesOff + uint64(len(u.data))
}

// ParseUnits reads every unit header of secs.Info and the abbreviation
// tables they use.
func ParseUnits(secs *Sections) ([]*Unit, error) {
	var units []*Unit
	abbrevCache := make(map[uint64]AbbrevTable)
	b := util.MakeBuf(secs.Order, "info", 0, secs.Info)
	for b.Len() > 0 {
		u := &Unit{Offset: b.Off(), secs: secs}
		u.Length = uint64(b.Uint32())
		if u.Length == 0xffffffff {
			u.Dwarf64 = true
			u.Length = b.Uint64()
		} else if u.Length >= 0xfffffff0 {
			return nil, fmt.Errorf("unit at %#x: reserved initial length %#x", u.Offset, u.Length)
		}
		if b.Err != nil {
			return nil, b.Err
		}
		if u.Length > uint64(b.Len()) {
			return nil, fmt.Errorf("unit at %#x: length %#x exceeds section", u.Offset, u.Length)
		}
		hb := b.Slice(int(u.Length))
		u.Version = hb.Uint16()
		if u.Version < 2 || u.Version > 5 {
			return nil, fmt.Errorf("unit at %#x: unsupported DWARF version %d", u.Offset, u.Version)
		}
		if u.Version >= 5 {
			u.UnitType = hb.Uint8()
			u.AddrSize = int(hb.Uint8())
			u.AbbrevOffset = hb.Offset(u.Dwarf64)
			switch u.UnitType {
			case UnitTypeType, UnitTypeSplitType:
				u.Signature = hb.Uint64()
				u.TypeOffset = hb.Offset(u.Dwarf64)
			case UnitTypeSkeleton, UnitTypeSplitCompile:
				u.DWOID = hb.Uint64()
			}
		} else {
			u.UnitType = UnitTypeCompile
			u.AbbrevOffset = hb.Offset(u.Dwarf64)
			u.AddrSize = int(hb.Uint8())
		}
		if hb.Err != nil {
			return nil, hb.Err
		}
		switch u.AddrSize {
		case 1, 2, 4, 8:
		default:
			return nil, fmt.Errorf("unit at %#x: unsupported address size %d", u.Offset, u.AddrSize)
		}
		u.entriesOff = hb.Off()
		u.data = hb.Bytes(hb.Len())

		tab, ok := abbrevCache[u.AbbrevOffset]
		if !ok {
			var err error
			tab, err = ParseAbbrev(secs.Abbrev, u.AbbrevOffset)
			if err != nil {
				return nil, fmt.Errorf("unit at %#x: %w", u.Offset, err)
			}
			abbrevCache[u.AbbrevOffset] = tab
		}
		u.abbrevs = tab
		units = append(units, u)
	}
	return units, nil
}

// Attr is an attribute of an entry.
type Attr struct {
	Attr dwarf.Attr
	Form Form
	Val  AttrValue
}

// Entry is a debugging information entry.
type Entry struct {
	Offset     uint64 // section offset
	UnitOffset uint64 // offset relative to the start of the unit header
	Tag        dwarf.Tag
	Children   bool
	Attrs      []Attr
}

// Val returns the value of attribute a, nil if the entry doesn't have it.
func (e *Entry) Val(a dwarf.Attr) AttrValue {
	for i := range e.Attrs {
		if e.Attrs[i].Attr == a {
			return e.Attrs[i].Val
		}
	}
	return nil
}

// ErrNotEntry is returned when an abbreviation code has no abbreviation.
var ErrNotEntry = errors.New("unknown abbreviation code")

// EntriesCursor iterates the entries of a unit in depth first order.
type EntriesCursor struct {
	u       *Unit
	b       util.Buf
	started bool
	// delta accumulated since the previously returned entry
	delta int
	// the previously returned entry has children
	children bool
}

// Entries returns a cursor positioned before the first entry of u.
func (u *Unit) Entries() *EntriesCursor {
	return &EntriesCursor{u: u, b: util.MakeBuf(u.secs.Order, "info", u.entriesOff, u.data)}
}

// NextDFS returns the next entry in depth first order and the difference
// between its depth and the depth of the previously returned entry. The
// first entry is returned with a delta of zero. Null entries closing
// sibling lists are consumed and only show up in the delta. After the last
// entry NextDFS returns a nil entry and a nil error.
func (c *EntriesCursor) NextDFS() (int, *Entry, error) {
	delta := 0
	if c.started && c.children {
		delta = 1
	}
	for {
		if c.b.Len() == 0 {
			return 0, nil, nil
		}
		off := c.b.Off()
		code := c.b.Uint()
		if c.b.Err != nil {
			return 0, nil, c.b.Err
		}
		if code == 0 {
			delta--
			continue
		}
		a, ok := c.u.abbrevs[code]
		if !ok {
			return 0, nil, fmt.Errorf("entry at %#x: code %d: %w", off, code, ErrNotEntry)
		}
		e := &Entry{
			Offset:     off,
			UnitOffset: off - c.u.Offset,
			Tag:        a.Tag,
			Children:   a.Children,
			Attrs:      make([]Attr, 0, len(a.Fields)),
		}
		for _, f := range a.Fields {
			form, v, err := c.value(f)
			if err != nil {
				return 0, nil, fmt.Errorf("entry at %#x: attribute %v: %w", off, f.Attr, err)
			}
			e.Attrs = append(e.Attrs, Attr{Attr: f.Attr, Form: form, Val: classify(c.u.Version, f.Attr, v)})
		}
		if !c.started {
			delta = 0
		}
		c.started = true
		c.children = a.Children
		return delta, e, nil
	}
}

func (c *EntriesCursor) value(f AttrSpec) (Form, AttrValue, error) {
	b := &c.b
	u := c.u
	form := f.Form
	for form == FormIndirect {
		form = Form(b.Uint())
	}
	var v AttrValue
	switch form {
	case FormAddr:
		v = Addr(b.UintN(u.AddrSize))
	case FormBlock1:
		v = Block(b.Bytes(int(b.Uint8())))
	case FormBlock2:
		v = Block(b.Bytes(int(b.Uint16())))
	case FormBlock4:
		v = Block(b.Bytes(int(b.Uint32())))
	case FormBlock:
		v = Block(b.Bytes(int(b.Uint())))
	case FormExprloc:
		v = Exprloc(b.Bytes(int(b.Uint())))
	case FormData1:
		v = Data1(b.Uint8())
	case FormData2:
		v = Data2(b.Uint16())
	case FormData4:
		v = Data4(b.Uint32())
	case FormData8:
		v = Data8(b.Uint64())
	case FormData16:
		var d Data16
		copy(d[:], b.Bytes(16))
		v = d
	case FormSdata:
		v = Sdata(b.Int())
	case FormUdata:
		v = Udata(b.Uint())
	case FormImplicitConst:
		v = Sdata(f.Implicit)
	case FormFlag:
		v = Flag(b.Uint8() != 0)
	case FormFlagPresent:
		v = Flag(true)
	case FormString:
		v = String(b.String())
	case FormStrp:
		v = DebugStrRef(b.Offset(u.Dwarf64))
	case FormLineStrp:
		v = DebugLineStrRef(b.Offset(u.Dwarf64))
	case FormRef1:
		v = UnitRef(b.Uint8())
	case FormRef2:
		v = UnitRef(b.Uint16())
	case FormRef4:
		v = UnitRef(b.Uint32())
	case FormRef8:
		v = UnitRef(b.Uint64())
	case FormRefUdata:
		v = UnitRef(b.Uint())
	case FormRefAddr:
		if u.Version == 2 {
			v = DebugInfoRef(b.UintN(u.AddrSize))
		} else {
			v = DebugInfoRef(b.Offset(u.Dwarf64))
		}
	case FormSecOffset:
		v = SecOffset(b.Offset(u.Dwarf64))
	case FormStrx, FormGNUStrIndex:
		v = DebugStrOffsetsIndex(b.Uint())
	case FormStrx1:
		v = DebugStrOffsetsIndex(b.Uint8())
	case FormStrx2:
		v = DebugStrOffsetsIndex(b.Uint16())
	case FormStrx3:
		v = DebugStrOffsetsIndex(b.Uint24())
	case FormStrx4:
		v = DebugStrOffsetsIndex(b.Uint32())
	case FormAddrx, FormGNUAddrIndex:
		v = DebugAddrIndex(b.Uint())
	case FormAddrx1:
		v = DebugAddrIndex(b.Uint8())
	case FormAddrx2:
		v = DebugAddrIndex(b.Uint16())
	case FormAddrx3:
		v = DebugAddrIndex(b.Uint24())
	case FormAddrx4:
		v = DebugAddrIndex(b.Uint32())
	case FormLoclistx:
		v = DebugLocListsIndex(b.Uint())
	case FormRnglistx:
		v = DebugRngListsIndex(b.Uint())
	case FormRefSup4:
		v = DebugInfoRefSup(b.Uint32())
	case FormRefSup8:
		v = DebugInfoRefSup(b.Uint64())
	case FormGNURefAlt:
		v = DebugInfoRefSup(b.Offset(u.Dwarf64))
	case FormStrpSup, FormGNUStrpAlt:
		v = DebugStrRefSup(b.Offset(u.Dwarf64))
	case FormRefSig8:
		v = DebugTypesRef(b.Uint64())
	default:
		return form, nil, fmt.Errorf("unknown form %v", form)
	}
	if b.Err != nil {
		return form, nil, b.Err
	}
	return form, v, nil
}

// classify reinterprets constant and block values of attributes whose
// class was encoded by form before DWARF 4: data4 and data8 were section
// offsets and blocks were location expressions.
func classify(version uint16, attr dwarf.Attr, v AttrValue) AttrValue {
	if version >= 4 {
		return v
	}
	switch v := v.(type) {
	case Data4:
		if secOffsetClass(attr) {
			return SecOffset(v)
		}
	case Data8:
		if secOffsetClass(attr) {
			return SecOffset(v)
		}
	case Block:
		if exprlocClass(attr) {
			return Exprloc(v)
		}
	}
	return v
}

func secOffsetClass(attr dwarf.Attr) bool {
	switch attr {
	case dwarf.AttrLocation, dwarf.AttrStmtList, dwarf.AttrRanges, dwarf.AttrFrameBase,
		dwarf.AttrStringLength, dwarf.AttrReturnAddr, dwarf.AttrDataMemberLoc,
		dwarf.AttrMacroInfo, dwarf.AttrSegment, dwarf.AttrStaticLink,
		dwarf.AttrUseLocation, dwarf.AttrVtableElemLoc:
		return true
	}
	return false
}

func exprlocClass(attr dwarf.Attr) bool {
	switch attr {
	case dwarf.AttrLocation, dwarf.AttrDataMemberLoc, dwarf.AttrFrameBase,
		dwarf.AttrStringLength, dwarf.AttrReturnAddr, dwarf.AttrSegment,
		dwarf.AttrStaticLink, dwarf.AttrUseLocation, dwarf.AttrVtableElemLoc,
		dwarf.AttrCount, dwarf.AttrLowerBound, dwarf.AttrUpperBound,
		dwarf.AttrByteSize, dwarf.AttrBitSize:
		return true
	}
	return false
}

// Package dwarfbuilder provides a way to build DWARF sections with
// arbitrary contents.
//
// Dwarf is an arena of entries addressed by handles, serialized by Write.
// Builder writes entries in order with caller chosen forms and is used to
// produce inputs in every encoding a compiler may emit.
package dwarfbuilder

import (
	"bytes"
	"debug/dwarf"
	"encoding/binary"
	"fmt"

	"github.com/a2lobf/a2lobf/pkg/dwarf/godwarf"
	"github.com/a2lobf/a2lobf/pkg/dwarf/util"
)

// Builder dwarf builder
type Builder struct {
	order    binary.ByteOrder
	info     bytes.Buffer
	str      bytes.Buffer
	abbrevs  []tagDescr
	tagStack []*tagState
	unit     *unitState
}

type unitState struct {
	off      int
	version  uint16
	addrSize int
	dwarf64  bool
}

// New creates a new DWARF builder.
func New(order binary.ByteOrder) *Builder {
	return &Builder{order: order}
}

// UnitOpen starts a new compile unit header, call UnitClose after closing
// all its entries.
func (b *Builder) UnitOpen(version uint16, addrSize int, dwarf64 bool) dwarf.Offset {
	if b.unit != nil {
		panic("UnitOpen with an open unit")
	}
	u := &unitState{off: b.info.Len(), version: version, addrSize: addrSize, dwarf64: dwarf64}
	b.unit = u
	if dwarf64 {
		b.uint(4, 0xffffffff)
	}
	b.uint(u.offsetSize(), 0) // length
	b.uint(2, uint64(version))
	if version >= 5 {
		b.info.WriteByte(godwarf.UnitTypeCompile)
		b.info.WriteByte(byte(addrSize))
		b.uint(u.offsetSize(), 0) // debug_abbrev_offset
	} else {
		b.uint(u.offsetSize(), 0) // debug_abbrev_offset
		b.info.WriteByte(byte(addrSize))
	}
	return dwarf.Offset(u.off)
}

// UnitClose closes the current unit.
func (b *Builder) UnitClose() {
	if b.unit == nil {
		panic("UnitClose with no open unit")
	}
	u := b.unit
	lenOff := u.off
	if u.dwarf64 {
		lenOff += 4
	}
	length := uint64(b.info.Len() - lenOff - u.offsetSize())
	var tmp bytes.Buffer
	util.WriteUint(&tmp, b.order, u.offsetSize(), length)
	copy(b.info.Bytes()[lenOff:], tmp.Bytes())
	b.unit = nil
}

func (u *unitState) offsetSize() int {
	if u.dwarf64 {
		return 8
	}
	return 4
}

// Build returns the .debug_info, .debug_abbrev and .debug_str sections.
func (b *Builder) Build() (info, abbrev, str []byte, err error) {
	if len(b.tagStack) > 0 {
		err = fmt.Errorf("unbalanced TagOpen/TagClose %d", len(b.tagStack))
		return
	}
	if b.unit != nil {
		err = fmt.Errorf("unit at %#x not closed", b.unit.off)
		return
	}

	abbrev = b.makeAbbrevTable()
	info = b.info.Bytes()
	str = b.str.Bytes()
	return
}

func (b *Builder) uint(size int, v uint64) {
	util.WriteUint(&b.info, b.order, size, v)
}

func (b *Builder) makeAbbrevTable() []byte {
	var abbrev bytes.Buffer

	for i := range b.abbrevs {
		util.EncodeULEB128(&abbrev, uint64(i+1))
		abbrev.WriteString(b.abbrevs[i].key())
	}
	abbrev.WriteByte(0)

	return abbrev.Bytes()
}

// abbrevFor returns an abbrev for the given entry description. If no abbrev
// for tag already exist a new one is created.
func (b *Builder) abbrevFor(tag tagDescr) byte {
	k := tag.key()
	for abbrev := range b.abbrevs {
		if b.abbrevs[abbrev].key() == k {
			return byte(abbrev + 1)
		}
	}

	b.abbrevs = append(b.abbrevs, tag)
	if len(b.abbrevs) > 0x7f {
		panic("too many abbrevs")
	}
	return byte(len(b.abbrevs))
}

// AddSubprogram adds a subprogram declaration to debug_info, must call
// TagClose after adding all local variables and parameters.
// Will write an abbrev corresponding to a DW_TAG_subprogram, followed by a
// DW_AT_lowpc and a DW_AT_highpc.
func (b *Builder) AddSubprogram(fnname string, lowpc, highpc uint64) dwarf.Offset {
	r := b.TagOpen(dwarf.TagSubprogram, fnname)
	b.Attr(dwarf.AttrLowpc, Address(lowpc))
	b.Attr(dwarf.AttrHighpc, Address(highpc))
	return r
}

// AddVariable adds a new variable entry to debug_info.
// Will write a DW_TAG_variable, followed by a DW_AT_type and a
// DW_AT_location.
func (b *Builder) AddVariable(varname string, typ dwarf.Offset, loc interface{}) dwarf.Offset {
	r := b.TagOpen(dwarf.TagVariable, varname)
	b.Attr(dwarf.AttrType, Ref(typ))
	b.Attr(dwarf.AttrLocation, loc)
	b.TagClose()
	return r
}

// AddBaseType adds a new base type entry to debug_info.
// Will write a DW_TAG_base_type, followed by a DW_AT_encoding and a
// DW_AT_byte_size.
func (b *Builder) AddBaseType(typename string, encoding Encoding, byteSz uint16) dwarf.Offset {
	r := b.TagOpen(dwarf.TagBaseType, typename)
	b.Attr(dwarf.AttrEncoding, uint8(encoding))
	b.Attr(dwarf.AttrByteSize, byteSz)
	b.TagClose()
	return r
}

// AddStructType adds a new structure type to debug_info. Call TagClose to
// finish adding fields.
// Will write a DW_TAG_structure_type, followed by a DW_AT_byte_size.
func (b *Builder) AddStructType(typename string, byteSz uint16) dwarf.Offset {
	r := b.TagOpen(dwarf.TagStructType, typename)
	b.Attr(dwarf.AttrByteSize, byteSz)
	return r
}

// AddMember adds a new member entry to debug_info.
// Writes a DW_TAG_member followed by DW_AT_type and DW_AT_data_member_location.
func (b *Builder) AddMember(fieldname string, typ dwarf.Offset, memberLoc interface{}) dwarf.Offset {
	r := b.TagOpen(dwarf.TagMember, fieldname)
	b.Attr(dwarf.AttrType, Ref(typ))
	b.Attr(dwarf.AttrDataMemberLoc, memberLoc)
	b.TagClose()
	return r
}

// AddPointerType adds a new pointer type to debug_info.
func (b *Builder) AddPointerType(typename string, typ dwarf.Offset) dwarf.Offset {
	r := b.TagOpen(dwarf.TagPointerType, typename)
	b.Attr(dwarf.AttrType, Ref(typ))
	b.Attr(dwarf.AttrByteSize, uint8(b.unit.addrSize))
	b.TagClose()
	return r
}

// AddTypedef adds a new typedef to debug_info.
func (b *Builder) AddTypedef(typename string, typ dwarf.Offset) dwarf.Offset {
	r := b.TagOpen(dwarf.TagTypedef, typename)
	b.Attr(dwarf.AttrType, Ref(typ))
	b.TagClose()
	return r
}

package dwarfbuilder

import (
	"debug/dwarf"
	"encoding/binary"

	"github.com/a2lobf/a2lobf/pkg/dwarf/godwarf"
	"github.com/a2lobf/a2lobf/pkg/dwarf/util"
)

// Encoding represents a DWARF base type encoding (see section 7.8, page 168
// and following, DWARF v4).
type Encoding uint16

const (
	DW_ATE_address         Encoding = 0x01
	DW_ATE_boolean         Encoding = 0x02
	DW_ATE_complex_float   Encoding = 0x03
	DW_ATE_float           Encoding = 0x04
	DW_ATE_signed          Encoding = 0x05
	DW_ATE_signed_char     Encoding = 0x06
	DW_ATE_unsigned        Encoding = 0x07
	DW_ATE_unsigned_char   Encoding = 0x08
	DW_ATE_imaginary_float Encoding = 0x09
	DW_ATE_packed_decimal  Encoding = 0x0a
	DW_ATE_numeric_string  Encoding = 0x0b
	DW_ATE_edited          Encoding = 0x0c
	DW_ATE_signed_fixed    Encoding = 0x0d
	DW_ATE_unsigned_fixed  Encoding = 0x0e
	DW_ATE_decimal_float   Encoding = 0x0f
	DW_ATE_UTF             Encoding = 0x10
	DW_ATE_lo_user         Encoding = 0x80
	DW_ATE_hi_user         Encoding = 0xff
)

// Ref is the section offset of an entry of the current unit, written as a
// unit relative DW_FORM_ref4.
type Ref dwarf.Offset

// Strp is a string written to .debug_str and referenced with DW_FORM_strp.
type Strp string

// FormValue is a value written with an explicit form. Only forms encoded
// as a fixed size integer or a LEB128 number are supported.
type FormValue struct {
	Form godwarf.Form
	Val  uint64
}

type tagState struct {
	off dwarf.Offset
	tagDescr
}

// TagOpen starts a new DIE, call TagClose after adding all attributes and
// children elements. An empty name adds no DW_AT_name.
func (b *Builder) TagOpen(tag dwarf.Tag, name string) dwarf.Offset {
	if b.unit == nil {
		panic("TagOpen with no open unit")
	}
	if len(b.tagStack) > 0 {
		b.tagStack[len(b.tagStack)-1].children = true
	}
	ts := &tagState{off: dwarf.Offset(b.info.Len())}
	ts.tag = tag
	b.info.WriteByte(0)
	b.tagStack = append(b.tagStack, ts)
	if name != "" {
		b.Attr(dwarf.AttrName, name)
	}

	return ts.off
}

// SetHasChildren sets the current DIE as having children (even if none are added).
func (b *Builder) SetHasChildren() {
	if len(b.tagStack) <= 0 {
		panic("NoChildren with no open tags")
	}
	b.tagStack[len(b.tagStack)-1].children = true
}

// TagClose closes the current DIE.
func (b *Builder) TagClose() {
	if len(b.tagStack) <= 0 {
		panic("TagClose with no open tags")
	}
	tag := b.tagStack[len(b.tagStack)-1]
	abbrev := b.abbrevFor(tag.tagDescr)
	b.info.Bytes()[tag.off] = abbrev
	if tag.children {
		b.info.WriteByte(0)
	}
	b.tagStack = b.tagStack[:len(b.tagStack)-1]
}

// Attr adds an attribute to the current DIE.
func (b *Builder) Attr(attr dwarf.Attr, val interface{}) {
	if len(b.tagStack) <= 0 {
		panic("Attr with no open tags")
	}
	tag := b.tagStack[len(b.tagStack)-1]
	if tag.children {
		panic("Can't add attributes after adding children")
	}

	tag.attr = append(tag.attr, attr)
	u := b.unit

	switch x := val.(type) {
	case string:
		tag.form = append(tag.form, godwarf.FormString)
		b.info.Write([]byte(x))
		b.info.WriteByte(0)
	case Strp:
		tag.form = append(tag.form, godwarf.FormStrp)
		b.uint(u.offsetSize(), uint64(b.str.Len()))
		b.str.WriteString(string(x))
		b.str.WriteByte(0)
	case uint8:
		tag.form = append(tag.form, godwarf.FormData1)
		b.info.WriteByte(x)
	case uint16:
		tag.form = append(tag.form, godwarf.FormData2)
		b.uint(2, uint64(x))
	case uint32:
		tag.form = append(tag.form, godwarf.FormData4)
		b.uint(4, uint64(x))
	case uint64:
		tag.form = append(tag.form, godwarf.FormData8)
		b.uint(8, x)
	case int64:
		tag.form = append(tag.form, godwarf.FormSdata)
		util.EncodeSLEB128(&b.info, x)
	case bool:
		tag.form = append(tag.form, godwarf.FormFlag)
		if x {
			b.info.WriteByte(1)
		} else {
			b.info.WriteByte(0)
		}
	case Address:
		tag.form = append(tag.form, godwarf.FormAddr)
		b.uint(u.addrSize, uint64(x))
	case dwarf.Offset:
		tag.form = append(tag.form, godwarf.FormRefAddr)
		if u.version == 2 {
			b.uint(u.addrSize, uint64(x))
		} else {
			b.uint(u.offsetSize(), uint64(x))
		}
	case Ref:
		tag.form = append(tag.form, godwarf.FormRef4)
		b.uint(4, uint64(x)-uint64(u.off))
	case []byte:
		tag.form = append(tag.form, godwarf.FormBlock4)
		b.uint(4, uint64(len(x)))
		b.info.Write(x)
	case Exprloc:
		tag.form = append(tag.form, godwarf.FormExprloc)
		util.EncodeULEB128(&b.info, uint64(len(x)))
		b.info.Write(x)
	case FormValue:
		tag.form = append(tag.form, x.Form)
		b.formValue(x)
	default:
		panic("unknown value type")
	}
}

func (b *Builder) formValue(x FormValue) {
	switch x.Form {
	case godwarf.FormData1, godwarf.FormRef1, godwarf.FormStrx1, godwarf.FormAddrx1, godwarf.FormFlag:
		b.uint(1, x.Val)
	case godwarf.FormData2, godwarf.FormRef2, godwarf.FormStrx2, godwarf.FormAddrx2:
		b.uint(2, x.Val)
	case godwarf.FormStrx3, godwarf.FormAddrx3:
		var tmp [4]byte
		if b.order == binary.BigEndian {
			binary.BigEndian.PutUint32(tmp[:], uint32(x.Val))
			b.info.Write(tmp[1:])
		} else {
			binary.LittleEndian.PutUint32(tmp[:], uint32(x.Val))
			b.info.Write(tmp[:3])
		}
	case godwarf.FormData4, godwarf.FormRef4, godwarf.FormStrx4, godwarf.FormAddrx4, godwarf.FormRefSup4:
		b.uint(4, x.Val)
	case godwarf.FormData8, godwarf.FormRef8, godwarf.FormRefSig8, godwarf.FormRefSup8:
		b.uint(8, x.Val)
	case godwarf.FormStrp, godwarf.FormLineStrp, godwarf.FormSecOffset, godwarf.FormStrpSup,
		godwarf.FormGNURefAlt, godwarf.FormGNUStrpAlt:
		b.uint(b.unit.offsetSize(), x.Val)
	case godwarf.FormUdata, godwarf.FormRefUdata, godwarf.FormStrx, godwarf.FormAddrx,
		godwarf.FormLoclistx, godwarf.FormRnglistx, godwarf.FormGNUAddrIndex, godwarf.FormGNUStrIndex:
		util.EncodeULEB128(&b.info, x.Val)
	case godwarf.FormSdata:
		util.EncodeSLEB128(&b.info, int64(x.Val))
	case godwarf.FormFlagPresent:
	default:
		panic("unsupported form " + x.Form.String())
	}
}

// AttrForward adds a reference attribute whose target is not known yet and
// returns the function that sets it. A local reference is written as
// DW_FORM_ref4, others as DW_FORM_ref_addr.
func (b *Builder) AttrForward(attr dwarf.Attr, local bool) func(target dwarf.Offset) {
	var pos int
	unitOff := b.unit.off
	size := 4
	if local {
		b.Attr(attr, Ref(unitOff))
		pos = b.info.Len() - 4
	} else {
		b.Attr(attr, dwarf.Offset(0))
		if b.unit.version == 2 {
			size = b.unit.addrSize
		} else {
			size = b.unit.offsetSize()
		}
		pos = b.info.Len() - size
	}
	order := b.order
	return func(target dwarf.Offset) {
		v := uint64(target)
		if local {
			v -= uint64(unitOff)
		}
		switch size {
		case 8:
			order.PutUint64(b.info.Bytes()[pos:], v)
		case 4:
			order.PutUint32(b.info.Bytes()[pos:], uint32(v))
		case 2:
			order.PutUint16(b.info.Bytes()[pos:], uint16(v))
		default:
			b.info.Bytes()[pos] = byte(v)
		}
	}
}

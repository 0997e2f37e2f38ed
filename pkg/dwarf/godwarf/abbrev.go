package godwarf

import (
	"debug/dwarf"
	"fmt"

	"github.com/a2lobf/a2lobf/pkg/dwarf/util"
)

// AttrSpec is one attribute of an abbreviation.
type AttrSpec struct {
	Attr     dwarf.Attr
	Form     Form
	Implicit int64 // value of DW_FORM_implicit_const
}

// Abbrev describes the shape of the entries that use its code.
type Abbrev struct {
	Tag      dwarf.Tag
	Children bool
	Fields   []AttrSpec
}

// AbbrevTable maps abbreviation codes to abbreviations.
type AbbrevTable map[uint64]*Abbrev

// ParseAbbrev reads the abbreviation table starting at off in the
// .debug_abbrev section data.
func ParseAbbrev(data []byte, off uint64) (AbbrevTable, error) {
	if off >= uint64(len(data)) {
		return nil, fmt.Errorf("abbrev offset %#x out of range", off)
	}
	buf := util.MakeBuf(nil, "abbrev", off, data[off:])
	tab := make(AbbrevTable)
	for {
		code := buf.Uint()
		if code == 0 || buf.Err != nil {
			break
		}
		a := &Abbrev{
			Tag:      dwarf.Tag(buf.Uint()),
			Children: buf.Uint8() != 0,
		}
		for {
			attr := dwarf.Attr(buf.Uint())
			form := Form(buf.Uint())
			if attr == 0 && form == 0 {
				break
			}
			spec := AttrSpec{Attr: attr, Form: form}
			if form == FormImplicitConst {
				spec.Implicit = buf.Int()
			}
			a.Fields = append(a.Fields, spec)
			if buf.Err != nil {
				break
			}
		}
		if _, dup := tab[code]; dup {
			return nil, fmt.Errorf("duplicate abbrev code %d at %#x", code, off)
		}
		tab[code] = a
	}
	if buf.Err != nil {
		return nil, buf.Err
	}
	return tab, nil
}

package dwarfbuilder

import (
	"debug/dwarf"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/a2lobf/a2lobf/pkg/dwarf/godwarf"
	"github.com/a2lobf/a2lobf/pkg/dwarf/op"
)

func TestWriteReadable(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		for _, version := range []uint16{2, 3, 4, 5} {
			var d Dwarf
			u1 := d.AddUnit(version, 4, dwarf.TagCompileUnit)
			u2 := d.AddUnit(version, 4, dwarf.TagCompileUnit)

			a := d.Unit(u1)
			a.Entry(a.Root()).Set(dwarf.AttrName, String("a.c"))
			typ := a.Add(a.Root(), dwarf.TagBaseType)
			a.Entry(typ).Set(dwarf.AttrName, String("int"))
			a.Entry(typ).Set(dwarf.AttrByteSize, Data1(4))
			v := a.Add(a.Root(), dwarf.TagVariable)
			a.Entry(v).Set(dwarf.AttrName, String("engineSpeed"))
			a.Entry(v).Set(dwarf.AttrType, UnitRef{Entry: typ})
			a.Entry(v).Set(dwarf.AttrExternal, Flag(true))
			a.Entry(v).Set(dwarf.AttrLocation, Exprloc(LocationBlock(order, 4, op.DW_OP_addr, Address(0x10000040))))

			b := d.Unit(u2)
			b.Entry(b.Root()).Set(dwarf.AttrName, String("b.c"))
			ext := b.Add(b.Root(), dwarf.TagVariable)
			b.Entry(ext).Set(dwarf.AttrName, String("ext"))
			b.Entry(ext).Set(dwarf.AttrType, DebugInfoRef{Unit: u1, Entry: typ})
			b.Entry(ext).Set(dwarf.AttrDeclLine, Udata(300))

			info, abbrev, err := d.Write(order)
			if err != nil {
				t.Fatal(err)
			}

			data, err := dwarf.New(abbrev, nil, nil, info, nil, nil, nil, nil)
			if err != nil {
				t.Fatalf("%v v%d: %v", order, version, err)
			}
			r := data.Reader()
			var names []string
			var typeOffs []dwarf.Offset
			intOff := dwarf.Offset(0)
			for {
				e, err := r.Next()
				if err != nil {
					t.Fatalf("%v v%d: %v", order, version, err)
				}
				if e == nil {
					break
				}
				if e.Tag == 0 {
					continue
				}
				names = append(names, e.Val(dwarf.AttrName).(string))
				if e.Tag == dwarf.TagBaseType {
					intOff = e.Offset
				}
				if off, ok := e.Val(dwarf.AttrType).(dwarf.Offset); ok {
					typeOffs = append(typeOffs, off)
				}
				if e.Tag == dwarf.TagVariable && e.Val(dwarf.AttrName) == "engineSpeed" {
					loc := e.Val(dwarf.AttrLocation).([]byte)
					addr, _, err := op.ExecuteStackProgram(op.DwarfRegisters{ByteOrder: order}, loc, 4)
					if err != nil || addr != 0x10000040 {
						t.Errorf("%v v%d: location %#x %v", order, version, addr, err)
					}
				}
			}
			if len(names) != 5 {
				t.Fatalf("%v v%d: got entries %v", order, version, names)
			}
			if len(typeOffs) != 2 || typeOffs[0] != intOff || typeOffs[1] != intOff {
				t.Errorf("%v v%d: type references %v, expected %#x", order, version, typeOffs, intOff)
			}

			units, err := godwarf.ParseUnits(&godwarf.Sections{Order: order, Info: info, Abbrev: abbrev})
			if err != nil {
				t.Fatal(err)
			}
			if len(units) != 2 || units[0].Version != version || units[1].AddrSize != 4 {
				t.Fatalf("%v v%d: bad unit headers", order, version)
			}
		}
	}
}

func TestAbbrevDedupe(t *testing.T) {
	var d Dwarf
	u := d.Unit(d.AddUnit(4, 8, dwarf.TagCompileUnit))
	for i := 0; i < 10; i++ {
		e := u.Add(u.Root(), dwarf.TagVariable)
		u.Entry(e).Set(dwarf.AttrName, String("x"))
	}
	_, abbrev, err := d.Write(binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	tab, err := godwarf.ParseAbbrev(abbrev, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tab) != 2 {
		t.Fatalf("expected 2 abbrevs, got %d", len(tab))
	}
}

func TestDanglingRef(t *testing.T) {
	var d Dwarf
	u := d.Unit(d.AddUnit(4, 8, dwarf.TagCompileUnit))
	u.Entry(u.Root()).Set(dwarf.AttrType, UnitRef{Entry: 7})
	if _, _, err := d.Write(binary.LittleEndian); !errors.Is(err, ErrDanglingRef) {
		t.Fatalf("expected ErrDanglingRef, got %v", err)
	}

	d = Dwarf{}
	u = d.Unit(d.AddUnit(4, 8, dwarf.TagCompileUnit))
	u.Entry(u.Root()).Set(dwarf.AttrType, DebugInfoRef{Unit: 3})
	if _, _, err := d.Write(binary.LittleEndian); !errors.Is(err, ErrDanglingRef) {
		t.Fatalf("expected ErrDanglingRef, got %v", err)
	}
}

package godwarf_test

import (
	"debug/dwarf"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/a2lobf/a2lobf/pkg/dwarf/dwarfbuilder"
	"github.com/a2lobf/a2lobf/pkg/dwarf/godwarf"
	"github.com/a2lobf/a2lobf/pkg/dwarf/op"
)

type dfsItem struct {
	delta int
	tag   dwarf.Tag
}

func readAll(t *testing.T, u *godwarf.Unit) ([]dfsItem, []*godwarf.Entry) {
	t.Helper()
	var items []dfsItem
	var entries []*godwarf.Entry
	c := u.Entries()
	for {
		delta, e, err := c.NextDFS()
		if err != nil {
			t.Fatal(err)
		}
		if e == nil {
			break
		}
		items = append(items, dfsItem{delta, e.Tag})
		entries = append(entries, e)
	}
	return items, entries
}

func TestNextDFS(t *testing.T) {
	b := dwarfbuilder.New(binary.LittleEndian)
	b.UnitOpen(4, 8, false)
	b.TagOpen(dwarf.TagCompileUnit, "main.c")
	b.AddStructType("S", 8)
	b.AddMember("a", 0, uint8(0))
	b.AddMember("b", 0, uint8(4))
	b.TagClose()
	b.AddSubprogram("f", 0x100, 0x200)
	b.SetHasChildren()
	b.TagClose()
	b.AddSubprogram("g", 0x200, 0x300)
	b.TagOpen(dwarf.TagLexDwarfBlock, "")
	b.TagOpen(dwarf.TagVariable, "x")
	b.TagClose()
	b.TagClose()
	b.TagClose()
	b.TagOpen(dwarf.TagBaseType, "int")
	b.TagClose()
	b.TagClose()
	b.UnitClose()
	info, abbrev, str, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	units, err := godwarf.ParseUnits(&godwarf.Sections{Order: binary.LittleEndian, Info: info, Abbrev: abbrev, Str: str})
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 {
		t.Fatalf("expected one unit, got %d", len(units))
	}
	items, _ := readAll(t, units[0])
	expected := []dfsItem{
		{0, dwarf.TagCompileUnit},
		{1, dwarf.TagStructType},
		{1, dwarf.TagMember},
		{0, dwarf.TagMember},
		{-1, dwarf.TagSubprogram},
		{0, dwarf.TagSubprogram}, // f has an empty children list
		{1, dwarf.TagLexDwarfBlock},
		{1, dwarf.TagVariable},
		{-2, dwarf.TagBaseType},
	}
	if len(items) != len(expected) {
		t.Fatalf("got %v, expected %v", items, expected)
	}
	for i := range items {
		if items[i] != expected[i] {
			t.Errorf("entry %d: got %v, expected %v", i, items[i], expected[i])
		}
	}
}

func TestForms(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		for _, tc := range []struct {
			version  uint16
			addrSize int
			dwarf64  bool
		}{
			{2, 4, false},
			{3, 4, false},
			{4, 8, false},
			{4, 8, true},
			{5, 4, false},
			{5, 8, true},
		} {
			b := dwarfbuilder.New(order)
			b.UnitOpen(tc.version, tc.addrSize, tc.dwarf64)
			cu := b.TagOpen(dwarf.TagCompileUnit, "a.c")
			b.Attr(dwarf.AttrProducer, dwarfbuilder.Strp("cc 1.0"))
			intOff := b.AddBaseType("int", dwarfbuilder.DW_ATE_signed, 4)
			b.TagOpen(dwarf.TagVariable, "v")
			b.Attr(dwarf.AttrType, dwarfbuilder.Ref(intOff))
			b.Attr(dwarf.AttrLocation, []byte{byte(op.DW_OP_addr), 1, 2, 3, 4})
			b.Attr(dwarf.AttrExternal, true)
			b.Attr(dwarf.AttrDeclLine, int64(-3))
			b.Attr(dwarf.AttrSibling, intOff)
			b.Attr(dwarf.AttrDeclFile, dwarfbuilder.FormValue{Form: godwarf.FormStrx3, Val: 0x010203})
			b.Attr(dwarf.AttrStmtList, uint32(0x44))
			b.TagClose()
			b.TagClose()
			b.UnitClose()
			info, abbrev, str, err := b.Build()
			if err != nil {
				t.Fatal(err)
			}
			secs := &godwarf.Sections{Order: order, Info: info, Abbrev: abbrev, Str: str}
			units, err := godwarf.ParseUnits(secs)
			if err != nil {
				t.Fatalf("%v %+v: %v", order, tc, err)
			}
			u := units[0]
			if u.Version != tc.version || u.AddrSize != tc.addrSize || u.Dwarf64 != tc.dwarf64 {
				t.Fatalf("%v %+v: bad header %+v", order, tc, u)
			}
			_, entries := readAll(t, u)
			if len(entries) != 3 {
				t.Fatalf("%v %+v: got %d entries", order, tc, len(entries))
			}

			prod, ok := entries[0].Val(dwarf.AttrProducer).(godwarf.DebugStrRef)
			if !ok {
				t.Fatalf("producer is %#v", entries[0].Val(dwarf.AttrProducer))
			}
			if s, err := godwarf.CString(str, uint64(prod)); err != nil || string(s) != "cc 1.0" {
				t.Errorf("producer %q %v", s, err)
			}
			if entries[0].Offset != uint64(cu) || entries[0].UnitOffset != uint64(cu) {
				t.Errorf("root offsets %#x %#x", entries[0].Offset, entries[0].UnitOffset)
			}

			v := entries[2]
			if name, _ := v.Val(dwarf.AttrName).(godwarf.String); string(name) != "v" {
				t.Errorf("name %q", name)
			}
			if ref, _ := v.Val(dwarf.AttrType).(godwarf.UnitRef); uint64(ref) != entries[1].UnitOffset {
				t.Errorf("type ref %#x, expected %#x", ref, entries[1].UnitOffset)
			}
			if ref, _ := v.Val(dwarf.AttrSibling).(godwarf.DebugInfoRef); uint64(ref) != entries[1].Offset {
				t.Errorf("sibling ref %#x, expected %#x", ref, entries[1].Offset)
			}
			loc := v.Val(dwarf.AttrLocation)
			if tc.version < 4 {
				if _, ok := loc.(godwarf.Exprloc); !ok {
					t.Errorf("v%d location block decoded as %T", tc.version, loc)
				}
				if _, ok := v.Val(dwarf.AttrStmtList).(godwarf.SecOffset); !ok {
					t.Errorf("v%d data4 stmt_list decoded as %T", tc.version, v.Val(dwarf.AttrStmtList))
				}
			} else {
				if _, ok := loc.(godwarf.Block); !ok {
					t.Errorf("v%d location block decoded as %T", tc.version, loc)
				}
				if _, ok := v.Val(dwarf.AttrStmtList).(godwarf.Data4); !ok {
					t.Errorf("v%d data4 stmt_list decoded as %T", tc.version, v.Val(dwarf.AttrStmtList))
				}
			}
			if ext, _ := v.Val(dwarf.AttrExternal).(godwarf.Flag); !bool(ext) {
				t.Errorf("external flag not set")
			}
			if line, _ := v.Val(dwarf.AttrDeclLine).(godwarf.Sdata); line != -3 {
				t.Errorf("decl_line %d", line)
			}
			if idx, _ := v.Val(dwarf.AttrDeclFile).(godwarf.DebugStrOffsetsIndex); idx != 0x010203 {
				t.Errorf("strx3 %#x", idx)
			}
		}
	}
}

func TestMultipleUnits(t *testing.T) {
	b := dwarfbuilder.New(binary.LittleEndian)
	b.UnitOpen(4, 4, false)
	b.TagOpen(dwarf.TagCompileUnit, "a.c")
	setTarget := b.AttrForward(dwarf.AttrImport, false)
	b.TagClose()
	b.UnitClose()
	second := b.UnitOpen(5, 4, false)
	b.TagOpen(dwarf.TagPartialUnit, "b.c")
	target := b.TagOpen(dwarf.TagVariable, "y")
	b.TagClose()
	b.TagClose()
	b.UnitClose()
	setTarget(target)
	info, abbrev, _, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	units, err := godwarf.ParseUnits(&godwarf.Sections{Order: binary.LittleEndian, Info: info, Abbrev: abbrev})
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 2 || units[1].Offset != uint64(second) || units[1].UnitType != godwarf.UnitTypeCompile {
		t.Fatalf("bad units %+v", units)
	}
	_, entries := readAll(t, units[0])
	if ref, _ := entries[0].Val(dwarf.AttrImport).(godwarf.DebugInfoRef); uint64(ref) != uint64(target) {
		t.Fatalf("forward reference %#x, expected %#x", ref, target)
	}
	_, entries = readAll(t, units[1])
	if entries[1].UnitOffset != uint64(target)-uint64(second) {
		t.Fatalf("unit offset %#x", entries[1].UnitOffset)
	}
}

func TestMalformed(t *testing.T) {
	b := dwarfbuilder.New(binary.LittleEndian)
	b.UnitOpen(4, 8, false)
	b.TagOpen(dwarf.TagCompileUnit, "a.c")
	b.TagClose()
	b.UnitClose()
	info, abbrev, _, _ := b.Build()

	if _, err := godwarf.ParseUnits(&godwarf.Sections{Order: binary.LittleEndian, Info: info[:len(info)-2], Abbrev: abbrev}); err == nil {
		t.Error("truncated unit accepted")
	}

	bad := append([]byte(nil), info...)
	bad[11] = 0x70 // abbrev code of the root entry
	units, err := godwarf.ParseUnits(&godwarf.Sections{Order: binary.LittleEndian, Info: bad, Abbrev: abbrev})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := units[0].Entries().NextDFS(); !errors.Is(err, godwarf.ErrNotEntry) {
		t.Errorf("expected ErrNotEntry, got %v", err)
	}

	v1 := append([]byte(nil), info...)
	v1[4] = 1
	if _, err := godwarf.ParseUnits(&godwarf.Sections{Order: binary.LittleEndian, Info: v1, Abbrev: abbrev}); err == nil {
		t.Error("DWARF version 1 accepted")
	}
}

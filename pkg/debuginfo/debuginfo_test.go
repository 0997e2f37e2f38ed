package debuginfo

import (
	"debug/dwarf"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/a2lobf/a2lobf/pkg/dwarf/dwarfbuilder"
	"github.com/a2lobf/a2lobf/pkg/dwarf/op"
)

type lookup map[string]string

func (l lookup) Lookup(s string) (string, bool) {
	r, ok := l[s]
	return r, ok
}

func (l lookup) Len() int { return len(l) }

// table maps the names used by the A2L file to the names found in the
// debug info built by fixture.
var table = lookup{
	"engineSpeed": "Vkqglrbvtiu",
	"engineState": "Stxwlsmnqzp",
	"states":      "Arrbjw",
	"speed":       "Mxqwz",
	"inner":       "Inxkv",
	"lo":          "Pq",
	"hi":          "Zz",
	"local":       "Lokqw",
	"ghost":       "Ghost",
	"alias":       "Alsxp",
}

func fixture(t *testing.T) *DebugData {
	t.Helper()
	loc := func(args ...interface{}) dwarfbuilder.Exprloc {
		return dwarfbuilder.Exprloc(dwarfbuilder.LocationBlock(binary.LittleEndian, 4, args...))
	}
	b := dwarfbuilder.New(binary.LittleEndian)
	b.UnitOpen(4, 4, false)
	b.TagOpen(dwarf.TagCompileUnit, "Qwe.c")
	intType := b.AddBaseType("int", dwarfbuilder.DW_ATE_signed, 4)
	inner := b.AddStructType("Ujk", 8)
	b.AddMember("Pq", intType, uint8(0))
	b.AddMember("Zz", intType, uint8(4))
	b.TagClose()
	outer := b.AddStructType("Tkl", 12)
	b.AddMember("Mxqwz", intType, uint8(0))
	b.AddMember("Inxkv", inner, uint8(4))
	b.TagClose()
	outerT := b.AddTypedef("Tkl_t", outer)
	arr := b.TagOpen(dwarf.TagArrayType, "")
	b.Attr(dwarf.AttrType, dwarfbuilder.Ref(outerT))
	b.TagOpen(dwarf.TagSubrangeType, "")
	b.Attr(dwarf.AttrUpperBound, uint8(1))
	b.TagClose()
	b.TagClose()
	b.AddVariable("Vkqglrbvtiu", intType, loc(op.DW_OP_addr, dwarfbuilder.Address(0x1000)))
	b.AddVariable("Stxwlsmnqzp", outerT, loc(op.DW_OP_addr, dwarfbuilder.Address(0x2000)))
	b.AddVariable("Arrbjw", arr, loc(op.DW_OP_addr, dwarfbuilder.Address(0x3000)))
	b.AddVariable("Alsxp", intType, loc(op.DW_OP_addr, dwarfbuilder.Address(0x1000)))
	b.AddSubprogram("Fnq", 0x8000, 0x8100)
	b.AddVariable("Lokqw", intType, loc(op.DW_OP_fbreg, -8))
	b.TagClose()
	b.TagClose()
	b.UnitClose()

	info, abbrev, _, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	dd, err := Load(info, abbrev)
	if err != nil {
		t.Fatal(err)
	}
	return dd
}

func TestIndex(t *testing.T) {
	dd := fixture(t)
	if dd.Len() != 4 {
		t.Fatalf("expected 4 global variables, got %d", dd.Len())
	}
	v, ok := dd.Variable("Vkqglrbvtiu")
	if !ok || !v.HasAddress || v.Address != 0x1000 {
		t.Fatalf("bad variable %#v", v)
	}
	if _, ok := dd.Variable("Lokqw"); ok {
		t.Errorf("local variable indexed")
	}
}

func TestFindSymbol(t *testing.T) {
	dd := fixture(t)
	tests := []struct {
		name   string
		want   string
		offset int64
	}{
		{"engineSpeed", "Vkqglrbvtiu", 0},
		{"engineState.inner.hi", "Stxwlsmnqzp.Inxkv.Zz", 8},
		{"states[1].speed", "Arrbjw[1].Mxqwz", 12},
		{"states[1].inner.lo", "Arrbjw[1].Inxkv.Pq", 16},
		{"states[i].inner", "Arrbjw[i].Inxkv", -1},
	}
	for _, tc := range tests {
		si, err := FindSymbol(tc.name, dd, table)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if si.Name != tc.want || si.Offset != tc.offset {
			t.Errorf("%s: got %s+%d, want %s+%d", tc.name, si.Name, si.Offset, tc.want, tc.offset)
		}
	}

	for _, name := range []string{
		"unknown",           // no pseudonym
		"ghost",             // not a variable
		"engineSpeed.speed", // not a structure
		"engineState.lo",    // no such member
		"engineState[1]",    // not an array
		"engineState..hi",   // malformed
		"states[1",          // malformed
	} {
		_, err := FindSymbol(name, dd, table)
		if !errors.Is(err, ErrSymbolNotFound) {
			t.Errorf("%s: expected ErrSymbolNotFound, got %v", name, err)
		}
	}
}

func TestResolver(t *testing.T) {
	dd := fixture(t)
	r, err := NewResolver(dd, table, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		si, err := r.Find("engineState.inner.lo")
		if err != nil || si.Name != "Stxwlsmnqzp.Inxkv.Pq" {
			t.Fatalf("got %v %v", si, err)
		}
		if _, err := r.Find("ghost"); !errors.Is(err, ErrSymbolNotFound) {
			t.Fatalf("expected ErrSymbolNotFound, got %v", err)
		}
	}
	if r.cache.Len() != 2 {
		t.Errorf("expected 2 cached names, got %d", r.cache.Len())
	}
}

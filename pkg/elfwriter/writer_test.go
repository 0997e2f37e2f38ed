package elfwriter

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, class elf.Class, data elf.Data, flags uint32, secs []*Section) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.elf")
	fh, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()
	w := New(fh, &elf.FileHeader{Class: class, Data: data, Type: elf.ET_EXEC, Machine: elf.EM_ARM}, flags)
	for _, s := range secs {
		w.WriteSection(s)
	}
	w.WriteSectionHeaders()
	if w.Err != nil {
		t.Fatal(w.Err)
	}
	return path
}

func TestWrite(t *testing.T) {
	for _, tc := range []struct {
		class elf.Class
		data  elf.Data
	}{
		{elf.ELFCLASS32, elf.ELFDATA2LSB},
		{elf.ELFCLASS32, elf.ELFDATA2MSB},
		{elf.ELFCLASS64, elf.ELFDATA2LSB},
		{elf.ELFCLASS64, elf.ELFDATA2MSB},
	} {
		info := []byte{1, 2, 3, 4, 5}
		abbrev := []byte{6, 7, 8}
		path := writeFile(t, tc.class, tc.data, 0x5000200, []*Section{
			{SectionHeader: elf.SectionHeader{Name: ".debug_info", Type: elf.SHT_PROGBITS, Addralign: 1}, Data: info},
			{SectionHeader: elf.SectionHeader{Name: ".shstrtab", Type: elf.SHT_STRTAB}, Data: []byte("stale")},
			{SectionHeader: elf.SectionHeader{Name: ".debug_abbrev", Type: elf.SHT_PROGBITS, Addralign: 4}, Data: abbrev},
		})

		f, err := elf.Open(path)
		if err != nil {
			t.Fatalf("%v %v: %v", tc.class, tc.data, err)
		}
		if f.Class != tc.class || f.Data != tc.data || f.Machine != elf.EM_ARM || f.Entry != 0 {
			t.Errorf("%v %v: bad header %#v", tc.class, tc.data, f.FileHeader)
		}
		if len(f.Progs) != 0 {
			t.Errorf("%v %v: unexpected program headers", tc.class, tc.data)
		}
		var names []string
		for _, s := range f.Sections {
			names = append(names, s.Name)
		}
		want := []string{"", ".debug_info", ".debug_abbrev", ".shstrtab"}
		if len(names) != len(want) {
			t.Fatalf("%v %v: sections %q", tc.class, tc.data, names)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("%v %v: section %d is %q, want %q", tc.class, tc.data, i, names[i], want[i])
			}
		}
		for name, data := range map[string][]byte{".debug_info": info, ".debug_abbrev": abbrev} {
			got, err := f.Section(name).Data()
			if err != nil || !bytes.Equal(got, data) {
				t.Errorf("%v %v: %s = %v %v", tc.class, tc.data, name, got, err)
			}
		}
		if off := f.Section(".debug_abbrev").Offset; off%4 != 0 {
			t.Errorf("%v %v: .debug_abbrev not aligned: %#x", tc.class, tc.data, off)
		}
		f.Close()

		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		var order binary.ByteOrder = binary.LittleEndian
		if tc.data == elf.ELFDATA2MSB {
			order = binary.BigEndian
		}
		flagsOff := 36
		if tc.class == elf.ELFCLASS64 {
			flagsOff = 48
		}
		if fl := order.Uint32(raw[flagsOff:]); fl != 0x5000200 {
			t.Errorf("%v %v: e_flags %#x", tc.class, tc.data, fl)
		}
	}
}

func TestUnsupported(t *testing.T) {
	fh, err := os.Create(filepath.Join(t.TempDir(), "out.elf"))
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()
	w := New(fh, &elf.FileHeader{Class: elf.ELFCLASSNONE, Data: elf.ELFDATA2LSB}, 0)
	w.WriteSectionHeaders()
	if w.Err == nil {
		t.Fatal("expected error")
	}
}

package obfuscator

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"errors"
	mathrand "math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/a2lobf/a2lobf/pkg/a2l"
	"github.com/a2lobf/a2lobf/pkg/a2l/ifdata"
	"github.com/a2lobf/a2lobf/pkg/config"
	"github.com/a2lobf/a2lobf/pkg/dwarf/dwarfbuilder"
	"github.com/a2lobf/a2lobf/pkg/dwarf/op"
	"github.com/a2lobf/a2lobf/pkg/elfwriter"
	"github.com/a2lobf/a2lobf/pkg/objfile"
)

const speedAddr = 0x10000040

const sample = `ASAP2_VERSION 1 71
/begin PROJECT EngineProject "engine project"
  /begin MODULE EngineModule "engine module"
    /begin CHARACTERISTIC EngSpeed_rpm "engine speed" VALUE 0x10000040 RL_W 0 CM_rpm 0 8000
      SYMBOL_LINK "engineSpeed" 0
      /begin IF_DATA CANAPE_EXT 100
        LINK_MAP "engineSpeed" 0x10000040 0 0 0 1 0x87 0
      /end IF_DATA
    /end CHARACTERISTIC
    /begin CHARACTERISTIC Gear_idx "gear" VALUE 0x10000048 RL_W 0 CM_rpm 0 8
      SYMBOL_LINK "state.gear" 0
    /end CHARACTERISTIC
    /begin MEASUREMENT Missing_meas "not in the binary" UWORD CM_rpm 0 0 0 8000
      SYMBOL_LINK "notThere" 0
    /end MEASUREMENT
    /begin RECORD_LAYOUT RL_W
      FNC_VALUES 1 UWORD COLUMN_DIR DIRECT
    /end RECORD_LAYOUT
    /begin COMPU_METHOD CM_rpm "rpm" LINEAR "%6.1" "rpm"
      COEFFS_LINEAR 1 0
    /end COMPU_METHOD
  /end MODULE
/end PROJECT
`

func debugInfo(t *testing.T, order binary.ByteOrder) (info, abbrev, str []byte) {
	t.Helper()
	loc := func(addr uint64) dwarfbuilder.Exprloc {
		return dwarfbuilder.Exprloc(dwarfbuilder.LocationBlock(order, 4, op.DW_OP_addr, dwarfbuilder.Address(addr)))
	}
	b := dwarfbuilder.New(order)
	b.UnitOpen(4, 4, false)
	b.TagOpen(dwarf.TagCompileUnit, "engine.c")
	intType := b.AddBaseType("int", dwarfbuilder.DW_ATE_signed, 4)
	st := b.AddStructType("EngineState", 8)
	b.AddMember("rpm", intType, uint8(0))
	b.AddMember("gear", intType, uint8(4))
	b.TagClose()
	b.AddVariable("engineSpeed", intType, loc(speedAddr))
	b.AddVariable("state", st, loc(0x10000044))
	b.TagClose()
	b.UnitClose()
	info, abbrev, str, err := b.Build()
	qt.Assert(t, qt.IsNil(err))
	return info, abbrev, str
}

func writeInputs(t *testing.T, class elf.Class, data elf.Data, order binary.ByteOrder) Job {
	t.Helper()
	dir := t.TempDir()
	info, abbrev, str := debugInfo(t, order)

	in := filepath.Join(dir, "in.elf")
	fh, err := os.Create(in)
	qt.Assert(t, qt.IsNil(err))
	w := elfwriter.New(fh, &elf.FileHeader{Class: class, Data: data, Type: elf.ET_EXEC, Machine: elf.EM_PPC}, 0)
	for _, s := range []struct {
		name string
		typ  elf.SectionType
		data []byte
	}{
		{".text", elf.SHT_PROGBITS, []byte{0x4e, 0x80, 0x00, 0x20}},
		{".symtab", elf.SHT_SYMTAB, make([]byte, 32)},
		{".debug_info", elf.SHT_PROGBITS, info},
		{".debug_abbrev", elf.SHT_PROGBITS, abbrev},
		{".debug_str", elf.SHT_PROGBITS, append(str, "engineSpeed\x00"...)},
		{".debug_line", elf.SHT_PROGBITS, []byte("engine.c\x00")},
	} {
		w.WriteSection(&elfwriter.Section{SectionHeader: elf.SectionHeader{Name: s.name, Type: s.typ, Addralign: 1}, Data: s.data})
	}
	w.WriteSectionHeaders()
	qt.Assert(t, qt.IsNil(w.Err))
	qt.Assert(t, qt.IsNil(fh.Close()))

	a2lIn := filepath.Join(dir, "in.a2l")
	qt.Assert(t, qt.IsNil(os.WriteFile(a2lIn, []byte(sample), 0600)))

	return Job{
		InputELF:  in,
		OutputELF: filepath.Join(dir, "out.elf"),
		InputA2L:  a2lIn,
		OutputA2L: filepath.Join(dir, "out.a2l"),
		Source:    mathrand.NewSource(1),
	}
}

func globals(t *testing.T, path string) map[string]bool {
	t.Helper()
	f, err := elf.Open(path)
	qt.Assert(t, qt.IsNil(err))
	defer f.Close()
	d, err := f.DWARF()
	qt.Assert(t, qt.IsNil(err))
	r := make(map[string]bool)
	rdr := d.Reader()
	for {
		e, err := rdr.Next()
		qt.Assert(t, qt.IsNil(err))
		if e == nil {
			break
		}
		if e.Tag == dwarf.TagVariable {
			r[e.Val(dwarf.AttrName).(string)] = true
		}
	}
	return r
}

func TestRun(t *testing.T) {
	for _, tc := range []struct {
		class elf.Class
		data  elf.Data
		order binary.ByteOrder
	}{
		{elf.ELFCLASS32, elf.ELFDATA2MSB, binary.BigEndian},
		{elf.ELFCLASS64, elf.ELFDATA2LSB, binary.LittleEndian},
	} {
		job := writeInputs(t, tc.class, tc.data, tc.order)
		report, err := Run(job)
		qt.Assert(t, qt.IsNil(err))
		qt.Check(t, qt.Equals(report.Variables, 2))
		qt.Check(t, qt.Equals(report.A2L.SymbolsResolved, 3))
		qt.Check(t, qt.Equals(report.A2L.SymbolsUnresolved, 1))

		// Only debug sections survive, the stale ones are gone.
		ef, err := elf.Open(job.OutputELF)
		qt.Assert(t, qt.IsNil(err))
		var secs []string
		for _, s := range ef.Sections {
			if s.Name != "" {
				secs = append(secs, s.Name)
			}
		}
		ef.Close()
		qt.Check(t, qt.DeepEquals(secs, []string{".debug_info", ".debug_abbrev", ".shstrtab"}))

		out, err := os.ReadFile(job.OutputELF)
		qt.Assert(t, qt.IsNil(err))
		for _, orig := range []string{"engineSpeed", "EngineState", "engine.c", "gear"} {
			qt.Check(t, qt.IsFalse(bytes.Contains(out, []byte(orig))), qt.Commentf("%s leaked into the binary", orig))
		}

		// The symbol link of the A2L file names a variable of the
		// obfuscated binary.
		vars := globals(t, job.OutputELF)
		f, err := a2l.ParseFile(job.OutputA2L)
		qt.Assert(t, qt.IsNil(err))
		speed := f.Objects("CHARACTERISTIC")[0]
		qt.Check(t, qt.Not(qt.Equals(speed.Name(), "EngSpeed_rpm")))
		qt.Check(t, qt.HasLen(speed.Name(), len("EngSpeed_rpm")))
		link := speed.Child("SYMBOL_LINK").Arg(0).Text
		qt.Check(t, qt.IsTrue(vars[link]), qt.Commentf("symbol link %q not in %v", link, vars))

		ce, err := ifdata.Decode(speed.Child("IF_DATA"))
		qt.Assert(t, qt.IsNil(err))
		qt.Check(t, qt.Equals(ce.LinkMap.SymbolName, link))

		gear := f.Objects("CHARACTERISTIC")[1].Child("SYMBOL_LINK").Arg(0).Text
		parts := strings.Split(gear, ".")
		qt.Assert(t, qt.HasLen(parts, 2))
		qt.Check(t, qt.IsTrue(vars[parts[0]]))
		qt.Check(t, qt.Not(qt.Equals(parts[1], "gear")))

		missing := f.Objects("MEASUREMENT")[0].Child("SYMBOL_LINK").Arg(0).Text
		qt.Check(t, qt.Not(qt.Equals(missing, "notThere")))
		qt.Check(t, qt.HasLen(missing, len("notThere")))

		a2lOut, err := os.ReadFile(job.OutputA2L)
		qt.Assert(t, qt.IsNil(err))
		for _, orig := range []string{"engineSpeed", "EngSpeed_rpm", "Gear_idx", "RL_W", "CM_rpm", "EngineProject"} {
			qt.Check(t, qt.IsFalse(strings.Contains(string(a2lOut), orig)), qt.Commentf("%s leaked into the A2L file", orig))
		}
	}
}

func TestRunReproducible(t *testing.T) {
	cfg := config.Default()
	cfg.Seed = 99
	var outs [][]byte
	for i := 0; i < 2; i++ {
		job := writeInputs(t, elf.ELFCLASS32, elf.ELFDATA2LSB, binary.LittleEndian)
		job.Source = nil
		job.Config = cfg
		report, err := Run(job)
		qt.Assert(t, qt.IsNil(err))
		qt.Check(t, qt.Equals(report.Seed, int64(99)))
		data, err := os.ReadFile(job.OutputA2L)
		qt.Assert(t, qt.IsNil(err))
		outs = append(outs, data)
	}
	qt.Check(t, qt.Equals(string(outs[0]), string(outs[1])))
}

func TestRunErrors(t *testing.T) {
	job := writeInputs(t, elf.ELFCLASS32, elf.ELFDATA2LSB, binary.LittleEndian)

	bad := job
	bad.OutputELF = bad.InputELF
	_, err := Run(bad)
	qt.Check(t, qt.ErrorIs(err, ErrSamePath))

	bad = job
	bad.InputELF = bad.InputA2L
	_, err = Run(bad)
	qt.Check(t, qt.ErrorIs(err, objfile.ErrNotELF))
	qt.Check(t, qt.StringContains(err.Error(), "load binary: "))

	bad = job
	qt.Assert(t, qt.IsNil(os.WriteFile(bad.InputA2L, []byte("/begin PROJECT P \"\"\n"), 0600)))
	_, err = Run(bad)
	var perr *a2l.ParseError
	qt.Check(t, qt.ErrorAs(err, &perr))
	_, statErr := os.Stat(bad.OutputA2L)
	qt.Check(t, qt.IsTrue(errors.Is(statErr, os.ErrNotExist)))

	bad = job
	bad.Config = config.Default()
	bad.Config.SymbolCacheSize = 0
	_, err = Run(bad)
	qt.Check(t, qt.IsNotNil(err))
}

func TestSteps(t *testing.T) {
	qt.Check(t, qt.DeepEquals(Steps(), []string{
		"load binary", "rebuild debug info", "write binary", "index debug info",
		"parse a2l", "obfuscate a2l", "write a2l",
	}))
}

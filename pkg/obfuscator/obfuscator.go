// Package obfuscator runs a complete obfuscation: the debug info of an
// ELF file is rebuilt with pseudonyms, and the A2L file describing the
// same program is rewritten to use the same pseudonyms.
package obfuscator

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/a2lobf/a2lobf/pkg/a2l"
	"github.com/a2lobf/a2lobf/pkg/config"
	"github.com/a2lobf/a2lobf/pkg/debuginfo"
	"github.com/a2lobf/a2lobf/pkg/dwarf/godwarf"
	"github.com/a2lobf/a2lobf/pkg/logflags"
	"github.com/a2lobf/a2lobf/pkg/obfuscate/a2lobf"
	"github.com/a2lobf/a2lobf/pkg/obfuscate/dwarfobf"
	"github.com/a2lobf/a2lobf/pkg/obfuscate/names"
	"github.com/a2lobf/a2lobf/pkg/objfile"
	"github.com/a2lobf/a2lobf/pkg/pipeline"
)

// ErrSamePath is returned when an output file would overwrite its input.
var ErrSamePath = errors.New("output file is the input file")

// staleSections are the debug sections that index the original
// .debug_info or carry original names. They are deleted from the output.
var staleSections = []string{
	".debug_str",
	".debug_line",
	".debug_line_str",
	".debug_str_offsets",
	".debug_addr",
	".debug_loc",
	".debug_loclists",
	".debug_ranges",
	".debug_rnglists",
	".debug_frame",
	".debug_aranges",
	".debug_pubnames",
	".debug_pubtypes",
	".debug_names",
	".debug_macinfo",
	".debug_macro",
	".debug_types",
}

// Job describes the files of a run.
type Job struct {
	InputELF  string
	OutputELF string
	InputA2L  string
	OutputA2L string
	// Config may be nil, in which case config.Default is used.
	Config *config.Config
	// Source overrides the random source seeded from Config.
	Source rand.Source
}

// Report summarizes a run.
type Report struct {
	Seed  int64
	DWARF dwarfobf.Stats
	A2L   *a2lobf.Stats
	// Names is the number of distinct names of the debug info.
	Names int
	// Variables is the number of global variables indexed for symbol
	// correlation.
	Variables int
}

type state struct {
	job   Job
	cfg   *config.Config
	gen   *names.Generator
	table *names.Table

	obj    *objfile.File
	secs   *godwarf.Sections
	result *dwarfobf.Result
	debug  *debuginfo.DebugData
	a2l    *a2l.File

	report Report
}

// Steps returns the names of the stages of a run, in order.
func Steps() []string {
	return newPipeline().Steps()
}

func newPipeline() *pipeline.Pipeline[*state] {
	return pipeline.New[*state](logflags.ELFLogger()).Add(
		pipeline.Func("load binary", loadBinary),
		pipeline.Func("rebuild debug info", rebuildDebugInfo),
		pipeline.Func("write binary", writeBinary),
		pipeline.Func("index debug info", indexDebugInfo),
		pipeline.Func("parse a2l", parseA2L),
		pipeline.Func("obfuscate a2l", obfuscateA2L),
		pipeline.Func("write a2l", writeA2L),
	)
}

// Run performs job. The output ELF file is written once the debug info
// has been rebuilt, the output A2L file once every A2L object has been
// renamed.
func Run(job Job) (*Report, error) {
	cfg := job.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, p := range [][2]string{{job.InputELF, job.OutputELF}, {job.InputA2L, job.OutputA2L}} {
		if samePath(p[0], p[1]) {
			return nil, fmt.Errorf("%w: %s", ErrSamePath, p[1])
		}
	}

	s := &state{job: job, cfg: cfg}
	src := job.Source
	if src == nil {
		s.report.Seed = cfg.Seed
		if s.report.Seed == 0 {
			s.report.Seed = time.Now().UnixNano()
		}
		src = rand.NewSource(s.report.Seed)
	}
	s.gen = names.NewGenerator(src)
	s.table = names.NewTable(s.gen)
	defer func() {
		if s.obj != nil {
			s.obj.Close()
		}
	}()

	if err := newPipeline().Execute(s); err != nil {
		return nil, err
	}
	return &s.report, nil
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return aa == bb
}

func loadBinary(s *state) error {
	obj, err := objfile.Open(s.job.InputELF)
	if err != nil {
		return err
	}
	s.obj = obj
	s.secs, err = obj.DebugSections()
	return err
}

func rebuildDebugInfo(s *state) error {
	opts := dwarfobf.Options{
		FailUnimplemented:   s.cfg.UnimplementedForms == config.UnimplementedFail,
		ScrubPlainStrings:   s.cfg.ScrubPlainStrings,
		PreserveAddressBits: s.cfg.PreserveAddressBits,
		MaskCodeAddresses:   s.cfg.MaskCodeAddresses,
	}
	res, err := dwarfobf.Rebuild(s.secs, s.table, s.gen.Rand(), opts)
	if err != nil {
		return err
	}
	s.result = res
	s.report.DWARF = res.Stats
	s.report.Names = s.table.Len()
	if res.Stats.PlainString > 0 && !s.cfg.ScrubPlainStrings {
		logflags.DWARFLogger().Warnf("%d string attributes kept unchanged, enable scrub-plain-strings to obfuscate them", res.Stats.PlainString)
	}
	return nil
}

func writeBinary(s *state) error {
	s.obj.Strip()
	if err := s.obj.ReplaceSection(".debug_info", s.result.Info); err != nil {
		return err
	}
	if err := s.obj.ReplaceSection(".debug_abbrev", s.result.Abbrev); err != nil {
		return err
	}
	for _, name := range staleSections {
		if err := s.obj.ReplaceSection(name, nil); err != nil {
			return err
		}
	}
	return s.obj.WriteFile(s.job.OutputELF)
}

func indexDebugInfo(s *state) error {
	dd, err := debuginfo.Load(s.result.Info, s.result.Abbrev)
	if err != nil {
		return err
	}
	s.debug = dd
	s.report.Variables = dd.Len()
	return nil
}

func parseA2L(s *state) error {
	f, err := a2l.ParseFile(s.job.InputA2L)
	if err != nil {
		return err
	}
	s.a2l = f
	return nil
}

func obfuscateA2L(s *state) error {
	r, err := debuginfo.NewResolver(s.debug, s.table, s.cfg.SymbolCacheSize)
	if err != nil {
		return err
	}
	stats, err := a2lobf.Obfuscate(s.a2l, s.gen, r)
	if err != nil {
		return err
	}
	s.report.A2L = stats
	return nil
}

func writeA2L(s *state) error {
	return s.a2l.WriteFile(s.job.OutputA2L)
}

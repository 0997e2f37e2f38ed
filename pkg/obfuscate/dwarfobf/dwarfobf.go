// Package dwarfobf rebuilds the .debug_info section of a binary with every
// name replaced by a pseudonym and every static address masked.
//
// The rebuild makes two traversals of the input. The first one allocates an
// output entry for every input entry and records where each input offset
// went; the second one translates attributes, redirecting references
// through the recorded offsets.
package dwarfobf

import (
	"debug/dwarf"
	"errors"
	"fmt"
	"math/rand"
	"unicode/utf8"

	"github.com/a2lobf/a2lobf/pkg/dwarf/dwarfbuilder"
	"github.com/a2lobf/a2lobf/pkg/dwarf/godwarf"
	"github.com/a2lobf/a2lobf/pkg/dwarf/op"
	"github.com/a2lobf/a2lobf/pkg/logflags"
	"github.com/a2lobf/a2lobf/pkg/obfuscate/names"
)

var (
	// ErrBadUnitRoot is returned when a unit does not start with a compile
	// unit or partial unit entry.
	ErrBadUnitRoot = errors.New("unit does not start with a compile or partial unit entry")
	// ErrUnimplementedForm is returned, when configured to fail, for
	// attributes referencing the string offsets table, the address table,
	// a supplementary object file or a type unit.
	ErrUnimplementedForm = errors.New("unimplemented attribute form")
)

const (
	attrLinkageName     = dwarf.Attr(0x6e)
	attrMIPSLinkageName = dwarf.Attr(0x2007)
)

// Options controls how attributes without a single obvious translation are
// handled.
type Options struct {
	// FailUnimplemented aborts the rebuild on attributes in ErrUnimplementedForm
	// categories instead of dropping them.
	FailUnimplemented bool
	// ScrubPlainStrings substitutes every string attribute through the
	// table, not only names.
	ScrubPlainStrings bool
	// PreserveAddressBits is the number of low bits address masking keeps.
	PreserveAddressBits int
	// MaskCodeAddresses moves every address attribute, like the bounds of
	// a subprogram, by one random displacement. The low
	// PreserveAddressBits bits are kept and ranges keep their length.
	MaskCodeAddresses bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{PreserveAddressBits: 8}
}

// Stats counts what a rebuild did.
type Stats struct {
	Units       int
	Entries     int
	Renamed     int
	Masked      int
	Dropped     int
	PlainString int
}

// Result holds the rebuilt sections.
type Result struct {
	Info   []byte
	Abbrev []byte
	Stats  Stats
}

type entryRef struct {
	unit  dwarfbuilder.UnitID
	entry dwarfbuilder.EntryID
}

type rebuilder struct {
	secs  *godwarf.Sections
	table *names.Table
	rng   *rand.Rand
	opts  Options
	log   logflags.Logger
	shift uint64

	units  []*godwarf.Unit
	out    dwarfbuilder.Dwarf
	ids    []dwarfbuilder.UnitID
	local  []map[uint64]dwarfbuilder.EntryID
	global map[uint64]entryRef
	stats  Stats
}

// Rebuild reads the units of secs and returns the obfuscated .debug_info
// and .debug_abbrev sections. Names are substituted through table, which
// is left holding every original name seen.
func Rebuild(secs *godwarf.Sections, table *names.Table, rng *rand.Rand, opts Options) (*Result, error) {
	units, err := godwarf.ParseUnits(secs)
	if err != nil {
		return nil, err
	}
	r := &rebuilder{
		secs:   secs,
		table:  table,
		rng:    rng,
		opts:   opts,
		log:    logflags.DWARFLogger(),
		units:  units,
		global: make(map[uint64]entryRef),
	}
	if opts.MaskCodeAddresses {
		r.shift = MaskAddress(rng, 0, 8, opts.PreserveAddressBits)
	}
	for i, u := range units {
		if err := r.build(i, u); err != nil {
			return nil, err
		}
	}
	for i, u := range units {
		if err := r.transform(i, u); err != nil {
			return nil, err
		}
	}
	info, abbrev, err := r.out.Write(secs.Order)
	if err != nil {
		return nil, err
	}
	r.stats.Units = len(units)
	if logflags.DWARF() {
		r.log.Debugf("rebuilt %d units, %d entries: %d names, %d addresses, %d attributes dropped",
			r.stats.Units, r.stats.Entries, r.stats.Renamed, r.stats.Masked, r.stats.Dropped)
	}
	return &Result{Info: info, Abbrev: abbrev, Stats: r.stats}, nil
}

// build allocates the output entries of unit ui.
func (r *rebuilder) build(ui int, u *godwarf.Unit) error {
	local := make(map[uint64]dwarfbuilder.EntryID)
	r.local = append(r.local, local)

	var (
		uid   dwarfbuilder.UnitID
		out   *dwarfbuilder.Unit
		stack []dwarfbuilder.EntryID
		depth int
	)
	c := u.Entries()
	for {
		delta, e, err := c.NextDFS()
		if err != nil {
			return fmt.Errorf("unit at %#x: %w", u.Offset, err)
		}
		if e == nil {
			break
		}
		var id dwarfbuilder.EntryID
		if out == nil {
			if e.Tag != dwarf.TagCompileUnit && e.Tag != dwarf.TagPartialUnit {
				return fmt.Errorf("unit at %#x: root entry is %v: %w", u.Offset, e.Tag, ErrBadUnitRoot)
			}
			uid = r.out.AddUnit(u.Version, u.AddrSize, e.Tag)
			out = r.out.Unit(uid)
			id = out.Root()
		} else {
			depth += delta
			if depth < 1 || depth > len(stack) {
				return fmt.Errorf("unit at %#x: entry at %#x is outside of the unit root: %w", u.Offset, e.Offset, ErrBadUnitRoot)
			}
			stack = stack[:depth]
			id = out.Add(stack[depth-1], e.Tag)
		}
		stack = append(stack, id)
		local[e.UnitOffset] = id
		r.global[e.Offset] = entryRef{uid, id}
		r.stats.Entries++
	}
	if out == nil {
		return fmt.Errorf("unit at %#x: no entries: %w", u.Offset, ErrBadUnitRoot)
	}
	r.ids = append(r.ids, uid)
	return nil
}

// transform translates the attributes of unit ui.
func (r *rebuilder) transform(ui int, u *godwarf.Unit) error {
	out := r.out.Unit(r.ids[ui])
	c := u.Entries()
	for {
		_, e, err := c.NextDFS()
		if err != nil {
			return fmt.Errorf("unit at %#x: %w", u.Offset, err)
		}
		if e == nil {
			return nil
		}
		oe := out.Entry(r.local[ui][e.UnitOffset])
		for _, a := range e.Attrs {
			v, err := r.attr(ui, u, e, a)
			if err != nil {
				return fmt.Errorf("entry at %#x: attribute %v: %w", e.Offset, a.Attr, err)
			}
			if v == nil {
				r.stats.Dropped++
				continue
			}
			oe.Set(a.Attr, v)
		}
	}
}

func (r *rebuilder) drop(e *godwarf.Entry, a godwarf.Attr, why string) {
	if logflags.DWARF() {
		r.log.WithFields(logflags.Fields{"offset": fmt.Sprintf("%#x", e.Offset), "attr": a.Attr, "form": a.Form}).Debugf("dropped: %s", why)
	}
}

// attr returns the translation of a, or nil when it is dropped.
func (r *rebuilder) attr(ui int, u *godwarf.Unit, e *godwarf.Entry, a godwarf.Attr) (dwarfbuilder.AttrValue, error) {
	switch v := a.Val.(type) {
	case godwarf.Data1:
		return dwarfbuilder.Data1(v), nil
	case godwarf.Data2:
		return dwarfbuilder.Data2(v), nil
	case godwarf.Data4:
		return dwarfbuilder.Data4(v), nil
	case godwarf.Data8:
		return dwarfbuilder.Data8(v), nil
	case godwarf.Data16:
		return dwarfbuilder.Data16(v), nil
	case godwarf.Sdata:
		return dwarfbuilder.Sdata(v), nil
	case godwarf.Udata:
		return dwarfbuilder.Udata(v), nil
	case godwarf.Flag:
		return dwarfbuilder.Flag(v), nil
	case godwarf.Addr:
		if r.opts.MaskCodeAddresses {
			r.stats.Masked++
			return dwarfbuilder.Address(displace(uint64(v), r.shift, u.AddrSize)), nil
		}
		return dwarfbuilder.Address(v), nil
	case godwarf.Block:
		return dwarfbuilder.Block(v), nil

	case godwarf.UnitRef:
		id, ok := r.local[ui][uint64(v)]
		if !ok {
			r.drop(e, a, fmt.Sprintf("no entry at unit offset %#x", uint64(v)))
			return nil, nil
		}
		return dwarfbuilder.UnitRef{Entry: id}, nil
	case godwarf.DebugInfoRef:
		ref, ok := r.global[uint64(v)]
		if !ok {
			r.drop(e, a, fmt.Sprintf("no entry at section offset %#x", uint64(v)))
			return nil, nil
		}
		return dwarfbuilder.DebugInfoRef{Unit: ref.unit, Entry: ref.entry}, nil

	case godwarf.String:
		return r.str(e, a, []byte(v), nil), nil
	case godwarf.DebugStrRef:
		s, err := godwarf.CString(r.secs.Str, uint64(v))
		return r.str(e, a, s, err), nil
	case godwarf.DebugLineStrRef:
		s, err := godwarf.CString(r.secs.LineStr, uint64(v))
		return r.str(e, a, s, err), nil

	case godwarf.Exprloc:
		return r.expr(u, e, a, v), nil

	case godwarf.SecOffset, godwarf.DebugLocListsIndex, godwarf.DebugRngListsIndex:
		r.drop(e, a, "points into a section that is not rebuilt")
		return nil, nil

	case godwarf.DebugStrOffsetsIndex, godwarf.DebugAddrIndex, godwarf.DebugInfoRefSup,
		godwarf.DebugStrRefSup, godwarf.DebugTypesRef:
		if r.opts.FailUnimplemented {
			return nil, fmt.Errorf("%v: %w", a.Form, ErrUnimplementedForm)
		}
		r.log.WithFields(logflags.Fields{"offset": fmt.Sprintf("%#x", e.Offset), "attr": a.Attr, "form": a.Form}).Warnf("dropped attribute with unimplemented form")
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected value type %T", a.Val)
}

func (r *rebuilder) str(e *godwarf.Entry, a godwarf.Attr, s []byte, err error) dwarfbuilder.AttrValue {
	if err != nil {
		r.drop(e, a, err.Error())
		return nil
	}
	if !utf8.Valid(s) {
		r.drop(e, a, "invalid UTF-8")
		return nil
	}
	switch a.Attr {
	case dwarf.AttrName, attrLinkageName, attrMIPSLinkageName:
		r.stats.Renamed++
		return dwarfbuilder.String(r.table.Obfuscate(string(s)))
	case dwarf.AttrCompDir, dwarf.AttrProducer:
		r.drop(e, a, "build provenance")
		return nil
	}
	if r.opts.ScrubPlainStrings {
		return dwarfbuilder.String(r.table.Obfuscate(string(s)))
	}
	r.stats.PlainString++
	r.log.WithFields(logflags.Fields{"offset": fmt.Sprintf("%#x", e.Offset), "attr": a.Attr}).Warnf("string attribute kept unobfuscated")
	return dwarfbuilder.String(s)
}

// expr masks the address computed by an address-bearing expression.
// Expressions without DW_OP_addr are copied.
func (r *rebuilder) expr(u *godwarf.Unit, e *godwarf.Entry, a godwarf.Attr, prog []byte) dwarfbuilder.AttrValue {
	order := r.secs.Order
	indexed, err := op.Contains(prog, order, u.AddrSize, u.OffsetSize(),
		op.DW_OP_addrx, op.DW_OP_constx, op.DW_OP_GNU_addr_index, op.DW_OP_GNU_const_index)
	if err != nil {
		r.drop(e, a, err.Error())
		return nil
	}
	if indexed {
		r.drop(e, a, "expression uses the address table")
		return nil
	}
	hasAddr, _ := op.Contains(prog, order, u.AddrSize, u.OffsetSize(), op.DW_OP_addr)
	if !hasAddr {
		return dwarfbuilder.Exprloc(prog)
	}
	addr, pieces, err := op.ExecuteStackProgram(op.DwarfRegisters{StaticBase: 0, ByteOrder: order}, prog, u.AddrSize)
	if err != nil {
		r.drop(e, a, err.Error())
		return nil
	}
	if pieces != nil {
		r.drop(e, a, "expression does not evaluate to a single address")
		return nil
	}
	masked := MaskAddress(r.rng, uint64(addr), u.AddrSize, r.opts.PreserveAddressBits)
	r.stats.Masked++
	return dwarfbuilder.Exprloc(dwarfbuilder.LocationBlock(order, u.AddrSize, op.DW_OP_addr, dwarfbuilder.Address(masked)))
}

// displace adds shift to addr modulo the address size.
func displace(addr, shift uint64, ptrSize int) uint64 {
	a := addr + shift
	if ptrSize < 8 {
		a &= uint64(1)<<uint(ptrSize*8) - 1
	}
	return a
}

// MaskAddress replaces the bits of addr above the low keep bits with
// random bits, within an address of ptrSize bytes.
func MaskAddress(rng *rand.Rand, addr uint64, ptrSize, keep int) uint64 {
	width := ptrSize * 8
	if keep > width {
		keep = width
	}
	if keep < 0 {
		keep = 0
	}
	low := uint64(1)<<uint(keep) - 1
	if keep == 64 {
		low = ^uint64(0)
	}
	random := rng.Uint64()
	if width < 64 {
		random &= uint64(1)<<uint(width) - 1
	}
	return random&^low | addr&low
}

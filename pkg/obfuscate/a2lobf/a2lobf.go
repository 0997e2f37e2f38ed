// Package a2lobf renames the calibration objects of an A2L file and
// repairs every reference to them.
//
// Categories are renamed in a fixed order. Each category gets its own
// rename table which is applied to every field referencing that category
// as soon as the table is complete. References that do not name an
// object of the category are obfuscated on their own, so that no original
// name survives.
package a2lobf

import (
	"fmt"

	"github.com/a2lobf/a2lobf/pkg/a2l"
	"github.com/a2lobf/a2lobf/pkg/a2l/ifdata"
	"github.com/a2lobf/a2lobf/pkg/debuginfo"
	"github.com/a2lobf/a2lobf/pkg/logflags"
	"github.com/a2lobf/a2lobf/pkg/obfuscate/names"
)

// Reserved names that never refer to an object.
const (
	NoCompuMethod   = "NO_COMPU_METHOD"
	NoInputQuantity = "NO_INPUT_QUANTITY"
)

// SymbolResolver maps a symbol name of the A2L file to the name the
// symbol has in the obfuscated binary.
type SymbolResolver interface {
	Find(name string) (debuginfo.SymbolInfo, error)
}

// Stats counts what Obfuscate did.
type Stats struct {
	Renamed           map[string]int
	Repaired          int
	Unresolved        int
	SymbolsResolved   int
	SymbolsUnresolved int
}

type engine struct {
	gen      *names.Generator
	fallback *names.Table
	syms     SymbolResolver
	log      logflags.Logger
	stats    *Stats

	pending []*pendingRef
}

// pendingRef is an entry of a list that may name objects of several
// categories.
type pendingRef struct {
	tok  *a2l.Token
	cats []string
	done bool
}

// Obfuscate renames every object of f in place. Symbol links are resolved
// through syms, which may be nil when no debug info is available.
func Obfuscate(f *a2l.File, gen *names.Generator, syms SymbolResolver) (*Stats, error) {
	e := &engine{
		gen:      gen,
		fallback: names.NewTable(gen),
		syms:     syms,
		log:      logflags.A2LLogger(),
		stats:    &Stats{Renamed: make(map[string]int)},
	}

	p := f.Project()
	if p == nil {
		return nil, fmt.Errorf("%s: no PROJECT block", f.Name)
	}
	e.identifier(p.Arg(0))
	e.label(p.Arg(1))
	if h := p.Child("HEADER"); h != nil {
		e.label(h.Arg(0))
		if pn := h.Child("PROJECT_NO"); pn != nil {
			e.identifier(pn.Arg(0))
		}
	}

	for _, m := range p.ChildrenOf("MODULE") {
		e.identifier(m.Arg(0))
		e.label(m.Arg(1))
		if err := e.module(m); err != nil {
			return nil, err
		}
	}

	if logflags.A2L() {
		e.log.Debugf("renamed %v, repaired %d references, %d unresolved, symbol links %d resolved %d unresolved",
			e.stats.Renamed, e.stats.Repaired, e.stats.Unresolved, e.stats.SymbolsResolved, e.stats.SymbolsUnresolved)
	}
	return e.stats, nil
}

func (e *engine) identifier(t *a2l.Token) {
	switch {
	case t == nil:
	case t.Kind == a2l.String:
		t.Text = e.gen.Quoted(t.Text)
	default:
		t.Text = e.gen.Identifier(t.Text)
	}
}

func (e *engine) label(t *a2l.Token) {
	if t != nil {
		t.Text = e.gen.Label(t.Text)
	}
}

func zeroAddress(t *a2l.Token) {
	if t == nil {
		return
	}
	if t.IsHex() {
		t.Text = "0x0"
	} else {
		t.Text = "0"
	}
}

// unresolved obfuscates a reference that does not name a renamed object.
func (e *engine) unresolved(t *a2l.Token, what string) {
	if logflags.A2L() {
		e.log.WithFields(logflags.Fields{"line": t.Line, "col": t.Col}).Debugf("unresolved %s reference", what)
	}
	t.Text = e.fallback.Obfuscate(t.Text)
	e.stats.Unresolved++
}

// repair rewrites t through table. The reserved name, if not empty, is
// left alone.
func (e *engine) repair(t *a2l.Token, table map[string]string, what, reserved string) {
	if t == nil || (reserved != "" && t.Text == reserved) {
		return
	}
	if nn, ok := table[t.Text]; ok {
		t.Text = nn
		e.stats.Repaired++
		return
	}
	e.unresolved(t, what)
}

func (e *engine) repairItems(n *a2l.Node, table map[string]string, what string) {
	if n == nil {
		return
	}
	items := n.Items()
	for i := range items {
		e.repair(&items[i], table, what, "")
	}
}

// resolvePending applies the table of category cat to the pending list
// entries naming it. Entries still unresolved after their last candidate
// category are obfuscated on their own.
func (e *engine) resolvePending(cat string, table map[string]string) {
	for _, p := range e.pending {
		if p.done || !contains(p.cats, cat) {
			continue
		}
		if nn, ok := table[p.tok.Text]; ok {
			p.tok.Text = nn
			p.done = true
			e.stats.Repaired++
			continue
		}
		if p.cats[len(p.cats)-1] == cat {
			e.unresolved(p.tok, cat)
			p.done = true
		}
	}
}

func contains(s []string, x string) bool {
	for _, y := range s {
		if y == x {
			return true
		}
	}
	return false
}

// symbol rewrites a symbol name so that it names the same object in the
// obfuscated binary.
func (e *engine) symbol(name string) string {
	if e.syms != nil {
		if si, err := e.syms.Find(name); err == nil {
			e.stats.SymbolsResolved++
			return si.Name
		}
	}
	e.stats.SymbolsUnresolved++
	if logflags.A2L() {
		e.log.Debugf("symbol link not found in debug info, obfuscated on its own")
	}
	return e.fallback.Obfuscate(name)
}

// symbolLinks rewrites the SYMBOL_LINK and the CANAPE_EXT link map of a
// calibration object and clears the address of the link map.
func (e *engine) symbolLinks(n *a2l.Node) error {
	if sl := n.Child("SYMBOL_LINK"); sl != nil {
		if t := sl.Arg(0); t != nil {
			t.Text = e.symbol(t.Text)
		}
	}
	for _, c := range n.ChildrenOf("IF_DATA") {
		ce, err := ifdata.Decode(c)
		if err != nil {
			return fmt.Errorf("%s %s at %d:%d: %w", n.Keyword, n.Name(), c.Line, c.Col, err)
		}
		if ce == nil || ce.LinkMap == nil {
			continue
		}
		ce.LinkMap.SymbolName = e.symbol(ce.LinkMap.SymbolName)
		ce.LinkMap.Address = 0
		ce.Store()
	}
	return nil
}

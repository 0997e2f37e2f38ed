// Package debuginfo indexes the global variables of a debug info and
// correlates A2L symbol names with them.
package debuginfo

import (
	"debug/dwarf"
	"errors"
	"fmt"

	"github.com/derekparker/trie"

	"github.com/a2lobf/a2lobf/pkg/dwarf/reader"
	"github.com/a2lobf/a2lobf/pkg/logflags"
)

// Variable is a global variable of the debug info.
type Variable struct {
	Name    string
	Offset  dwarf.Offset
	Type    dwarf.Type
	Address uint64
	// HasAddress is false when the location is missing or is not a
	// single fixed address.
	HasAddress bool
}

// DebugData holds the variables of a debug info indexed by name.
type DebugData struct {
	dwarf *dwarf.Data
	vars  *trie.Trie
	n     int
}

// Load indexes the debug info described by .debug_info and .debug_abbrev
// contents.
func Load(info, abbrev []byte) (*DebugData, error) {
	d, err := dwarf.New(abbrev, nil, nil, info, nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("could not read debug info: %w", err)
	}
	return New(d)
}

// New indexes d.
func New(d *dwarf.Data) (*DebugData, error) {
	dd := &DebugData{dwarf: d, vars: trie.New()}
	log := logflags.SymbolsLogger()

	rdr := reader.New(d)
	for {
		e, err := rdr.NextGlobalVariable()
		if err != nil {
			return nil, fmt.Errorf("could not read debug info: %w", err)
		}
		if e == nil {
			break
		}
		v, ok := dd.variable(rdr, e)
		if !ok {
			continue
		}
		if _, dup := dd.vars.Find(v.Name); dup {
			if logflags.Symbols() {
				log.Debugf("duplicate variable %s at %#x ignored", v.Name, v.Offset)
			}
			continue
		}
		dd.vars.Add(v.Name, v)
		dd.n++
	}
	if logflags.Symbols() {
		log.Debugf("indexed %d variables", dd.n)
	}
	return dd, nil
}

func (dd *DebugData) variable(rdr *reader.Reader, e *dwarf.Entry) (*Variable, bool) {
	name, _ := e.Val(dwarf.AttrName).(string)
	if name == "" {
		return nil, false
	}
	v := &Variable{Name: name, Offset: e.Offset}
	if toff, ok := e.Val(dwarf.AttrType).(dwarf.Offset); ok {
		typ, err := dd.dwarf.Type(toff)
		if err != nil {
			if logflags.Symbols() {
				logflags.SymbolsLogger().Debugf("variable %s: %v", name, err)
			}
		} else {
			v.Type = typ
		}
	}
	if addr, err := rdr.AddrForEntry(e); err == nil {
		v.Address, v.HasAddress = addr, true
	}
	return v, true
}

// Variable returns the variable called name.
func (dd *DebugData) Variable(name string) (*Variable, bool) {
	n, ok := dd.vars.Find(name)
	if !ok {
		return nil, false
	}
	return n.Meta().(*Variable), true
}

// Len returns the number of indexed variables.
func (dd *DebugData) Len() int {
	return dd.n
}

// ErrSymbolNotFound is returned when a symbol name can not be correlated
// with the debug info.
var ErrSymbolNotFound = errors.New("symbol not found")

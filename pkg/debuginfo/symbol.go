package debuginfo

import (
	"debug/dwarf"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/a2lobf/a2lobf/pkg/logflags"
	"github.com/a2lobf/a2lobf/pkg/obfuscate/names"
)

// SymbolInfo describes a symbol name resolved against the debug info.
type SymbolInfo struct {
	// Name is the symbol name spelled with obfuscated identifiers.
	Name     string
	Variable *Variable
	// Type is the type of the addressed object, nil when unknown.
	Type dwarf.Type
	// Offset is the byte offset of the addressed object from the start
	// of the variable, when every member and index on the path is known.
	Offset int64
}

type component struct {
	ident   string
	indices []string
}

// splitSymbol splits a symbol name like "a.b[2][3].c" into its
// components.
func splitSymbol(name string) ([]component, error) {
	parts := strings.Split(name, ".")
	comps := make([]component, 0, len(parts))
	for _, p := range parts {
		var c component
		i := strings.IndexByte(p, '[')
		if i < 0 {
			c.ident = p
		} else {
			c.ident = p[:i]
			rest := p[i:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("malformed index in %q", name)
				}
				j := strings.IndexByte(rest, ']')
				if j < 0 {
					return nil, fmt.Errorf("malformed index in %q", name)
				}
				c.indices = append(c.indices, rest[1:j])
				rest = rest[j+1:]
			}
		}
		if c.ident == "" {
			return nil, fmt.Errorf("empty component in %q", name)
		}
		comps = append(comps, c)
	}
	return comps, nil
}

func (c component) spell(ident string) string {
	var sb strings.Builder
	sb.WriteString(ident)
	for _, idx := range c.indices {
		sb.WriteByte('[')
		sb.WriteString(idx)
		sb.WriteByte(']')
	}
	return sb.String()
}

// FindSymbol resolves the A2L symbol name against the obfuscated debug
// info. Every identifier of name must have a pseudonym in table, the
// first one must name a variable of data and each following one a member
// of the structure reached so far. Index suffixes are kept verbatim.
func FindSymbol(name string, data *DebugData, table names.Lookup) (SymbolInfo, error) {
	comps, err := splitSymbol(name)
	if err != nil {
		return SymbolInfo{}, fmt.Errorf("%w: %v", ErrSymbolNotFound, err)
	}
	spelled := make([]string, len(comps))
	pseudo := make([]string, len(comps))
	for i, c := range comps {
		p, ok := table.Lookup(c.ident)
		if !ok {
			return SymbolInfo{}, fmt.Errorf("%w: %s: no pseudonym for %s", ErrSymbolNotFound, name, c.ident)
		}
		pseudo[i] = p
		spelled[i] = c.spell(p)
	}

	v, ok := data.Variable(pseudo[0])
	if !ok {
		return SymbolInfo{}, fmt.Errorf("%w: %s: no variable %s", ErrSymbolNotFound, name, comps[0].ident)
	}
	si := SymbolInfo{Name: strings.Join(spelled, "."), Variable: v, Type: v.Type}

	typ, known, ok := index(v.Type, comps[0].indices, &si.Offset, v.Type != nil)
	if !ok {
		return SymbolInfo{}, fmt.Errorf("%w: %s: %s is not an array", ErrSymbolNotFound, name, comps[0].ident)
	}
	for i := 1; i < len(comps); i++ {
		if typ == nil {
			return SymbolInfo{}, fmt.Errorf("%w: %s: %s has no type information", ErrSymbolNotFound, name, comps[i-1].ident)
		}
		st, isStruct := resolveTypedef(typ).(*dwarf.StructType)
		if !isStruct {
			return SymbolInfo{}, fmt.Errorf("%w: %s: %s is not a structure", ErrSymbolNotFound, name, comps[i-1].ident)
		}
		var field *dwarf.StructField
		for _, f := range st.Field {
			if f.Name == pseudo[i] {
				field = f
				break
			}
		}
		if field == nil {
			return SymbolInfo{}, fmt.Errorf("%w: %s: no member %s", ErrSymbolNotFound, name, comps[i].ident)
		}
		si.Offset += field.ByteOffset
		typ, known, ok = index(field.Type, comps[i].indices, &si.Offset, known)
		if !ok {
			return SymbolInfo{}, fmt.Errorf("%w: %s: %s is not an array", ErrSymbolNotFound, name, comps[i].ident)
		}
	}
	si.Type = typ
	if !known {
		si.Offset = -1
	}
	return si, nil
}

// index steps through the array types of typ once per index and adds the
// element offsets to off. Indices that are not numbers make the offset
// unknown. Indexing a type that is known not to be an array fails.
func index(typ dwarf.Type, indices []string, off *int64, known bool) (dwarf.Type, bool, bool) {
	for _, idx := range indices {
		if typ == nil {
			return nil, false, true
		}
		at, ok := resolveTypedef(typ).(*dwarf.ArrayType)
		if !ok {
			return typ, known, false
		}
		typ = at.Type
		var n int64
		if _, err := fmt.Sscan(idx, &n); err != nil || typ == nil || typ.Size() < 0 {
			known = false
			continue
		}
		*off += n * typ.Size()
	}
	return typ, known, true
}

func resolveTypedef(typ dwarf.Type) dwarf.Type {
	for {
		switch tt := typ.(type) {
		case *dwarf.TypedefType:
			typ = tt.Type
		case *dwarf.QualType:
			typ = tt.Type
		default:
			return typ
		}
	}
}

// Resolver memoizes FindSymbol for one run.
type Resolver struct {
	data  *DebugData
	table names.Lookup
	cache *lru.Cache
}

type resolved struct {
	si  SymbolInfo
	err error
}

// DefaultCacheSize is the number of symbol names remembered by a Resolver
// when no size is configured.
const DefaultCacheSize = 1024

// NewResolver returns a Resolver over data and table remembering up to
// size symbol names.
func NewResolver(data *DebugData, table names.Lookup, size int) (*Resolver, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Resolver{data: data, table: table, cache: cache}, nil
}

// Find resolves name, see FindSymbol.
func (r *Resolver) Find(name string) (SymbolInfo, error) {
	if v, ok := r.cache.Get(name); ok {
		res := v.(resolved)
		return res.si, res.err
	}
	si, err := FindSymbol(name, r.data, r.table)
	if logflags.Symbols() {
		if err != nil {
			logflags.SymbolsLogger().Debugf("%v", err)
		} else {
			logflags.SymbolsLogger().Debugf("%s -> %s", name, si.Name)
		}
	}
	r.cache.Add(name, resolved{si, err})
	return si, err
}

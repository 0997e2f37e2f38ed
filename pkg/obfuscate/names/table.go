package names

// Lookup is the read-only view of a Table.
type Lookup interface {
	// Lookup returns the pseudonym recorded for original.
	Lookup(original string) (string, bool)
	// Len returns the number of recorded originals.
	Len() int
}

// Table maps original strings to pseudonyms for the duration of a run.
// The same original always gets the same pseudonym and two originals never
// share one, unless every pseudonym of their shape is taken.
type Table struct {
	gen  *Generator
	fwd  map[string]string
	used map[string]struct{}
}

// NewTable returns an empty table generating pseudonyms with gen.
func NewTable(gen *Generator) *Table {
	return &Table{
		gen:  gen,
		fwd:  make(map[string]string),
		used: make(map[string]struct{}),
	}
}

// Obfuscate returns the pseudonym of s, generating and recording one the
// first time s is seen.
func (t *Table) Obfuscate(s string) string {
	if p, ok := t.fwd[s]; ok {
		return p
	}
	p := t.gen.Identifier(s)
	for i := 0; i < maxAttempts; i++ {
		if _, taken := t.used[p]; !taken {
			break
		}
		p = t.gen.Identifier(s)
	}
	t.fwd[s] = p
	t.used[p] = struct{}{}
	return p
}

func (t *Table) Lookup(original string) (string, bool) {
	p, ok := t.fwd[original]
	return p, ok
}

func (t *Table) Len() int {
	return len(t.fwd)
}

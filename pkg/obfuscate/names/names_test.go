package names

import (
	mathrand "math/rand"
	"testing"
	"unicode"

	"github.com/go-quicktest/qt"
)

func newGen(seed int64) *Generator {
	return NewGenerator(mathrand.NewSource(seed))
}

func checkShape(t *testing.T, in, out string) {
	t.Helper()
	qt.Assert(t, qt.Equals(len(out), len(in)))
	for i := 0; i < len(in); i++ {
		a, b := rune(in[i]), rune(out[i])
		isLetter := a < unicode.MaxASCII && unicode.IsLetter(a)
		if isLetter {
			qt.Assert(t, qt.IsTrue(unicode.IsLetter(b)), qt.Commentf("position %d of %q -> %q", i, in, out))
			qt.Assert(t, qt.Equals(unicode.IsUpper(b), unicode.IsUpper(a)), qt.Commentf("case at %d of %q -> %q", i, in, out))
		} else {
			qt.Assert(t, qt.Equals(b, a), qt.Commentf("position %d of %q -> %q", i, in, out))
		}
	}
}

func TestIdentifierShape(t *testing.T) {
	g := newGen(42)
	for _, in := range []string{
		"Abc.foo[33]",
		"engineSpeed",
		"EngSpeed_rpm",
		"a",
		"_1",
		"",
		"x.y[0][1]._z",
		"CamelCase2Go",
	} {
		out := g.Identifier(in)
		checkShape(t, in, out)
		if hasLetter(in) {
			qt.Assert(t, qt.Not(qt.Equals(out, in)))
		}
	}
}

func TestQuotedKeepsEscapes(t *testing.T) {
	g := newGen(5)
	tests := []struct {
		in   string
		keep []int
	}{
		{`line\nbreak`, []int{4, 5}},
		{`a\"b`, []int{1, 2}},
		{`\x4Fk`, []int{0, 1, 2, 3}},
		{`tab\t`, []int{3, 4}},
		{`end\\`, []int{3, 4}},
	}
	for _, tc := range tests {
		out := g.Quoted(tc.in)
		qt.Assert(t, qt.Equals(len(out), len(tc.in)))
		for _, i := range tc.keep {
			qt.Assert(t, qt.Equals(out[i], tc.in[i]), qt.Commentf("position %d of %q -> %q", i, tc.in, out))
		}
		qt.Assert(t, qt.Not(qt.Equals(out, tc.in)))
	}
	checkShape(t, `a\n`, g.Identifier(`a\n`))
}

func TestSymbols(t *testing.T) {
	g := newGen(1)
	out := g.Symbols("km/h")
	qt.Assert(t, qt.Equals(len(out), 4))
	for _, c := range out {
		qt.Assert(t, qt.StringContains(symbolChars, string(c)))
	}
	qt.Assert(t, qt.Equals(g.Symbols(""), ""))
}

func TestLabel(t *testing.T) {
	g := newGen(7)
	qt.Assert(t, qt.Equals(g.Label(""), ""))
	for i := 0; i < 100; i++ {
		l := g.Label("Engine speed in revolutions per minute")
		qt.Assert(t, qt.Not(qt.Equals(l, "")))
		qt.Assert(t, qt.IsTrue(unicode.IsUpper(rune(l[0]))))
		qt.Assert(t, qt.Not(qt.StringContains(l, "Engine")))
	}
}

func TestDeterministic(t *testing.T) {
	a, b := newGen(99), newGen(99)
	for _, s := range []string{"one", "Two", "three_3"} {
		qt.Assert(t, qt.Equals(a.Identifier(s), b.Identifier(s)))
	}
}

func TestTable(t *testing.T) {
	tab := NewTable(newGen(3))
	p := tab.Obfuscate("engineSpeed")
	checkShape(t, "engineSpeed", p)
	qt.Assert(t, qt.Equals(tab.Obfuscate("engineSpeed"), p))

	got, ok := tab.Lookup("engineSpeed")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(got, p))
	_, ok = tab.Lookup("other")
	qt.Assert(t, qt.IsFalse(ok))

	var l Lookup = tab
	qt.Assert(t, qt.Equals(l.Len(), 1))
}

func TestTableInjective(t *testing.T) {
	// Two letter lowercase names: 676 pseudonyms for 200 originals
	// collide quickly without retries.
	tab := NewTable(newGen(5))
	seen := make(map[string]string)
	for i := 0; i < 200; i++ {
		orig := string([]byte{'a' + byte(i/26), 'a' + byte(i%26)})
		p := tab.Obfuscate(orig)
		if prev, dup := seen[p]; dup {
			t.Fatalf("%q and %q share pseudonym %q", prev, orig, p)
		}
		seen[p] = orig
	}
	qt.Assert(t, qt.Equals(tab.Len(), 200))
}

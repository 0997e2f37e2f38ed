// Package names generates pseudonyms for identifiers and keeps the
// original to pseudonym mapping of a run.
package names

import (
	"math/rand"
	"strings"
)

const symbolChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-/?!"

// maxAttempts bounds the retries made to find a pseudonym that differs
// from the original and from every pseudonym handed out before.
const maxAttempts = 64

// Generator draws pseudonyms from a random source. It is not safe for
// concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator reading from src.
func NewGenerator(src rand.Source) *Generator {
	return &Generator{rng: rand.New(src)}
}

// Rand returns the random source of g, for callers that need random
// numbers from the same stream.
func (g *Generator) Rand() *rand.Rand {
	return g.rng
}

// Identifier returns a pseudonym with the shape of s: every ASCII letter
// is replaced by a random letter of the same case, every other byte is
// kept. The result differs from s whenever s contains a letter.
func (g *Generator) Identifier(s string) string {
	return g.reshape(s, false)
}

// Quoted is like Identifier for the content of a quoted string: the
// escape sequences of s are kept as they are.
func (g *Generator) Quoted(s string) string {
	return g.reshape(s, true)
}

func (g *Generator) reshape(s string, escapes bool) string {
	r := g.shape(s, escapes)
	for i := 0; r == s && i < maxAttempts && hasLetter(s); i++ {
		r = g.shape(s, escapes)
	}
	return r
}

func (g *Generator) shape(s string, escapes bool) string {
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		c := b[i]
		if escapes && c == '\\' {
			i = escapeEnd(b, i)
			continue
		}
		switch {
		case c >= 'A' && c <= 'Z':
			b[i] = 'A' + byte(g.rng.Intn(26))
		case c >= 'a' && c <= 'z':
			b[i] = 'a' + byte(g.rng.Intn(26))
		}
	}
	return string(b)
}

// escapeEnd returns the index of the last byte of the escape sequence
// starting at b[i].
func escapeEnd(b []byte, i int) int {
	i++
	if i >= len(b) {
		return i
	}
	switch c := b[i]; {
	case c == 'x':
		for n := 0; n < 2 && i+1 < len(b) && isHexDigit(b[i+1]); n++ {
			i++
		}
	case c >= '0' && c <= '7':
		for n := 0; n < 2 && i+1 < len(b) && b[i+1] >= '0' && b[i+1] <= '7'; n++ {
			i++
		}
	}
	return i
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hasLetter(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			return true
		}
	}
	return false
}

// Symbols returns a string of the same length as s made of letters,
// digits and the characters _-/?!.
func (g *Generator) Symbols(s string) string {
	b := make([]byte, len(s))
	for i := range b {
		b[i] = symbolChars[g.rng.Intn(len(symbolChars))]
	}
	return string(b)
}

// Label returns free text replacing the description s: one to five
// lowercase words of two to nine letters, the first one capitalized. An
// empty description stays empty.
func (g *Generator) Label(s string) string {
	if s == "" {
		return ""
	}
	n := 1 + g.rng.Intn(5)
	words := make([]string, n)
	for i := range words {
		w := make([]byte, 2+g.rng.Intn(8))
		for j := range w {
			w[j] = 'a' + byte(g.rng.Intn(26))
		}
		words[i] = string(w)
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}

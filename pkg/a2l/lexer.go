package a2l

import (
	"fmt"
	"strings"
)

// TokenKind classifies tokens.
type TokenKind uint8

const (
	Ident TokenKind = iota
	String
	Number
	Begin // /begin
	End   // /end
	Include
	Punct // A2ML punctuation
)

func (k TokenKind) String() string {
	switch k {
	case Ident:
		return "identifier"
	case String:
		return "string"
	case Number:
		return "number"
	case Begin:
		return "/begin"
	case End:
		return "/end"
	case Include:
		return "/include"
	case Punct:
		return "punctuation"
	}
	return fmt.Sprintf("TokenKind(%d)", uint8(k))
}

// Token is a lexical element of an A2L file. Text is the spelling of the
// token; for strings it is the content between the quotes, escapes
// included and not interpreted.
type Token struct {
	Kind TokenKind
	Text string
	Line int
	Col  int
}

// IsHex reports whether t is a number written in hexadecimal.
func (t *Token) IsHex() bool {
	return t.Kind == Number && (strings.HasPrefix(t.Text, "0x") || strings.HasPrefix(t.Text, "0X"))
}

func (t *Token) spelling() string {
	switch t.Kind {
	case String:
		return `"` + t.Text + `"`
	case Begin:
		return "/begin"
	case End:
		return "/end"
	case Include:
		return "/include"
	}
	return t.Text
}

// ParseError is returned for malformed input.
type ParseError struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
}

type lexer struct {
	file string
	src  string
	pos  int
	line int
	col  int
}

func (l *lexer) errorf(line, col int, format string, args ...interface{}) error {
	return &ParseError{File: l.file, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '.' || c == '[' || c == ']'
}

// tokenize splits src into tokens. Comments are discarded.
func tokenize(file, src string) ([]Token, error) {
	l := &lexer{file: file, src: src, line: 1, col: 1}
	var toks []Token
	for {
		// whitespace and comments
		for l.pos < len(l.src) {
			c := l.src[l.pos]
			if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v' {
				l.advance(1)
				continue
			}
			if c == '/' && l.peekByte(1) == '*' {
				line, col := l.line, l.col
				end := strings.Index(l.src[l.pos+2:], "*/")
				if end < 0 {
					return nil, l.errorf(line, col, "unterminated comment")
				}
				l.advance(end + 4)
				continue
			}
			if c == '/' && l.peekByte(1) == '/' {
				end := strings.IndexByte(l.src[l.pos:], '\n')
				if end < 0 {
					end = len(l.src) - l.pos
				}
				l.advance(end)
				continue
			}
			break
		}
		if l.pos >= len(l.src) {
			return toks, nil
		}

		line, col := l.line, l.col
		c := l.src[l.pos]
		start := l.pos
		switch {
		case c == '/':
			n := 1
			for isLetter(l.peekByte(n)) {
				n++
			}
			word := l.src[l.pos+1 : l.pos+n]
			var kind TokenKind
			switch word {
			case "begin":
				kind = Begin
			case "end":
				kind = End
			case "include":
				kind = Include
			default:
				return nil, l.errorf(line, col, "unexpected %q", l.src[l.pos:l.pos+n])
			}
			l.advance(n)
			toks = append(toks, Token{Kind: kind, Text: "/" + word, Line: line, Col: col})

		case c == '"':
			i := l.pos + 1
			for ; i < len(l.src); i++ {
				if l.src[i] == '\\' {
					i++
					continue
				}
				if l.src[i] == '"' {
					break
				}
			}
			if i >= len(l.src) {
				return nil, l.errorf(line, col, "unterminated string")
			}
			text := l.src[l.pos+1 : i]
			l.advance(i + 1 - l.pos)
			toks = append(toks, Token{Kind: String, Text: text, Line: line, Col: col})

		case isDigit(c) || ((c == '-' || c == '+' || c == '.') && (isDigit(l.peekByte(1)) || (l.peekByte(1) == '.' && isDigit(l.peekByte(2))))):
			i := l.pos + 1
			hex := c == '0' && (l.peekByte(1) == 'x' || l.peekByte(1) == 'X')
			for i < len(l.src) {
				d := l.src[i]
				if isDigit(d) || isLetter(d) || d == '.' {
					i++
					continue
				}
				if (d == '+' || d == '-') && !hex && (l.src[i-1] == 'e' || l.src[i-1] == 'E') {
					i++
					continue
				}
				break
			}
			l.advance(i - start)
			toks = append(toks, Token{Kind: Number, Text: l.src[start:i], Line: line, Col: col})

		case isLetter(c):
			i := l.pos + 1
			for i < len(l.src) && isIdentChar(l.src[i]) {
				i++
			}
			l.advance(i - start)
			toks = append(toks, Token{Kind: Ident, Text: l.src[start:i], Line: line, Col: col})

		case strings.IndexByte("{}[]();,=*<>:|-+", c) >= 0:
			l.advance(1)
			toks = append(toks, Token{Kind: Punct, Text: string(c), Line: line, Col: col})

		default:
			return nil, l.errorf(line, col, "unexpected character %q", c)
		}
	}
}

package a2l

import (
	"fmt"
	"io"
	"os"
)

// ParseFile parses the A2L file at path.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(path, data)
}

// Parse parses an A2L document read from r. The name is only used in
// error messages.
func Parse(name string, r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseBytes(name, data)
}

// ParseBytes parses an A2L document. Malformed input returns a
// *ParseError.
func ParseBytes(name string, data []byte) (*File, error) {
	// skip a UTF-8 byte order mark
	if len(data) >= 3 && data[0] == 0xef && data[1] == 0xbb && data[2] == 0xbf {
		data = data[3:]
	}
	toks, err := tokenize(name, string(data))
	if err != nil {
		return nil, err
	}
	p := &parser{file: name, toks: toks}
	root := &Node{Block: true, Line: 1, Col: 1}
	if err := p.contents(root, Spec{}); err != nil {
		return nil, err
	}
	return &File{Name: name, Root: root}, nil
}

type parser struct {
	file string
	toks []Token
	pos  int
}

func (p *parser) peek() *Token {
	if p.pos >= len(p.toks) {
		return nil
	}
	return &p.toks[p.pos]
}

func (p *parser) next() *Token {
	t := p.peek()
	if t != nil {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t *Token, format string, args ...interface{}) error {
	e := &ParseError{File: p.file, Msg: fmt.Sprintf(format, args...)}
	if t == nil && len(p.toks) > 0 {
		last := p.toks[len(p.toks)-1]
		e.Line, e.Col = last.Line, last.Col
	} else if t != nil {
		e.Line, e.Col = t.Line, t.Col
	}
	return e
}

// contents parses the body of block n up to and including its /end.
func (p *parser) contents(n *Node, spec Spec) error {
	root := n.Keyword == ""
	for {
		t := p.peek()
		if t == nil {
			if root {
				return nil
			}
			return p.errorf(nil, "missing /end %s for block opened at %d:%d", n.Keyword, n.Line, n.Col)
		}
		switch t.Kind {
		case End:
			if root {
				return p.errorf(t, "unexpected /end")
			}
			p.next()
			kw := p.next()
			if kw == nil || kw.Kind != Ident || kw.Text != n.Keyword {
				if kw == nil {
					return p.errorf(t, "expected /end %s", n.Keyword)
				}
				return p.errorf(kw, "expected /end %s, found /end %s", n.Keyword, kw.Text)
			}
			return nil
		case Begin:
			p.next()
			c, err := p.block(t)
			if err != nil {
				return err
			}
			n.Children = append(n.Children, c)
		case Include:
			p.next()
			arg := p.next()
			if arg == nil || arg.Kind != String {
				return p.errorf(t, "/include needs a file name")
			}
			n.Children = append(n.Children, &Node{Keyword: t.Text, Fixed: 1, Args: []Token{*arg}, Line: t.Line, Col: t.Col})
		case Ident:
			if spec.List && !spec.stops(t.Text) {
				n.Args = append(n.Args, *p.next())
				continue
			}
			c, err := p.element()
			if err != nil {
				return err
			}
			n.Children = append(n.Children, c)
		default:
			if root {
				return p.errorf(t, "unexpected %s %q", t.Kind, t.Text)
			}
			n.Args = append(n.Args, *p.next())
		}
	}
}

// block parses a block after its /begin token.
func (p *parser) block(begin *Token) (*Node, error) {
	kw := p.next()
	if kw == nil || kw.Kind != Ident {
		return nil, p.errorf(begin, "/begin must be followed by a keyword")
	}
	n := &Node{Keyword: kw.Text, Block: true, Line: begin.Line, Col: begin.Col}
	spec, _ := Lookup(kw.Text)
	if spec.Raw {
		n.Raw = true
		return n, p.raw(n)
	}
	for i := 0; i < spec.Args; i++ {
		t := p.peek()
		if t == nil || t.Kind == Begin || t.Kind == End || t.Kind == Include {
			return nil, p.errorf(t, "%s: missing argument %d of %d", n.Keyword, i+1, spec.Args)
		}
		n.Args = append(n.Args, *p.next())
	}
	n.Fixed = len(n.Args)
	return n, p.contents(n, spec)
}

// raw collects the tokens of n up to its matching /end.
func (p *parser) raw(n *Node) error {
	depth := 1
	for {
		t := p.peek()
		if t == nil {
			return p.errorf(nil, "missing /end %s for block opened at %d:%d", n.Keyword, n.Line, n.Col)
		}
		switch t.Kind {
		case Begin:
			depth++
		case End:
			depth--
			if depth == 0 {
				p.next()
				kw := p.next()
				if kw == nil || kw.Kind != Ident || kw.Text != n.Keyword {
					return p.errorf(t, "expected /end %s", n.Keyword)
				}
				return nil
			}
		}
		n.Args = append(n.Args, *p.next())
	}
}

// element parses a keyword element that is not a block.
func (p *parser) element() (*Node, error) {
	kw := p.next()
	n := &Node{Keyword: kw.Text, Line: kw.Line, Col: kw.Col}
	spec, _ := Lookup(kw.Text)
	if spec.Args >= 0 {
		for i := 0; i < spec.Args; i++ {
			t := p.peek()
			if t == nil || t.Kind == Begin || t.Kind == End || t.Kind == Include {
				return nil, p.errorf(kw, "%s: missing argument %d of %d", n.Keyword, i+1, spec.Args)
			}
			n.Args = append(n.Args, *p.next())
		}
	} else {
		for {
			t := p.peek()
			if t == nil || t.Kind == Begin || t.Kind == End || t.Kind == Include || (t.Kind == Ident && known(t.Text)) {
				break
			}
			n.Args = append(n.Args, *p.next())
		}
	}
	n.Fixed = len(n.Args)
	return n, nil
}

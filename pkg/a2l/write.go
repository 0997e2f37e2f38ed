package a2l

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const itemsPerLine = 8

// Write serializes f to w.
func (f *File) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	wr := &writer{w: bw}
	if f.Root != nil {
		for _, c := range f.Root.Children {
			wr.node(c, 0)
		}
	}
	return bw.Flush()
}

// WriteFile serializes f to the file at path.
func (f *File) WriteFile(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Write(fh); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

type writer struct {
	w *bufio.Writer
}

func (wr *writer) indent(depth int) {
	for i := 0; i < depth; i++ {
		wr.w.WriteString("  ")
	}
}

func (wr *writer) tokens(toks []Token) {
	for i := range toks {
		wr.w.WriteByte(' ')
		wr.w.WriteString(toks[i].spelling())
	}
}

func (wr *writer) node(n *Node, depth int) {
	wr.indent(depth)
	if !n.Block {
		wr.w.WriteString(n.Keyword)
		wr.tokens(n.Args)
		wr.w.WriteByte('\n')
		return
	}

	wr.w.WriteString("/begin ")
	wr.w.WriteString(n.Keyword)
	if n.Raw {
		wr.raw(n.Args, depth+1)
	} else {
		wr.tokens(n.Args[:n.Fixed])
		wr.w.WriteByte('\n')
		items := n.Items()
		for len(items) > 0 {
			k := len(items)
			if k > itemsPerLine {
				k = itemsPerLine
			}
			wr.indent(depth + 1)
			wr.w.WriteString(strings.TrimPrefix(spellAll(items[:k]), " "))
			wr.w.WriteByte('\n')
			items = items[k:]
		}
		for _, c := range n.Children {
			wr.node(c, depth+1)
		}
	}
	wr.indent(depth)
	wr.w.WriteString("/end ")
	wr.w.WriteString(n.Keyword)
	wr.w.WriteByte('\n')
}

// raw writes the content of a raw block. Nested /begin and /end start a
// new line and so does whatever follows the keyword closing a nested block.
func (wr *writer) raw(toks []Token, depth int) {
	newline, closing := false, false
	for i := range toks {
		t := &toks[i]
		switch {
		case t.Kind == Begin:
			wr.w.WriteByte('\n')
			wr.indent(depth)
			depth++
			newline = false
		case t.Kind == End:
			depth--
			wr.w.WriteByte('\n')
			wr.indent(depth)
			closing, newline = true, false
		case newline:
			wr.w.WriteByte('\n')
			wr.indent(depth)
			newline = false
		default:
			wr.w.WriteByte(' ')
		}
		wr.w.WriteString(t.spelling())
		if closing && t.Kind != End {
			closing, newline = false, true
		}
	}
	wr.w.WriteByte('\n')
}

func spellAll(toks []Token) string {
	var sb strings.Builder
	for i := range toks {
		sb.WriteByte(' ')
		sb.WriteString(toks[i].spelling())
	}
	return sb.String()
}

// Package a2l reads and writes ASAM MCD-2 MC (A2L) calibration
// description files.
//
// A file is parsed into a tree of Nodes. Every /begin ... /end block and
// every keyword element becomes a Node carrying its positional tokens.
// The tree keeps the token spelling of the input so that writing an
// unmodified tree produces an equivalent file. Comments are not kept.
package a2l

// File is a parsed A2L document.
type File struct {
	Name string
	Root *Node
}

// Node is a block or a keyword element.
type Node struct {
	Keyword string
	Block   bool
	// Raw blocks (IF_DATA, A2ML) keep their whole content in Args.
	Raw bool
	// Fixed is the number of leading Args that are positional arguments,
	// the remaining ones are list items.
	Fixed    int
	Args     []Token
	Children []*Node
	Line     int
	Col      int
}

// Arg returns the i-th argument of n or nil.
func (n *Node) Arg(i int) *Token {
	if i < 0 || i >= len(n.Args) {
		return nil
	}
	return &n.Args[i]
}

// Name returns the text of the first argument, which is the object name
// for the calibration object categories.
func (n *Node) Name() string {
	if t := n.Arg(0); t != nil {
		return t.Text
	}
	return ""
}

// Items returns the list items of a block, the arguments that follow the
// positional ones. The returned slice aliases n.Args.
func (n *Node) Items() []Token {
	if n.Fixed >= len(n.Args) {
		return nil
	}
	return n.Args[n.Fixed:]
}

// Child returns the first direct child with keyword kw.
func (n *Node) Child(kw string) *Node {
	for _, c := range n.Children {
		if c.Keyword == kw {
			return c
		}
	}
	return nil
}

// ChildrenOf returns all direct children with keyword kw.
func (n *Node) ChildrenOf(kw string) []*Node {
	var r []*Node
	for _, c := range n.Children {
		if c.Keyword == kw {
			r = append(r, c)
		}
	}
	return r
}

// Walk calls fn for n and its descendants in document order. When fn
// returns false the children of that node are skipped.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Modules returns the MODULE blocks of the project.
func (f *File) Modules() []*Node {
	p := f.Project()
	if p == nil {
		return nil
	}
	return p.ChildrenOf("MODULE")
}

// Project returns the PROJECT block or nil.
func (f *File) Project() *Node {
	if f.Root == nil {
		return nil
	}
	return f.Root.Child("PROJECT")
}

// Objects returns every block with keyword kw found anywhere in the
// modules of f, in document order.
func (f *File) Objects(kw string) []*Node {
	var r []*Node
	for _, m := range f.Modules() {
		m.Walk(func(n *Node) bool {
			if n.Keyword == kw && n.Block {
				r = append(r, n)
				return false
			}
			return !n.Raw
		})
	}
	return r
}

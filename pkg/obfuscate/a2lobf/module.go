package a2lobf

import (
	"github.com/a2lobf/a2lobf/pkg/a2l"
)

// Argument positions of the fields referencing other objects.
const (
	charAddress    = 3
	charDeposit    = 4
	charConversion = 6

	measConversion = 3

	axisPtsAddress    = 2
	axisPtsInput      = 3
	axisPtsDeposit    = 4
	axisPtsConversion = 6

	axisDescrInput      = 1
	axisDescrConversion = 2

	typedefAxisInput      = 2
	typedefAxisLayout     = 3
	typedefAxisConversion = 5

	typedefCharLayout     = 3
	typedefCharConversion = 5

	typedefMeasConversion = 3

	compuMethodUnit = 4

	blobAddress     = 2
	instanceAddress = 3
)

// step renames the objects of one or more categories sharing a table and
// repairs the references to them.
type step struct {
	cats   []string
	rename func(e *engine, n *a2l.Node) error
	repair func(e *engine, m *a2l.Node, table map[string]string)
}

var steps = []step{
	{
		cats: []string{"CHARACTERISTIC"},
		rename: func(e *engine, n *a2l.Node) error {
			e.label(n.Arg(1))
			zeroAddress(n.Arg(charAddress))
			e.displayIdentifier(n)
			return e.symbolLinks(n)
		},
		repair: func(e *engine, m *a2l.Node, table map[string]string) {
			for _, c := range m.ChildrenOf("CHARACTERISTIC") {
				e.repairItems(c.Child("DEPENDENT_CHARACTERISTIC"), table, "CHARACTERISTIC")
				e.repairItems(c.Child("VIRTUAL_CHARACTERISTIC"), table, "CHARACTERISTIC")
				e.repairItems(c.Child("MAP_LIST"), table, "CHARACTERISTIC")
			}
			for _, ad := range axisDescrs(m) {
				if r := ad.Child("CURVE_AXIS_REF"); r != nil {
					e.repair(r.Arg(0), table, "CHARACTERISTIC", "")
				}
			}
			for _, vc := range m.ChildrenOf("VARIANT_CODING") {
				for _, c := range vc.ChildrenOf("VAR_CHARACTERISTIC") {
					e.repair(c.Arg(0), table, "CHARACTERISTIC", "")
				}
				for _, cr := range vc.ChildrenOf("VAR_CRITERION") {
					if sc := cr.Child("VAR_SELECTION_CHARACTERISTIC"); sc != nil {
						e.repair(sc.Arg(0), table, "CHARACTERISTIC", "")
					}
				}
			}
		},
	},
	{
		cats: []string{"MEASUREMENT"},
		rename: func(e *engine, n *a2l.Node) error {
			e.label(n.Arg(1))
			if ea := n.Child("ECU_ADDRESS"); ea != nil {
				zeroAddress(ea.Arg(0))
			}
			e.displayIdentifier(n)
			return e.symbolLinks(n)
		},
		repair: func(e *engine, m *a2l.Node, table map[string]string) {
			for _, ad := range axisDescrs(m) {
				e.repair(ad.Arg(axisDescrInput), table, "MEASUREMENT", NoInputQuantity)
			}
			for _, c := range m.ChildrenOf("CHARACTERISTIC") {
				if cq := c.Child("COMPARISON_QUANTITY"); cq != nil {
					e.repair(cq.Arg(0), table, "MEASUREMENT", "")
				}
			}
			for _, ta := range m.ChildrenOf("TYPEDEF_AXIS") {
				e.repair(ta.Arg(typedefAxisInput), table, "MEASUREMENT", NoInputQuantity)
			}
			for _, ap := range m.ChildrenOf("AXIS_PTS") {
				e.repair(ap.Arg(axisPtsInput), table, "MEASUREMENT", NoInputQuantity)
			}
			for _, ms := range m.ChildrenOf("MEASUREMENT") {
				e.repairItems(ms.Child("VIRTUAL"), table, "MEASUREMENT")
			}
			for _, f := range m.ChildrenOf("FUNCTION") {
				e.repairItems(f.Child("IN_MEASUREMENT"), table, "MEASUREMENT")
				e.repairItems(f.Child("OUT_MEASUREMENT"), table, "MEASUREMENT")
				e.repairItems(f.Child("LOC_MEASUREMENT"), table, "MEASUREMENT")
			}
			for _, g := range m.ChildrenOf("GROUP") {
				e.repairItems(g.Child("REF_MEASUREMENT"), table, "MEASUREMENT")
			}
			for _, f := range m.ChildrenOf("FRAME") {
				// a loose element, its names are all arguments
				for _, fm := range f.ChildrenOf("FRAME_MEASUREMENT") {
					for i := range fm.Args {
						e.repair(&fm.Args[i], table, "MEASUREMENT", "")
					}
				}
			}
			for _, vc := range m.ChildrenOf("VARIANT_CODING") {
				for _, cr := range vc.ChildrenOf("VAR_CRITERION") {
					if vm := cr.Child("VAR_MEASUREMENT"); vm != nil {
						e.repair(vm.Arg(0), table, "MEASUREMENT", "")
					}
				}
			}
		},
	},
	{
		cats: []string{"AXIS_PTS"},
		rename: func(e *engine, n *a2l.Node) error {
			e.label(n.Arg(1))
			zeroAddress(n.Arg(axisPtsAddress))
			e.displayIdentifier(n)
			return e.symbolLinks(n)
		},
		repair: func(e *engine, m *a2l.Node, table map[string]string) {
			for _, ad := range axisDescrs(m) {
				if r := ad.Child("AXIS_PTS_REF"); r != nil {
					e.repair(r.Arg(0), table, "AXIS_PTS", "")
				}
			}
		},
	},
	{
		cats: []string{"RECORD_LAYOUT"},
		repair: func(e *engine, m *a2l.Node, table map[string]string) {
			for _, c := range m.ChildrenOf("CHARACTERISTIC") {
				e.repair(c.Arg(charDeposit), table, "RECORD_LAYOUT", "")
			}
			for _, ap := range m.ChildrenOf("AXIS_PTS") {
				e.repair(ap.Arg(axisPtsDeposit), table, "RECORD_LAYOUT", "")
			}
			for _, ta := range m.ChildrenOf("TYPEDEF_AXIS") {
				e.repair(ta.Arg(typedefAxisLayout), table, "RECORD_LAYOUT", "")
			}
			for _, tc := range m.ChildrenOf("TYPEDEF_CHARACTERISTIC") {
				e.repair(tc.Arg(typedefCharLayout), table, "RECORD_LAYOUT", "")
			}
		},
	},
	{
		cats: []string{"FUNCTION"},
		rename: func(e *engine, n *a2l.Node) error {
			e.label(n.Arg(1))
			return nil
		},
		repair: func(e *engine, m *a2l.Node, table map[string]string) {
			for _, f := range m.ChildrenOf("FUNCTION") {
				e.repairItems(f.Child("SUB_FUNCTION"), table, "FUNCTION")
			}
			for _, kw := range []string{"CHARACTERISTIC", "MEASUREMENT", "AXIS_PTS", "GROUP"} {
				for _, n := range m.ChildrenOf(kw) {
					e.repairItems(n.Child("FUNCTION_LIST"), table, "FUNCTION")
				}
			}
		},
	},
	{
		cats: []string{"GROUP"},
		rename: func(e *engine, n *a2l.Node) error {
			e.label(n.Arg(1))
			return nil
		},
		repair: func(e *engine, m *a2l.Node, table map[string]string) {
			for _, g := range m.ChildrenOf("GROUP") {
				e.repairItems(g.Child("SUB_GROUP"), table, "GROUP")
			}
			for _, ur := range m.ChildrenOf("USER_RIGHTS") {
				for _, rg := range ur.ChildrenOf("REF_GROUP") {
					e.repairItems(rg, table, "GROUP")
				}
			}
		},
	},
	{
		cats: []string{"COMPU_METHOD"},
		rename: func(e *engine, n *a2l.Node) error {
			e.label(n.Arg(1))
			if u := n.Arg(compuMethodUnit); u != nil && u.Kind == a2l.String {
				u.Text = e.gen.Symbols(u.Text)
			}
			return nil
		},
		repair: func(e *engine, m *a2l.Node, table map[string]string) {
			conv := func(n *a2l.Node, i int) {
				e.repair(n.Arg(i), table, "COMPU_METHOD", NoCompuMethod)
			}
			for _, c := range m.ChildrenOf("CHARACTERISTIC") {
				conv(c, charConversion)
			}
			for _, ad := range axisDescrs(m) {
				conv(ad, axisDescrConversion)
			}
			for _, ms := range m.ChildrenOf("MEASUREMENT") {
				conv(ms, measConversion)
			}
			for _, ap := range m.ChildrenOf("AXIS_PTS") {
				conv(ap, axisPtsConversion)
			}
			for _, ta := range m.ChildrenOf("TYPEDEF_AXIS") {
				conv(ta, typedefAxisConversion)
			}
			for _, tc := range m.ChildrenOf("TYPEDEF_CHARACTERISTIC") {
				conv(tc, typedefCharConversion)
			}
			for _, tm := range m.ChildrenOf("TYPEDEF_MEASUREMENT") {
				conv(tm, typedefMeasConversion)
			}
		},
	},
	{
		cats: []string{"COMPU_TAB", "COMPU_VTAB", "COMPU_VTAB_RANGE"},
		rename: func(e *engine, n *a2l.Node) error {
			e.label(n.Arg(1))
			if n.Keyword != "COMPU_TAB" {
				items := n.Items()
				for i := range items {
					if items[i].Kind == a2l.String {
						e.identifier(&items[i])
					}
				}
			}
			if dv := n.Child("DEFAULT_VALUE"); dv != nil {
				e.identifier(dv.Arg(0))
			}
			return nil
		},
		repair: func(e *engine, m *a2l.Node, table map[string]string) {
			for _, cm := range m.ChildrenOf("COMPU_METHOD") {
				if r := cm.Child("COMPU_TAB_REF"); r != nil {
					e.repair(r.Arg(0), table, "COMPU_TAB", "")
				}
				if r := cm.Child("STATUS_STRING_REF"); r != nil {
					e.repair(r.Arg(0), table, "COMPU_TAB", "")
				}
			}
		},
	},
}

// multiCategoryLists are the lists whose entries may name objects of
// several categories, with the candidate categories in renaming order.
var multiCategoryLists = []struct {
	parent, list string
	cats         []string
}{
	{"FUNCTION", "DEF_CHARACTERISTIC", []string{"CHARACTERISTIC", "AXIS_PTS"}},
	{"FUNCTION", "REF_CHARACTERISTIC", []string{"CHARACTERISTIC", "AXIS_PTS"}},
	{"GROUP", "REF_CHARACTERISTIC", []string{"CHARACTERISTIC", "AXIS_PTS"}},
	{"TRANSFORMER", "TRANSFORMER_IN_OBJECTS", []string{"CHARACTERISTIC", "MEASUREMENT", "AXIS_PTS"}},
	{"TRANSFORMER", "TRANSFORMER_OUT_OBJECTS", []string{"CHARACTERISTIC", "MEASUREMENT", "AXIS_PTS"}},
}

func (e *engine) module(m *a2l.Node) error {
	e.pending = e.pending[:0]
	for _, l := range multiCategoryLists {
		for _, p := range m.ChildrenOf(l.parent) {
			for _, ln := range p.ChildrenOf(l.list) {
				items := ln.Items()
				for i := range items {
					e.pending = append(e.pending, &pendingRef{tok: &items[i], cats: l.cats})
				}
			}
		}
	}

	for _, s := range steps {
		table := make(map[string]string)
		for _, cat := range s.cats {
			for _, n := range m.ChildrenOf(cat) {
				t := n.Arg(0)
				if t == nil {
					continue
				}
				old := t.Text
				t.Text = e.gen.Identifier(old)
				// duplicates: the last object wins
				table[old] = t.Text
				e.stats.Renamed[cat]++
				if s.rename != nil {
					if err := s.rename(e, n); err != nil {
						return err
					}
				}
			}
		}
		s.repair(e, m, table)
		for _, cat := range s.cats {
			e.resolvePending(cat, table)
		}
	}
	return e.unnamed(m)
}

// unnamed strips the objects that keep their name: their descriptions,
// display names, addresses and symbol links are still rewritten.
func (e *engine) unnamed(m *a2l.Node) error {
	for _, kw := range []string{"BLOB", "INSTANCE", "FRAME"} {
		for _, n := range m.ChildrenOf(kw) {
			e.label(n.Arg(1))
			switch kw {
			case "BLOB":
				zeroAddress(n.Arg(blobAddress))
			case "INSTANCE":
				zeroAddress(n.Arg(instanceAddress))
			}
			e.displayIdentifier(n)
			if err := e.symbolLinks(n); err != nil {
				return err
			}
		}
	}
	for _, vc := range m.ChildrenOf("VARIANT_CODING") {
		for _, c := range vc.ChildrenOf("VAR_CHARACTERISTIC") {
			for _, va := range c.ChildrenOf("VAR_ADDRESS") {
				for i := range va.Args {
					zeroAddress(&va.Args[i])
				}
			}
		}
		for _, cr := range vc.ChildrenOf("VAR_CRITERION") {
			e.label(cr.Arg(1))
		}
	}
	return nil
}

func (e *engine) displayIdentifier(n *a2l.Node) {
	if di := n.Child("DISPLAY_IDENTIFIER"); di != nil {
		e.identifier(di.Arg(0))
	}
}

// axisDescrs returns the axis descriptions of the characteristics and
// characteristic types of m.
func axisDescrs(m *a2l.Node) []*a2l.Node {
	var r []*a2l.Node
	for _, kw := range []string{"CHARACTERISTIC", "TYPEDEF_CHARACTERISTIC"} {
		for _, c := range m.ChildrenOf(kw) {
			r = append(r, c.ChildrenOf("AXIS_DESCR")...)
		}
	}
	return r
}

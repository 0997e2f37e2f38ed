// Package ifdata decodes the vendor specific IF_DATA blocks of an A2L
// file that carry symbol information.
package ifdata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/a2lobf/a2lobf/pkg/a2l"
)

// CanapeExtTag is the first token of a CANAPE_EXT IF_DATA block.
const CanapeExtTag = "CANAPE_EXT"

var errMalformed = errors.New("malformed CANAPE_EXT")

// CanapeExt is the content of a CANAPE_EXT IF_DATA block:
//
//	/begin IF_DATA CANAPE_EXT 100
//	  LINK_MAP "sym" 0x2A2E4 0 0 0 1 0xCF 0
//	  DISPLAY 0 -1000 1000
//	/end IF_DATA
type CanapeExt struct {
	Version int64
	LinkMap *LinkMap

	node    *a2l.Node
	linkIdx int
}

// LinkMap links a calibration object to a linker symbol.
type LinkMap struct {
	SymbolName    string
	Address       uint64
	AddressExt    int64
	DSRelative    int64
	DSOffset      int64
	DatatypeValid int64
	Datatype      int64
	BitOffset     int64

	hexAddr bool
}

const linkMapArgs = 8

// Decode decodes n if it is a CANAPE_EXT IF_DATA block. It returns
// (nil, nil) for other IF_DATA content.
func Decode(n *a2l.Node) (*CanapeExt, error) {
	if n.Keyword != "IF_DATA" || !n.Raw {
		return nil, nil
	}
	if t := n.Arg(0); t == nil || t.Kind != a2l.Ident || t.Text != CanapeExtTag {
		return nil, nil
	}
	ce := &CanapeExt{node: n, linkIdx: -1}
	if t := n.Arg(1); t != nil && t.Kind == a2l.Number {
		v, err := parseInt(t.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: version: %v", errMalformed, err)
		}
		ce.Version = v
	}

	depth := 0
	for i := range n.Args {
		t := &n.Args[i]
		switch t.Kind {
		case a2l.Begin:
			depth++
			continue
		case a2l.End:
			depth--
			continue
		}
		if depth != 0 || t.Kind != a2l.Ident || t.Text != "LINK_MAP" {
			continue
		}
		lm, err := decodeLinkMap(n.Args[i+1:])
		if err != nil {
			return nil, err
		}
		ce.LinkMap, ce.linkIdx = lm, i
		break
	}
	return ce, nil
}

func decodeLinkMap(args []a2l.Token) (*LinkMap, error) {
	if len(args) < linkMapArgs {
		return nil, fmt.Errorf("%w: LINK_MAP needs %d arguments", errMalformed, linkMapArgs)
	}
	if args[0].Kind != a2l.String {
		return nil, fmt.Errorf("%w: LINK_MAP symbol name at %d:%d is not a string", errMalformed, args[0].Line, args[0].Col)
	}
	lm := &LinkMap{SymbolName: args[0].Text, hexAddr: args[1].IsHex()}
	nums := make([]int64, linkMapArgs-1)
	for i := range nums {
		t := &args[i+1]
		if t.Kind != a2l.Number {
			return nil, fmt.Errorf("%w: LINK_MAP argument %d at %d:%d is not a number", errMalformed, i+2, t.Line, t.Col)
		}
		if i == 0 {
			a, err := parseUint(t.Text)
			if err != nil {
				return nil, fmt.Errorf("%w: LINK_MAP address: %v", errMalformed, err)
			}
			lm.Address = a
			continue
		}
		v, err := parseInt(t.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: LINK_MAP argument %d: %v", errMalformed, i+2, err)
		}
		nums[i] = v
	}
	lm.AddressExt, lm.DSRelative, lm.DSOffset = nums[1], nums[2], nums[3]
	lm.DatatypeValid, lm.Datatype, lm.BitOffset = nums[4], nums[5], nums[6]
	return lm, nil
}

// Store writes the symbol name and address of the link map back into the
// IF_DATA block it was decoded from.
func (ce *CanapeExt) Store() {
	if ce.LinkMap == nil || ce.linkIdx < 0 {
		return
	}
	args := ce.node.Args[ce.linkIdx+1:]
	args[0].Text = ce.LinkMap.SymbolName
	if ce.LinkMap.hexAddr {
		args[1].Text = "0x" + strings.ToUpper(strconv.FormatUint(ce.LinkMap.Address, 16))
	} else {
		args[1].Text = strconv.FormatUint(ce.LinkMap.Address, 10)
	}
}

func parseUint(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseInt(s string) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	u, err := parseUint(strings.TrimLeft(s, "+-"))
	if err != nil {
		return 0, err
	}
	if neg {
		return -int64(u), nil
	}
	return int64(u), nil
}

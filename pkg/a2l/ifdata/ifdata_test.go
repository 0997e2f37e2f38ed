package ifdata

import (
	"bytes"
	"strings"
	"testing"

	"github.com/a2lobf/a2lobf/pkg/a2l"
)

const doc = `
/begin PROJECT p ""
  /begin MODULE m ""
    /begin MEASUREMENT engineSpeed "" UWORD NO_COMPU_METHOD 0 0 0 8000
      /begin IF_DATA CANAPE_EXT 100
        LINK_MAP "engineSpeed" 0x10000040 0 0 0 1 0x87 0
        DISPLAY 0 0 8000
      /end IF_DATA
      /begin IF_DATA XCP
        /begin DAQ_EVENT FIXED_EVENT_LIST EVENT 1 /end DAQ_EVENT
      /end IF_DATA
    /end MEASUREMENT
  /end MODULE
/end PROJECT
`

func ifdataBlocks(t *testing.T, f *a2l.File) []*a2l.Node {
	t.Helper()
	var r []*a2l.Node
	f.Root.Walk(func(n *a2l.Node) bool {
		if n.Keyword == "IF_DATA" {
			r = append(r, n)
		}
		return true
	})
	if len(r) != 2 {
		t.Fatalf("expected 2 IF_DATA blocks, got %d", len(r))
	}
	return r
}

func TestDecodeStore(t *testing.T) {
	f, err := a2l.ParseBytes("test.a2l", []byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	blocks := ifdataBlocks(t, f)

	ce, err := Decode(blocks[0])
	if err != nil {
		t.Fatal(err)
	}
	if ce == nil || ce.LinkMap == nil {
		t.Fatal("CANAPE_EXT link map not decoded")
	}
	if ce.Version != 100 {
		t.Errorf("version %d", ce.Version)
	}
	lm := ce.LinkMap
	if lm.SymbolName != "engineSpeed" || lm.Address != 0x10000040 || lm.DatatypeValid != 1 || lm.Datatype != 0x87 {
		t.Errorf("unexpected link map %#v", lm)
	}

	lm.SymbolName = "qxpwvfTnmdm"
	lm.Address = 0
	ce.Store()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `LINK_MAP "qxpwvfTnmdm" 0x0 0 0 0 1 0x87 0`) {
		t.Errorf("link map not stored:\n%s", out)
	}

	if ce, err := Decode(blocks[1]); err != nil || ce != nil {
		t.Errorf("XCP block decoded as CANAPE_EXT: %v %v", ce, err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, src := range []string{
		`/begin IF_DATA CANAPE_EXT 100 LINK_MAP engineSpeed 0 0 0 0 1 0 0 /end IF_DATA`,
		`/begin IF_DATA CANAPE_EXT 100 LINK_MAP "engineSpeed" 0 0 /end IF_DATA`,
		`/begin IF_DATA CANAPE_EXT 100 LINK_MAP "engineSpeed" 0xZZ 0 0 0 1 0 0 /end IF_DATA`,
	} {
		f, err := a2l.ParseBytes("test.a2l", []byte(src))
		if err != nil {
			t.Fatalf("%s: %v", src, err)
		}
		if _, err := Decode(f.Root.Children[0]); err == nil {
			t.Errorf("%s: expected error", src)
		}
	}
}

package dwarfbuilder

// AttrValue is the value of an output attribute. It is one of the types
// declared below; the serializer picks the form from the type.
type AttrValue interface {
	attrValue()
}

type (
	// Address represents a machine address.
	Address uint64
	// Block is an uninterpreted block of bytes.
	Block []byte
	Data1 uint8
	Data2 uint16
	Data4 uint32
	Data8 uint64
	// Data16 is a 16 byte constant.
	Data16 [16]byte
	Sdata  int64
	Udata  uint64
	// Exprloc is a DWARF expression. It is written with DW_FORM_exprloc,
	// or as a block in units older than DWARF 4.
	Exprloc []byte
	Flag    bool
	// String is written inline.
	String string
	// UnitRef references an entry of the same unit.
	UnitRef struct {
		Entry EntryID
	}
	// DebugInfoRef references an entry of any unit.
	DebugInfoRef struct {
		Unit  UnitID
		Entry EntryID
	}
)

func (Address) attrValue()      {}
func (Block) attrValue()        {}
func (Data1) attrValue()        {}
func (Data2) attrValue()        {}
func (Data4) attrValue()        {}
func (Data8) attrValue()        {}
func (Data16) attrValue()       {}
func (Sdata) attrValue()        {}
func (Udata) attrValue()        {}
func (Exprloc) attrValue()      {}
func (Flag) attrValue()         {}
func (String) attrValue()       {}
func (UnitRef) attrValue()      {}
func (DebugInfoRef) attrValue() {}

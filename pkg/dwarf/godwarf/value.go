package godwarf

// AttrValue is the decoded value of an attribute. It is one of the types
// declared below; use a type switch to handle it.
type AttrValue interface {
	attrValue()
}

type (
	// Addr is a target address.
	Addr uint64
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
	// Exprloc is a DWARF expression. Location class attributes encoded with
	// a block form before DWARF 4 decode to Exprloc as well.
	Exprloc []byte
	Flag    bool
	// String is an inline string, without its terminator. It is not
	// guaranteed to be valid UTF-8.
	String []byte
	// DebugStrRef is an offset into .debug_str.
	DebugStrRef uint64
	// DebugLineStrRef is an offset into .debug_line_str.
	DebugLineStrRef uint64
	// UnitRef is an offset relative to the start of the containing unit.
	UnitRef uint64
	// DebugInfoRef is an offset into .debug_info.
	DebugInfoRef uint64
	// SecOffset is an offset into some other debug section (line table,
	// location list, range list, macro information).
	SecOffset            uint64
	DebugStrOffsetsIndex uint64
	DebugAddrIndex       uint64
	DebugLocListsIndex   uint64
	DebugRngListsIndex   uint64
	// DebugInfoRefSup is an offset into the .debug_info section of the
	// supplementary object file.
	DebugInfoRefSup uint64
	// DebugStrRefSup is an offset into the .debug_str section of the
	// supplementary object file.
	DebugStrRefSup uint64
	// DebugTypesRef is the signature of a type unit.
	DebugTypesRef uint64
)

func (Addr) attrValue()                 {}
func (Block) attrValue()                {}
func (Data1) attrValue()                {}
func (Data2) attrValue()                {}
func (Data4) attrValue()                {}
func (Data8) attrValue()                {}
func (Data16) attrValue()               {}
func (Sdata) attrValue()                {}
func (Udata) attrValue()                {}
func (Exprloc) attrValue()              {}
func (Flag) attrValue()                 {}
func (String) attrValue()               {}
func (DebugStrRef) attrValue()          {}
func (DebugLineStrRef) attrValue()      {}
func (UnitRef) attrValue()              {}
func (DebugInfoRef) attrValue()         {}
func (SecOffset) attrValue()            {}
func (DebugStrOffsetsIndex) attrValue() {}
func (DebugAddrIndex) attrValue()       {}
func (DebugLocListsIndex) attrValue()   {}
func (DebugRngListsIndex) attrValue()   {}
func (DebugInfoRefSup) attrValue()      {}
func (DebugStrRefSup) attrValue()       {}
func (DebugTypesRef) attrValue()        {}

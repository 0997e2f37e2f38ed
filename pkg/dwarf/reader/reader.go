// Package reader walks the entries of a debug info loaded with
// debug/dwarf.
package reader

import (
	"debug/dwarf"
	"errors"
	"fmt"

	"github.com/a2lobf/a2lobf/pkg/dwarf/op"
)

// ErrNoLocation is returned for entries without a location expression.
var ErrNoLocation = errors.New("entry has no location attribute")

type Reader struct {
	*dwarf.Reader
}

// New returns a reader for the specified dwarf data.
func New(data *dwarf.Data) *Reader {
	return &Reader{data.Reader()}
}

// SeekToEntry moves the reader to an arbitrary entry.
func (reader *Reader) SeekToEntry(entry *dwarf.Entry) error {
	reader.Seek(entry.Offset)
	// Consume the current entry so .Next works as intended
	_, err := reader.Next()
	return err
}

// NextGlobalVariable moves the reader to the next variable declared at
// the top level of a unit or inside a namespace and returns its entry.
// The children of every other entry are skipped. It returns nil, nil at
// the end of the debug info.
func (reader *Reader) NextGlobalVariable() (*dwarf.Entry, error) {
	for entry, err := reader.Next(); entry != nil || err != nil; entry, err = reader.Next() {
		if err != nil {
			return nil, err
		}
		switch entry.Tag {
		case dwarf.TagCompileUnit, dwarf.TagPartialUnit, dwarf.TagNamespace, 0:
			continue
		}
		if entry.Children {
			reader.SkipChildren()
		}
		if entry.Tag == dwarf.TagVariable {
			return entry, nil
		}
	}

	// No more items
	return nil, nil
}

// InstructionsForEntry returns the location expression of entry.
func (reader *Reader) InstructionsForEntry(entry *dwarf.Entry) ([]byte, error) {
	if entry.Tag == dwarf.TagMember {
		instructions, ok := entry.Val(dwarf.AttrDataMemberLoc).([]byte)
		if !ok {
			return nil, fmt.Errorf("member data has no data member location attribute")
		}
		// clone slice to prevent stomping on the dwarf data
		return append([]byte{}, instructions...), nil
	}

	// non-member
	instructions, ok := entry.Val(dwarf.AttrLocation).([]byte)
	if !ok {
		return nil, ErrNoLocation
	}

	// clone slice to prevent stomping on the dwarf data
	return append([]byte{}, instructions...), nil
}

// AddrForEntry returns the static address of a variable entry. Locations
// that are not a single fixed address are errors.
func (reader *Reader) AddrForEntry(entry *dwarf.Entry) (uint64, error) {
	instructions, err := reader.InstructionsForEntry(entry)
	if err != nil {
		return 0, err
	}
	addr, pieces, err := op.ExecuteStackProgram(op.DwarfRegisters{ByteOrder: reader.ByteOrder()}, instructions, reader.AddressSize())
	if err != nil {
		return 0, err
	}
	if len(pieces) != 0 {
		return 0, errors.New("location is composed of pieces")
	}
	return uint64(addr), nil
}

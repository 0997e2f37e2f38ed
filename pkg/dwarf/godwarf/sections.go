package godwarf

import (
	"bytes"
	"compress/zlib"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrSectionNotFound is returned by GetDebugSectionElf when neither the
// plain nor the compressed section exists.
var ErrSectionNotFound = errors.New("section not found")

// Sections holds the debug sections the entry reader needs.
type Sections struct {
	Order   binary.ByteOrder
	Info    []byte
	Abbrev  []byte
	Str     []byte
	LineStr []byte
}

// LoadSections reads the debug sections of f. .debug_info and
// .debug_abbrev are required, the string sections are optional.
func LoadSections(f *elf.File) (*Sections, error) {
	s := &Sections{Order: f.ByteOrder}
	var err error
	if s.Info, err = GetDebugSectionElf(f, "info"); err != nil {
		return nil, err
	}
	if s.Abbrev, err = GetDebugSectionElf(f, "abbrev"); err != nil {
		return nil, err
	}
	for name, dst := range map[string]*[]byte{"str": &s.Str, "line_str": &s.LineStr} {
		*dst, err = GetDebugSectionElf(f, name)
		if err != nil && !errors.Is(err, ErrSectionNotFound) {
			return nil, err
		}
	}
	return s, nil
}

// GetDebugSectionElf returns the data contents of the specified debug
// section, decompressing it if it is compressed.
// For example GetDebugSectionElf("line") will return the contents of
// .debug_line, if .debug_line doesn't exist it will try to return the
// decompressed contents of .zdebug_line.
// Sections with SHF_COMPRESSED set are decompressed by debug/elf.
func GetDebugSectionElf(f *elf.File, name string) ([]byte, error) {
	sec := f.Section(".debug_" + name)
	if sec != nil {
		return sec.Data()
	}
	sec = f.Section(".zdebug_" + name)
	if sec == nil {
		return nil, fmt.Errorf("could not find .debug_%s section: %w", name, ErrSectionNotFound)
	}
	b, err := sec.Data()
	if err != nil {
		return nil, err
	}
	return decompressMaybe(b)
}

func decompressMaybe(b []byte) ([]byte, error) {
	if len(b) < 12 || string(b[:4]) != "ZLIB" {
		// not compressed
		return b, nil
	}

	dlen := binary.BigEndian.Uint64(b[4:12])
	dbuf := make([]byte, dlen)
	r, err := zlib.NewReader(bytes.NewBuffer(b[12:]))
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, dbuf); err != nil {
		return nil, err
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	return dbuf, nil
}

// CString returns the NUL terminated string starting at off in sec,
// without its terminator.
func CString(sec []byte, off uint64) ([]byte, error) {
	if off >= uint64(len(sec)) {
		return nil, fmt.Errorf("string offset %#x out of range", off)
	}
	s := sec[off:]
	i := bytes.IndexByte(s, 0)
	if i < 0 {
		return nil, fmt.Errorf("unterminated string at %#x", off)
	}
	return s[:i], nil
}

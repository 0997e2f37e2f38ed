// elfwriter is a package to write ELF files made only of sections.
// Program headers are not supported.

package elfwriter

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"io"
)

// Section is a section to be written.
type Section struct {
	elf.SectionHeader
	Data []byte
}

// Writer writes ELF files.
type Writer struct {
	w        io.WriteSeeker
	Err      error
	Sections []*Section

	order binary.ByteOrder
	is64  bool

	seekSectHeader int64
	seekSectNum    int64
}

var errUnsupported = errors.New("unsupported ELF class or data encoding")

// New creates a new Writer and writes the file header. The entry point
// and the program header fields are always zero.
func New(w io.WriteSeeker, fhdr *elf.FileHeader, flags uint32) *Writer {
	r := &Writer{w: w}

	if seek, _ := w.Seek(0, io.SeekCurrent); seek != 0 {
		r.Err = errors.New("can't write halfway through a file")
		return r
	}

	switch fhdr.Class {
	case elf.ELFCLASS32:
	case elf.ELFCLASS64:
		r.is64 = true
	default:
		r.Err = errUnsupported
		return r
	}

	switch fhdr.Data {
	case elf.ELFDATA2LSB:
		r.order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		r.order = binary.BigEndian
	default:
		r.Err = errUnsupported
		return r
	}

	ehsize, phentsize, shentsize := uint16(52), uint16(32), uint16(40)
	if r.is64 {
		ehsize, phentsize, shentsize = 64, 56, 64
	}

	// e_ident
	r.Write([]byte{0x7f, 'E', 'L', 'F', byte(fhdr.Class), byte(fhdr.Data), byte(elf.EV_CURRENT), byte(fhdr.OSABI), byte(fhdr.ABIVersion), 0, 0, 0, 0, 0, 0, 0})

	r.u16(uint16(fhdr.Type))    // e_type
	r.u16(uint16(fhdr.Machine)) // e_machine
	r.u32(uint32(elf.EV_CURRENT))
	r.word(0) // e_entry
	r.word(0) // e_phoff
	r.seekSectHeader = r.Here()
	r.word(0)        // e_shoff
	r.u32(flags)     // e_flags
	r.u16(ehsize)    // e_ehsize
	r.u16(phentsize) // e_phentsize
	r.u16(0)         // e_phnum
	r.u16(shentsize) // e_shentsize
	r.seekSectNum = r.Here()
	r.u16(0)                     // e_shnum
	r.u16(uint16(elf.SHN_UNDEF)) // e_shstrndx

	// Sanity check, size of file header should be the same as ehsize
	if sz := r.Here(); r.Err == nil && sz != int64(ehsize) {
		r.Err = errors.New("internal error, ELF header size")
	}

	return r
}

// WriteSection writes the contents of s at the current location, aligned
// to s.Addralign, fills in its offset and size and appends it to
// w.Sections.
func (w *Writer) WriteSection(s *Section) {
	if s.Type != elf.SHT_NOBITS {
		if s.Addralign > 1 {
			w.Align(int64(s.Addralign))
		}
		s.Offset = uint64(w.Here())
		s.Size = uint64(len(s.Data))
		s.FileSize = s.Size
		w.Write(s.Data)
	} else {
		s.Offset = uint64(w.Here())
	}
	w.Sections = append(w.Sections, s)
}

// WriteSectionHeaders writes the section name table followed by the
// section header table and patches the file header accordingly. Any
// section called .shstrtab in w.Sections is replaced.
func (w *Writer) WriteSectionHeaders() {
	secs := w.Sections[:0]
	for _, s := range w.Sections {
		if s.Name != ".shstrtab" {
			secs = append(secs, s)
		}
	}

	strtab := []byte{0}
	nameOff := make([]uint32, len(secs)+1)
	for i, s := range secs {
		nameOff[i] = uint32(len(strtab))
		strtab = append(strtab, s.Name...)
		strtab = append(strtab, 0)
	}
	nameOff[len(secs)] = uint32(len(strtab))
	strtab = append(strtab, ".shstrtab"...)
	strtab = append(strtab, 0)
	shstrndx := len(secs) + 1

	w.Sections = secs
	w.WriteSection(&Section{SectionHeader: elf.SectionHeader{Name: ".shstrtab", Type: elf.SHT_STRTAB, Addralign: 1}, Data: strtab})

	if w.is64 {
		w.Align(8)
	} else {
		w.Align(4)
	}
	shoff := w.Here()
	shnum := len(w.Sections) + 1

	// Patch File Header
	w.seek(w.seekSectHeader, io.SeekStart)
	w.word(uint64(shoff))
	w.seek(w.seekSectNum, io.SeekStart)
	w.u16(uint16(shnum))
	w.u16(uint16(shstrndx))
	w.seek(0, io.SeekEnd)

	// null section
	w.sectionHeader(0, &elf.SectionHeader{})
	for i, s := range w.Sections {
		w.sectionHeader(nameOff[i], &s.SectionHeader)
	}
}

func (w *Writer) sectionHeader(name uint32, h *elf.SectionHeader) {
	w.u32(name)
	w.u32(uint32(h.Type))
	w.word(uint64(h.Flags))
	w.word(h.Addr)
	w.word(h.Offset)
	w.word(h.Size)
	w.u32(h.Link)
	w.u32(h.Info)
	w.word(h.Addralign)
	w.word(h.Entsize)
}

// Here returns the current seek offset from the start of the file.
func (w *Writer) Here() int64 {
	r, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil && w.Err == nil {
		w.Err = err
	}
	return r
}

// Align writes as many padding bytes as needed to make the current file
// offset a multiple of align.
func (w *Writer) Align(align int64) {
	off := w.Here()
	alignOff := (off + (align - 1)) &^ (align - 1)
	if alignOff-off > 0 {
		w.Write(make([]byte, alignOff-off))
	}
}

func (w *Writer) Write(buf []byte) {
	if w.Err != nil {
		return
	}
	_, err := w.w.Write(buf)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) seek(off int64, whence int) {
	_, err := w.w.Seek(off, whence)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) u16(n uint16) {
	if w.Err != nil {
		return
	}
	err := binary.Write(w.w, w.order, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) u32(n uint32) {
	if w.Err != nil {
		return
	}
	err := binary.Write(w.w, w.order, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

func (w *Writer) u64(n uint64) {
	if w.Err != nil {
		return
	}
	err := binary.Write(w.w, w.order, n)
	if err != nil && w.Err == nil {
		w.Err = err
	}
}

// word writes an address sized field.
func (w *Writer) word(n uint64) {
	if w.is64 {
		w.u64(n)
	} else {
		w.u32(uint32(n))
	}
}

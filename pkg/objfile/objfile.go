// Package objfile loads ELF files, strips them down to their debug
// sections and writes them back with replaced sections.
package objfile

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/a2lobf/a2lobf/pkg/dwarf/godwarf"
	"github.com/a2lobf/a2lobf/pkg/elfwriter"
	"github.com/a2lobf/a2lobf/pkg/logflags"
)

var (
	// ErrNotELF is returned for inputs that are not ELF files.
	ErrNotELF = errors.New("not an ELF file")
	// ErrNoDebugInfo is returned for ELF files without .debug_info.
	ErrNoDebugInfo = errors.New("no .debug_info section")
	// ErrMissingSection is returned when a section is replaced that does
	// not exist.
	ErrMissingSection = errors.New("no such section")
)

// Section is a section of the file.
type Section struct {
	elf.SectionHeader
	Data []byte
}

// File is a loaded ELF file.
type File struct {
	Path     string
	Header   elf.FileHeader
	Flags    uint32
	Sections []*Section

	elf   *elf.File
	data  []byte
	unmap func() error
}

// Open loads the ELF file at path. On unix systems the file is memory
// mapped until Close is called.
func Open(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	data, unmap, err := mapFile(fh)
	if err != nil {
		return nil, err
	}
	f, err := Load(data)
	if err != nil {
		if unmap != nil {
			unmap()
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	f.unmap = unmap
	return f, nil
}

func readFile(fh *os.File) ([]byte, func() error, error) {
	data, err := io.ReadAll(fh)
	return data, nil, err
}

// Load parses an ELF file held in memory. The sections of the returned
// File alias data.
func Load(data []byte) (*File, error) {
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}
	f := &File{Header: ef.FileHeader, elf: ef, data: data}

	var order binary.ByteOrder = binary.LittleEndian
	if ef.Data == elf.ELFDATA2MSB {
		order = binary.BigEndian
	}
	flagsOff := 36
	if ef.Class == elf.ELFCLASS64 {
		flagsOff = 48
	}
	if len(data) >= flagsOff+4 {
		f.Flags = order.Uint32(data[flagsOff:])
	}

	for _, s := range ef.Sections {
		if s.Type == elf.SHT_NULL {
			continue
		}
		sec := &Section{SectionHeader: s.SectionHeader}
		if s.Type != elf.SHT_NOBITS {
			end := s.Offset + s.FileSize
			if end < s.Offset || end > uint64(len(data)) {
				return nil, fmt.Errorf("%w: section %s out of bounds", ErrNotELF, s.Name)
			}
			sec.Data = data[s.Offset:end]
		}
		f.Sections = append(f.Sections, sec)
	}
	return f, nil
}

// Close releases the memory of the file. The sections loaded from it must
// not be used afterwards.
func (f *File) Close() error {
	if f.unmap == nil {
		return nil
	}
	err := f.unmap()
	f.unmap = nil
	return err
}

// DebugSections returns the debug sections needed to read the debug info
// of f, decompressed.
func (f *File) DebugSections() (*godwarf.Sections, error) {
	secs, err := godwarf.LoadSections(f.elf)
	if err != nil {
		if errors.Is(err, godwarf.ErrSectionNotFound) && f.elf.Section(".debug_info") == nil && f.elf.Section(".zdebug_info") == nil {
			return nil, ErrNoDebugInfo
		}
		return nil, err
	}
	return secs, nil
}

// Strip removes every section that is not a debug section. The section
// name table is regenerated when the file is written and the entry point
// and program headers are never written.
func (f *File) Strip() {
	log := logflags.ELFLogger()
	kept := f.Sections[:0]
	for _, s := range f.Sections {
		if isDebug(s.Name) {
			kept = append(kept, s)
			continue
		}
		if logflags.ELF() {
			log.Debugf("removing section %s (%d bytes)", s.Name, s.FileSize)
		}
	}
	f.Sections = kept
}

func isDebug(name string) bool {
	return strings.HasPrefix(name, ".debug") || strings.HasPrefix(name, ".zdebug")
}

func (f *File) section(name string) *Section {
	for _, s := range f.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// ReplaceSection replaces the contents of the section called name with
// data, which are stored uncompressed. A GNU compressed .zdebug section
// stands for the .debug section of the same name. Empty data deletes the
// section.
func (f *File) ReplaceSection(name string, data []byte) error {
	log := logflags.ELFLogger()
	zname := ""
	if strings.HasPrefix(name, ".debug") {
		zname = ".z" + name[1:]
	}
	if len(data) == 0 {
		kept := f.Sections[:0]
		for _, s := range f.Sections {
			if s.Name == name || (zname != "" && s.Name == zname) {
				if logflags.ELF() {
					log.Debugf("deleting section %s", s.Name)
				}
				continue
			}
			kept = append(kept, s)
		}
		f.Sections = kept
		return nil
	}

	s := f.section(name)
	if s == nil && zname != "" {
		s = f.section(zname)
	}
	if s == nil {
		return fmt.Errorf("%w: %s", ErrMissingSection, name)
	}
	s.Name = name
	s.Flags &^= elf.SHF_COMPRESSED
	s.Data = data
	s.Size = uint64(len(data))
	s.FileSize = s.Size
	if logflags.ELF() {
		log.Debugf("replaced section %s (%d bytes)", name, len(data))
	}
	return nil
}

// Write writes f to w.
func (f *File) Write(w io.WriteSeeker) error {
	ew := elfwriter.New(w, &f.Header, f.Flags)
	for _, s := range f.Sections {
		ew.WriteSection(&elfwriter.Section{SectionHeader: s.SectionHeader, Data: s.Data})
	}
	ew.WriteSectionHeaders()
	return ew.Err
}

// WriteFile writes f to the file at path.
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

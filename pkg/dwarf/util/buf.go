// Copyright 2009 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Buffered reading and decoding of DWARF data streams.

package util

import (
	"encoding/binary"
	"fmt"
)

// DecodeError is the error recorded by a Buf when the data it decodes is
// malformed or truncated.
type DecodeError struct {
	Name   string
	Offset uint64
	Err    string
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("decoding dwarf section %s at offset %#x: %s", e.Name, e.Offset, e.Err)
}

// Buf is a decoding buffer over a DWARF section, or a slice of one.
// The first decoding error is kept in Err, subsequent reads return zero
// values.
type Buf struct {
	Order binary.ByteOrder
	name  string
	off   uint64
	data  []byte
	Err   error
}

// MakeBuf returns a buffer decoding data, which starts at offset off of
// the section called name.
func MakeBuf(order binary.ByteOrder, name string, off uint64, data []byte) Buf {
	return Buf{Order: order, name: name, off: off, data: data}
}

// Off returns the section offset of the next byte.
func (b *Buf) Off() uint64 { return b.off }

// Len returns the number of bytes left.
func (b *Buf) Len() int { return len(b.data) }

// Slice returns a buffer over the next length bytes and advances b past
// them.
func (b *Buf) Slice(length int) Buf {
	n := *b
	data := b.data
	b.Skip(length) // Will validate length.
	if b.Err != nil {
		n.data = nil
		n.Err = b.Err
		return n
	}
	n.data = data[:length]
	return n
}

func (b *Buf) Uint8() uint8 {
	if len(b.data) < 1 {
		b.error("underflow")
		return 0
	}
	val := b.data[0]
	b.data = b.data[1:]
	b.off++
	return val
}

func (b *Buf) Uint16() uint16 {
	a := b.Bytes(2)
	if a == nil {
		return 0
	}
	return b.Order.Uint16(a)
}

func (b *Buf) Uint24() uint32 {
	a := b.Bytes(3)
	if a == nil {
		return 0
	}
	if b.Order == binary.BigEndian {
		return uint32(a[2]) | uint32(a[1])<<8 | uint32(a[0])<<16
	}
	return uint32(a[0]) | uint32(a[1])<<8 | uint32(a[2])<<16
}

func (b *Buf) Uint32() uint32 {
	a := b.Bytes(4)
	if a == nil {
		return 0
	}
	return b.Order.Uint32(a)
}

func (b *Buf) Uint64() uint64 {
	a := b.Bytes(8)
	if a == nil {
		return 0
	}
	return b.Order.Uint64(a)
}

// UintN reads an unsigned integer of size bytes.
func (b *Buf) UintN(size int) uint64 {
	switch size {
	case 1:
		return uint64(b.Uint8())
	case 2:
		return uint64(b.Uint16())
	case 4:
		return uint64(b.Uint32())
	case 8:
		return b.Uint64()
	}
	b.error(fmt.Sprintf("unsupported integer size %d", size))
	return 0
}

// Bytes returns the next n bytes, the returned slice aliases the section
// data.
func (b *Buf) Bytes(n int) []byte {
	if n < 0 || len(b.data) < n {
		b.error("underflow")
		return nil
	}
	data := b.data[0:n:n]
	b.data = b.data[n:]
	b.off += uint64(n)
	return data
}

func (b *Buf) Skip(n int) { b.Bytes(n) }

// String returns the NUL-terminated (C-like) string at the start of the buffer.
// The terminal NUL is discarded.
func (b *Buf) String() string {
	for i := 0; i < len(b.data); i++ {
		if b.data[i] == 0 {
			s := string(b.data[0:i])
			b.data = b.data[i+1:]
			b.off += uint64(i + 1)
			return s
		}
	}
	b.error("underflow")
	return ""
}

// Read a varint, which is 7 bits per byte, little endian.
// the 0x80 bit means read another byte.
func (b *Buf) Varint() (c uint64, bits uint) {
	for i := 0; i < len(b.data); i++ {
		byte := b.data[i]
		if bits < 64 {
			c |= uint64(byte&0x7F) << bits
		}
		bits += 7
		if byte&0x80 == 0 {
			b.off += uint64(i + 1)
			b.data = b.data[i+1:]
			return c, bits
		}
	}
	b.error("varint underflow")
	return 0, 0
}

// Unsigned int is just a varint.
func (b *Buf) Uint() uint64 {
	x, _ := b.Varint()
	return x
}

// Signed int is a sign-extended varint.
func (b *Buf) Int() int64 {
	ux, bits := b.Varint()
	x := int64(ux)
	if bits > 0 && bits < 64 && x&(1<<(bits-1)) != 0 {
		x |= -1 << bits
	}
	return x
}

// Offset reads a section offset, 4 bytes wide in 32-bit DWARF and 8 bytes
// wide in 64-bit DWARF.
func (b *Buf) Offset(dwarf64 bool) uint64 {
	if dwarf64 {
		return b.Uint64()
	}
	return uint64(b.Uint32())
}

// AssertEmpty checks that everything has been read from b.
func (b *Buf) AssertEmpty() {
	if len(b.data) == 0 {
		return
	}
	if len(b.data) > 5 {
		b.error(fmt.Sprintf("unexpected extra data: %x...", b.data[0:5]))
	}
	b.error(fmt.Sprintf("unexpected extra data: %x", b.data))
}

func (b *Buf) error(s string) {
	if b.Err == nil {
		b.data = nil
		b.Err = DecodeError{Name: b.name, Offset: b.off, Err: s}
	}
}

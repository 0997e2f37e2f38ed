package op

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/a2lobf/a2lobf/pkg/dwarf/util"
)

// Instruction is a decoded, not executed, stack program instruction.
type Instruction struct {
	Off      int // offset of the opcode byte inside the expression
	Opcode   Opcode
	Operands []uint64
	Block    []byte // block operand of implicit_value, entry_value and const_type
}

// Decode splits instructions into its operations without evaluating them.
// offsetSize is 4 for 32-bit DWARF and 8 for 64-bit DWARF.
// The instructions decoded before an error are returned with it.
func Decode(instructions []byte, order binary.ByteOrder, ptrSize, offsetSize int) ([]Instruction, error) {
	if order == nil {
		order = binary.LittleEndian
	}
	in := bytes.NewBuffer(instructions)
	var r []Instruction
	for in.Len() > 0 {
		off := len(instructions) - in.Len()
		opcode := Opcode(in.Next(1)[0])
		if !known(opcode) {
			return r, fmt.Errorf("invalid instruction %#x at offset %d", byte(opcode), off)
		}
		inst := Instruction{Off: off, Opcode: opcode}
		for _, arg := range operands(opcode) {
			var (
				n   uint64
				err error
			)
			switch arg {
			case 'a':
				n, err = readFixed(in, order, ptrSize)
			case 'r':
				n, err = readFixed(in, order, offsetSize)
			case '1':
				n, err = readFixed(in, order, 1)
			case '2':
				n, err = readFixed(in, order, 2)
			case '4':
				n, err = readFixed(in, order, 4)
			case '8':
				n, err = readFixed(in, order, 8)
			case 'u':
				n, err = readULEB(in)
			case 's':
				var s int64
				s, err = readSLEB(in)
				n = uint64(s)
			case 'B':
				inst.Block, err = readBlock(in, func() (uint64, error) { return readULEB(in) })
			case 'T':
				n, err = readULEB(in)
				if err == nil {
					inst.Block, err = readBlock(in, func() (uint64, error) { return readFixed(in, order, 1) })
				}
			}
			if err != nil {
				return r, fmt.Errorf("%v at offset %d: %w", opcode, off, err)
			}
			if arg != 'B' {
				inst.Operands = append(inst.Operands, n)
			}
		}
		r = append(r, inst)
	}
	return r, nil
}

// Contains reports whether instructions use any of the given opcodes.
func Contains(instructions []byte, order binary.ByteOrder, ptrSize, offsetSize int, opcodes ...Opcode) (bool, error) {
	insts, err := Decode(instructions, order, ptrSize, offsetSize)
	for _, inst := range insts {
		for _, opcode := range opcodes {
			if inst.Opcode == opcode {
				return true, nil
			}
		}
	}
	return false, err
}

func readFixed(in *bytes.Buffer, order binary.ByteOrder, size int) (uint64, error) {
	if in.Len() < size {
		return 0, ErrTruncated
	}
	return util.ReadUintRaw(bytes.NewReader(in.Next(size)), order, size)
}

func readULEB(in *bytes.Buffer) (uint64, error) {
	n, l := util.DecodeULEB128(in)
	if l == 0 {
		return 0, ErrTruncated
	}
	return n, nil
}

func readSLEB(in *bytes.Buffer) (int64, error) {
	n, l := util.DecodeSLEB128(in)
	if l == 0 {
		return 0, ErrTruncated
	}
	return n, nil
}

func readBlock(in *bytes.Buffer, size func() (uint64, error)) ([]byte, error) {
	sz, err := size()
	if err != nil {
		return nil, err
	}
	if uint64(in.Len()) < sz {
		return nil, ErrTruncated
	}
	return append([]byte{}, in.Next(int(sz))...), nil
}

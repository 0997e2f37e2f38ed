package op

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/a2lobf/a2lobf/pkg/dwarf/util"
)

// Opcode represent a DWARF stack program instruction.
// See ./opcodes.go for a full list.
type Opcode byte

var (
	// ErrStackUnderflow is returned when an operation pops more values than
	// the stack holds.
	ErrStackUnderflow = errors.New("stack underflow")
	// ErrUnsupported is returned for operations the evaluator does not
	// implement (memory dereference, subroutine calls, typed stack values,
	// address table indices).
	ErrUnsupported = errors.New("unsupported operation")
	// ErrNoContext is returned when an expression needs a register, the
	// frame base or the CFA and the evaluation context does not have it.
	ErrNoContext = errors.New("value not available in evaluation context")
	// ErrTruncated is returned when an operand runs past the end of the
	// expression.
	ErrTruncated = errors.New("truncated expression")
)

type stackfn func(Opcode, *context) error

type context struct {
	buf     *bytes.Buffer
	prog    []byte
	stack   []int64
	pieces  []Piece
	pending *Piece
	ptrSize int

	DwarfRegisters
}

// PieceKind describes where the value of a Piece lives.
type PieceKind uint8

const (
	AddrPiece PieceKind = iota // the value is in memory at Val
	RegPiece                   // the value is in register Val
	ImmPiece                   // the value is Val, or Bytes when set
)

// Piece is a piece of memory stored either at an address, in a register or
// as an immediate value. Size is zero for the only piece of a
// non-composite location.
type Piece struct {
	Size  int
	Kind  PieceKind
	Val   uint64
	Bytes []byte
}

// ExecuteStackProgram executes a DWARF location expression and returns
// either an address (int64), or a slice of Pieces for location expressions
// that don't evaluate to an address (such as register, implicit value and
// composite expressions).
func ExecuteStackProgram(regs DwarfRegisters, instructions []byte, ptrSize int) (int64, []Piece, error) {
	ctxt := &context{
		buf:            bytes.NewBuffer(instructions),
		prog:           instructions,
		stack:          make([]int64, 0, 3),
		DwarfRegisters: regs,
		ptrSize:        ptrSize,
	}

	for {
		opcodeByte, err := ctxt.buf.ReadByte()
		if err != nil {
			break
		}
		opcode := Opcode(opcodeByte)
		if ctxt.pending != nil && opcode != DW_OP_piece && opcode != DW_OP_bit_piece {
			return 0, nil, fmt.Errorf("%v after a location description that must be last", opcode)
		}
		fn, ok := oplut(opcode)
		if !ok {
			return 0, nil, fmt.Errorf("invalid instruction %#x", opcodeByte)
		}

		if err := fn(opcode, ctxt); err != nil {
			return 0, nil, fmt.Errorf("%v: %w", opcode, err)
		}
	}

	if ctxt.pending != nil {
		if ctxt.pieces != nil {
			return 0, nil, errors.New("composite location without final piece")
		}
		return 0, []Piece{*ctxt.pending}, nil
	}

	if ctxt.pieces != nil {
		return 0, ctxt.pieces, nil
	}

	if len(ctxt.stack) == 0 {
		return 0, nil, errors.New("empty OP stack")
	}

	return ctxt.stack[len(ctxt.stack)-1], nil, nil
}

// PrettyPrint prints the DWARF stack program instructions to `out`.
func PrettyPrint(out io.Writer, instructions []byte, order binary.ByteOrder, ptrSize int) {
	insts, err := Decode(instructions, order, ptrSize, 4)
	for _, inst := range insts {
		io.WriteString(out, inst.Opcode.String())
		out.Write([]byte{' '})
		for _, n := range inst.Operands {
			fmt.Fprintf(out, "%#x ", n)
		}
		if inst.Block != nil {
			fmt.Fprintf(out, "%d [%x] ", len(inst.Block), inst.Block)
		}
	}
	if err != nil {
		fmt.Fprintf(out, "<%v>", err)
	}
}

func oplut(opcode Opcode) (stackfn, bool) {
	switch {
	case opcode >= DW_OP_lit0 && opcode <= DW_OP_lit31:
		return literal, true
	case opcode >= DW_OP_reg0 && opcode <= DW_OP_reg31:
		return register, true
	case opcode >= DW_OP_breg0 && opcode <= DW_OP_breg31:
		return bregister, true
	}
	switch opcode {
	case DW_OP_addr:
		return addr, true
	case DW_OP_const1u, DW_OP_const1s, DW_OP_const2u, DW_OP_const2s,
		DW_OP_const4u, DW_OP_const4s, DW_OP_const8u, DW_OP_const8s:
		return constfixed, true
	case DW_OP_constu:
		return constu, true
	case DW_OP_consts:
		return consts, true
	case DW_OP_dup, DW_OP_drop, DW_OP_over, DW_OP_pick, DW_OP_swap, DW_OP_rot:
		return stackop, true
	case DW_OP_abs, DW_OP_neg, DW_OP_not:
		return unaryop, true
	case DW_OP_and, DW_OP_div, DW_OP_minus, DW_OP_mod, DW_OP_mul, DW_OP_or,
		DW_OP_plus, DW_OP_shl, DW_OP_shr, DW_OP_shra, DW_OP_xor,
		DW_OP_eq, DW_OP_ge, DW_OP_gt, DW_OP_le, DW_OP_lt, DW_OP_ne:
		return binaryop, true
	case DW_OP_plus_uconst:
		return plusuconsts, true
	case DW_OP_bra, DW_OP_skip:
		return branch, true
	case DW_OP_regx:
		return register, true
	case DW_OP_bregx:
		return bregister, true
	case DW_OP_fbreg:
		return framebase, true
	case DW_OP_call_frame_cfa:
		return callframecfa, true
	case DW_OP_piece:
		return piece, true
	case DW_OP_nop:
		return nop, true
	case DW_OP_push_object_address:
		return objaddr, true
	case DW_OP_stack_value:
		return stackvalue, true
	case DW_OP_implicit_value:
		return implicitvalue, true
	}
	if known(opcode) {
		return unsupported, true
	}
	return nil, false
}

func (ctxt *context) pop(n int) ([]int64, error) {
	if len(ctxt.stack) < n {
		return nil, ErrStackUnderflow
	}
	vals := make([]int64, n)
	copy(vals, ctxt.stack[len(ctxt.stack)-n:])
	ctxt.stack = ctxt.stack[:len(ctxt.stack)-n]
	return vals, nil
}

func (ctxt *context) push(v int64) {
	ctxt.stack = append(ctxt.stack, v)
}

func (ctxt *context) fixed(size int) (uint64, error) {
	if ctxt.buf.Len() < size {
		return 0, ErrTruncated
	}
	return util.ReadUintRaw(bytes.NewReader(ctxt.buf.Next(size)), ctxt.order(), size)
}

func (ctxt *context) uleb() (uint64, error) {
	n, l := util.DecodeULEB128(ctxt.buf)
	if l == 0 {
		return 0, ErrTruncated
	}
	return n, nil
}

func (ctxt *context) sleb() (int64, error) {
	n, l := util.DecodeSLEB128(ctxt.buf)
	if l == 0 {
		return 0, ErrTruncated
	}
	return n, nil
}

func unsupported(opcode Opcode, ctxt *context) error {
	return ErrUnsupported
}

func nop(opcode Opcode, ctxt *context) error {
	return nil
}

func callframecfa(opcode Opcode, ctxt *context) error {
	if ctxt.CFA == 0 {
		return fmt.Errorf("CFA: %w", ErrNoContext)
	}
	ctxt.push(ctxt.CFA)
	return nil
}

func objaddr(opcode Opcode, ctxt *context) error {
	ctxt.push(ctxt.ObjBase)
	return nil
}

func addr(opcode Opcode, ctxt *context) error {
	a, err := ctxt.fixed(ctxt.ptrSize)
	if err != nil {
		return err
	}
	ctxt.push(int64(a + ctxt.StaticBase))
	return nil
}

func literal(opcode Opcode, ctxt *context) error {
	ctxt.push(int64(opcode - DW_OP_lit0))
	return nil
}

func constfixed(opcode Opcode, ctxt *context) error {
	var size int
	switch opcode {
	case DW_OP_const1u, DW_OP_const1s:
		size = 1
	case DW_OP_const2u, DW_OP_const2s:
		size = 2
	case DW_OP_const4u, DW_OP_const4s:
		size = 4
	default:
		size = 8
	}
	n, err := ctxt.fixed(size)
	if err != nil {
		return err
	}
	switch opcode {
	case DW_OP_const1s:
		ctxt.push(int64(int8(n)))
	case DW_OP_const2s:
		ctxt.push(int64(int16(n)))
	case DW_OP_const4s:
		ctxt.push(int64(int32(n)))
	default:
		ctxt.push(int64(n))
	}
	return nil
}

func constu(opcode Opcode, ctxt *context) error {
	num, err := ctxt.uleb()
	if err != nil {
		return err
	}
	ctxt.push(int64(num))
	return nil
}

func consts(opcode Opcode, ctxt *context) error {
	num, err := ctxt.sleb()
	if err != nil {
		return err
	}
	ctxt.push(num)
	return nil
}

func stackop(opcode Opcode, ctxt *context) error {
	slen := len(ctxt.stack)
	switch opcode {
	case DW_OP_dup:
		if slen < 1 {
			return ErrStackUnderflow
		}
		ctxt.push(ctxt.stack[slen-1])
	case DW_OP_drop:
		_, err := ctxt.pop(1)
		return err
	case DW_OP_over:
		if slen < 2 {
			return ErrStackUnderflow
		}
		ctxt.push(ctxt.stack[slen-2])
	case DW_OP_pick:
		idx, err := ctxt.fixed(1)
		if err != nil {
			return err
		}
		if int(idx) >= slen {
			return ErrStackUnderflow
		}
		ctxt.push(ctxt.stack[slen-1-int(idx)])
	case DW_OP_swap:
		if slen < 2 {
			return ErrStackUnderflow
		}
		ctxt.stack[slen-1], ctxt.stack[slen-2] = ctxt.stack[slen-2], ctxt.stack[slen-1]
	case DW_OP_rot:
		if slen < 3 {
			return ErrStackUnderflow
		}
		ctxt.stack[slen-1], ctxt.stack[slen-2], ctxt.stack[slen-3] = ctxt.stack[slen-2], ctxt.stack[slen-3], ctxt.stack[slen-1]
	}
	return nil
}

func unaryop(opcode Opcode, ctxt *context) error {
	if len(ctxt.stack) < 1 {
		return ErrStackUnderflow
	}
	top := &ctxt.stack[len(ctxt.stack)-1]
	switch opcode {
	case DW_OP_abs:
		if *top < 0 {
			*top = -*top
		}
	case DW_OP_neg:
		*top = -*top
	case DW_OP_not:
		*top = ^*top
	}
	return nil
}

func binaryop(opcode Opcode, ctxt *context) error {
	vals, err := ctxt.pop(2)
	if err != nil {
		return err
	}
	second, top := vals[0], vals[1]
	var r int64
	switch opcode {
	case DW_OP_and:
		r = second & top
	case DW_OP_or:
		r = second | top
	case DW_OP_xor:
		r = second ^ top
	case DW_OP_plus:
		r = second + top
	case DW_OP_minus:
		r = second - top
	case DW_OP_mul:
		r = second * top
	case DW_OP_div:
		if top == 0 {
			return errors.New("division by zero")
		}
		r = second / top
	case DW_OP_mod:
		if top == 0 {
			return errors.New("division by zero")
		}
		r = int64(uint64(second) % uint64(top))
	case DW_OP_shl:
		r = second << uint64(top)
	case DW_OP_shr:
		r = int64(uint64(second) >> uint64(top))
	case DW_OP_shra:
		r = second >> uint64(top)
	case DW_OP_eq:
		r = b2i(second == top)
	case DW_OP_ge:
		r = b2i(second >= top)
	case DW_OP_gt:
		r = b2i(second > top)
	case DW_OP_le:
		r = b2i(second <= top)
	case DW_OP_lt:
		r = b2i(second < top)
	case DW_OP_ne:
		r = b2i(second != top)
	}
	ctxt.push(r)
	return nil
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func plusuconsts(opcode Opcode, ctxt *context) error {
	num, err := ctxt.uleb()
	if err != nil {
		return err
	}
	slen := len(ctxt.stack)
	if slen < 1 {
		return ErrStackUnderflow
	}
	ctxt.stack[slen-1] = ctxt.stack[slen-1] + int64(num)
	return nil
}

func branch(opcode Opcode, ctxt *context) error {
	off, err := ctxt.fixed(2)
	if err != nil {
		return err
	}
	if opcode == DW_OP_bra {
		vals, err := ctxt.pop(1)
		if err != nil {
			return err
		}
		if vals[0] == 0 {
			return nil
		}
	}
	pos := len(ctxt.prog) - ctxt.buf.Len() + int(int16(off))
	if pos < 0 || pos > len(ctxt.prog) {
		return fmt.Errorf("branch target %d out of range", pos)
	}
	if int16(off) < 0 {
		// Backward branches could loop forever on a crafted input.
		return fmt.Errorf("backward branch: %w", ErrUnsupported)
	}
	ctxt.buf = bytes.NewBuffer(ctxt.prog[pos:])
	return nil
}

func framebase(opcode Opcode, ctxt *context) error {
	num, err := ctxt.sleb()
	if err != nil {
		return err
	}
	if ctxt.FrameBase == 0 {
		return fmt.Errorf("frame base: %w", ErrNoContext)
	}
	ctxt.push(ctxt.FrameBase + num)
	return nil
}

func register(opcode Opcode, ctxt *context) error {
	regnum := uint64(opcode - DW_OP_reg0)
	if opcode == DW_OP_regx {
		n, err := ctxt.uleb()
		if err != nil {
			return err
		}
		regnum = n
	}
	ctxt.pending = &Piece{Kind: RegPiece, Val: regnum}
	return nil
}

func bregister(opcode Opcode, ctxt *context) error {
	regnum := uint64(opcode - DW_OP_breg0)
	if opcode == DW_OP_bregx {
		n, err := ctxt.uleb()
		if err != nil {
			return err
		}
		regnum = n
	}
	off, err := ctxt.sleb()
	if err != nil {
		return err
	}
	reg := ctxt.Reg(regnum)
	if reg == nil {
		return fmt.Errorf("register %d: %w", regnum, ErrNoContext)
	}
	ctxt.push(int64(reg.Uint64Val) + off)
	return nil
}

func stackvalue(opcode Opcode, ctxt *context) error {
	vals, err := ctxt.pop(1)
	if err != nil {
		return err
	}
	ctxt.pending = &Piece{Kind: ImmPiece, Val: uint64(vals[0])}
	return nil
}

func implicitvalue(opcode Opcode, ctxt *context) error {
	sz, err := ctxt.uleb()
	if err != nil {
		return err
	}
	if uint64(ctxt.buf.Len()) < sz {
		return ErrTruncated
	}
	ctxt.pending = &Piece{Kind: ImmPiece, Bytes: append([]byte(nil), ctxt.buf.Next(int(sz))...)}
	return nil
}

func piece(opcode Opcode, ctxt *context) error {
	sz, err := ctxt.uleb()
	if err != nil {
		return err
	}
	if ctxt.pending != nil {
		p := *ctxt.pending
		p.Size = int(sz)
		ctxt.pending = nil
		ctxt.pieces = append(ctxt.pieces, p)
		return nil
	}

	if len(ctxt.stack) == 0 {
		// An empty piece describes an optimized out part of the object.
		ctxt.pieces = append(ctxt.pieces, Piece{Size: int(sz), Kind: ImmPiece})
		return nil
	}

	addr := ctxt.stack[len(ctxt.stack)-1]
	ctxt.pieces = append(ctxt.pieces, Piece{Size: int(sz), Kind: AddrPiece, Val: uint64(addr)})
	ctxt.stack = ctxt.stack[:0]
	return nil
}

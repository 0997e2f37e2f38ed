package dwarfbuilder

import (
	"bytes"
	"encoding/binary"

	"github.com/a2lobf/a2lobf/pkg/dwarf/op"
	"github.com/a2lobf/a2lobf/pkg/dwarf/util"
)

// LocationBlock returns a DWARF expression corresponding to the list of
// arguments. Address arguments are written as ptrSize bytes in order.
func LocationBlock(order binary.ByteOrder, ptrSize int, args ...interface{}) []byte {
	var buf bytes.Buffer
	for _, arg := range args {
		switch x := arg.(type) {
		case op.Opcode:
			buf.WriteByte(byte(x))
		case int:
			util.EncodeSLEB128(&buf, int64(x))
		case uint:
			util.EncodeULEB128(&buf, uint64(x))
		case Address:
			if err := util.WriteUint(&buf, order, ptrSize, uint64(x)); err != nil {
				panic(err)
			}
		case []byte:
			buf.Write(x)
		default:
			panic("unsupported value type")
		}
	}
	return buf.Bytes()
}

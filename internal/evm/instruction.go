// Package evm defines the target instruction vocabulary emitted by the code
// generator, its textual assembly form, and a small reference interpreter
// used to check emitted programs.
package evm

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// MaxReachDepth is the deepest stack slot addressable by DUP and SWAP. Any
// access below it must be made legal by spilling to memory.
const MaxReachDepth = 16

// ErrUnknownOp is the sentinel wrapped by operator names missing from the
// arity table.
var ErrUnknownOp = errors.New("unknown operator")

// OpCode identifies one target instruction family.
type OpCode byte

const (
	// Stack instructions. PUSH carries a literal, DUP and SWAP a depth.
	PUSH OpCode = iota
	DUP
	SWAP

	// Data instructions, with fixed arities. POP is a data no-op.
	POP
	MSTORE
	MLOAD
	ADD
)

// String implements fmt.Stringer.
func (op OpCode) String() string {
	switch op {
	case PUSH:
		return "push"
	case DUP:
		return "dup"
	case SWAP:
		return "swap"
	case POP:
		return "pop"
	case MSTORE:
		return "mstore"
	case MLOAD:
		return "mload"
	case ADD:
		return "add"
	}
	return fmt.Sprintf("opcode(%d)", byte(op))
}

// IsData returns true for operators that consume and produce values, as
// opposed to the stack-shuffling instructions the generator schedules itself.
func (op OpCode) IsData() bool {
	return op >= POP
}

// DataArity returns the operand and result count of a data instruction.
// It panics on stack instructions; callers dispatch on IsData first.
func DataArity(op OpCode) (nargs, nres int) {
	switch op {
	case POP:
		return 1, 0
	case MSTORE:
		return 2, 0
	case MLOAD:
		return 1, 1
	case ADD:
		return 2, 1
	}
	panic("BUG: arity of non-data instruction " + op.String())
}

// ParseDataOp maps a surface operator name to its opcode. Only data
// instructions are nameable in source text.
func ParseDataOp(name string) (OpCode, error) {
	switch name {
	case "pop":
		return POP, nil
	case "mstore":
		return MSTORE, nil
	case "mload":
		return MLOAD, nil
	case "add":
		return ADD, nil
	}
	return 0, errors.WithMessagef(ErrUnknownOp, "%q", name)
}

// Instruction is one target instruction. Depth is meaningful for DUP and
// SWAP, Value for PUSH; both are zero otherwise.
type Instruction struct {
	Op    OpCode
	Depth int
	Value *uint256.Int
}

// Push returns a PUSH of the given literal.
func Push(value *uint256.Int) Instruction {
	return Instruction{Op: PUSH, Value: value}
}

// Dup returns a DUP of the slot at the given depth, 0 being the top.
func Dup(depth int) Instruction {
	return Instruction{Op: DUP, Depth: depth}
}

// Swap returns a SWAP of the top with the slot at the given depth.
func Swap(depth int) Instruction {
	return Instruction{Op: SWAP, Depth: depth}
}

// Data returns a bare data instruction.
func Data(op OpCode) Instruction {
	if !op.IsData() {
		panic("BUG: not a data instruction: " + op.String())
	}
	return Instruction{Op: op}
}

// String renders the instruction in assembly form. DUP depths are 0-based
// internally but 1-based in assembly, matching the usual EVM mnemonics; a
// zero push renders as push0 with no operand.
func (i Instruction) String() string {
	switch i.Op {
	case PUSH:
		if i.Value.IsZero() {
			return "push0"
		}
		return fmt.Sprintf("push%d %s", i.Value.ByteLen(), i.Value.Dec())
	case DUP:
		return fmt.Sprintf("dup%d", i.Depth+1)
	case SWAP:
		return fmt.Sprintf("swap%d", i.Depth)
	default:
		return i.Op.String()
	}
}

// Program is an ordered instruction sequence.
type Program []Instruction

// String renders the program one instruction per line, trailing newline
// included.
func (p Program) String() string {
	var b strings.Builder
	for _, i := range p {
		b.WriteString(i.String())
		b.WriteByte('\n')
	}
	return b.String()
}

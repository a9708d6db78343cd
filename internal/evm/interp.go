package evm

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// WordSize is the memory footprint of one stack value in bytes.
const WordSize = 32

// State is the observable machine state after running a program: the operand
// stack (index 0 is the bottom) and a sparse byte-addressed memory.
type State struct {
	Stack  []uint256.Int
	memory map[uint64]byte
	writes map[uint64]struct{}
}

// MemWord reads the 32-byte big-endian word at the given byte offset.
// Untouched bytes read as zero.
func (s *State) MemWord(offset uint64) uint256.Int {
	var buf [WordSize]byte
	for i := range buf {
		buf[i] = s.memory[offset+uint64(i)]
	}
	var w uint256.Int
	w.SetBytes(buf[:])
	return w
}

// TouchedMemory returns the byte offsets every MSTORE targeted. Later
// overlapping stores may have rewritten part of a word; MemWord always reads
// the current bytes.
func (s *State) TouchedMemory() map[uint64]struct{} {
	touched := make(map[uint64]struct{}, len(s.writes))
	for off := range s.writes {
		touched[off] = struct{}{}
	}
	return touched
}

func (s *State) storeWord(offset uint64, w *uint256.Int) {
	s.writes[offset] = struct{}{}
	buf := w.Bytes32()
	for i, b := range buf {
		if b == 0 {
			// Keep the map sparse; zero bytes read back as zero anyway.
			delete(s.memory, offset+uint64(i))
			continue
		}
		s.memory[offset+uint64(i)] = b
	}
}

func (s *State) pop() uint256.Int {
	top := s.Stack[len(s.Stack)-1]
	s.Stack = s.Stack[:len(s.Stack)-1]
	return top
}

// Run executes a program on an empty initial state and returns the terminal
// state. It enforces exactly the constraints the code generator must honor:
// no stack underflow and no DUP or SWAP outside the reachable window. Memory
// offsets must fit in 64 bits; this is an interpreter limit, not a machine
// rule, and emitted register traffic always stays far below it.
func Run(program Program) (*State, error) {
	s := &State{memory: make(map[uint64]byte), writes: make(map[uint64]struct{})}

	for pc, inst := range program {
		if need := stackNeed(inst); len(s.Stack) < need {
			return nil, errors.Errorf("pc %d: %s: stack underflow (%d of %d)", pc, inst, len(s.Stack), need)
		}

		switch inst.Op {
		case PUSH:
			s.Stack = append(s.Stack, *inst.Value)
		case DUP:
			if inst.Depth < 0 || inst.Depth > MaxReachDepth {
				return nil, errors.Errorf("pc %d: %s: depth out of window", pc, inst)
			}
			s.Stack = append(s.Stack, s.Stack[len(s.Stack)-1-inst.Depth])
		case SWAP:
			if inst.Depth < 1 || inst.Depth > MaxReachDepth {
				return nil, errors.Errorf("pc %d: %s: depth out of window", pc, inst)
			}
			top, deep := len(s.Stack)-1, len(s.Stack)-1-inst.Depth
			s.Stack[top], s.Stack[deep] = s.Stack[deep], s.Stack[top]
		case POP:
			s.pop()
		case MSTORE:
			offset, value := s.pop(), s.pop()
			byteOffset, err := memOffset(&offset)
			if err != nil {
				return nil, errors.WithMessagef(err, "pc %d: %s", pc, inst)
			}
			s.storeWord(byteOffset, &value)
		case MLOAD:
			offset := s.pop()
			byteOffset, err := memOffset(&offset)
			if err != nil {
				return nil, errors.WithMessagef(err, "pc %d: %s", pc, inst)
			}
			w := s.MemWord(byteOffset)
			s.Stack = append(s.Stack, w)
		case ADD:
			a, b := s.pop(), s.pop()
			var sum uint256.Int
			sum.Add(&a, &b)
			s.Stack = append(s.Stack, sum)
		default:
			return nil, errors.Errorf("pc %d: unknown opcode %d", pc, inst.Op)
		}
	}
	return s, nil
}

// stackNeed returns the number of operands an instruction reads.
func stackNeed(inst Instruction) int {
	switch inst.Op {
	case PUSH:
		return 0
	case DUP:
		return inst.Depth + 1
	case SWAP:
		return inst.Depth + 1
	default:
		nargs, _ := DataArity(inst.Op)
		return nargs
	}
}

func memOffset(offset *uint256.Int) (uint64, error) {
	if !offset.IsUint64() {
		return 0, errors.Errorf("memory offset %s out of range", offset.Dec())
	}
	return offset.Uint64(), nil
}

// Package codegen lowers a resolved straight-line block to target
// instructions. It runs four passes: occurrence counting (internal/ir),
// scheduling against an abstract stack machine, spill planning for values
// that leave the reachable window, and final lowering to instructions.
package codegen

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/evmzero/evmzero/internal/evm"
)

type preKind byte

const (
	// preRotate logically moves the value at depth `from` to depth `to` via
	// two swaps (from<->top, top<->to). A {0,0} rotate moves nothing; the
	// scheduler emits it before a pop so the spill planner has a code
	// position for the value about to disappear.
	preRotate preKind = iota
	// preDup duplicates the value at `depth` onto the top.
	preDup
	// prePush pushes a literal.
	prePush
	// preData applies a data instruction to the top of the stack.
	preData
)

// preInstr is one pre-instruction. The scheduler emits these against the
// abstract stack; the spill planner annotates the stream with spill records;
// the lowering pass turns both into final instructions.
type preInstr struct {
	kind     preKind
	from, to int          // preRotate
	depth    int          // preDup
	value    *uint256.Int // prePush
	op       evm.OpCode   // preData
}

func rotate(from, to int) preInstr { return preInstr{kind: preRotate, from: from, to: to} }
func dup(depth int) preInstr       { return preInstr{kind: preDup, depth: depth} }
func push(v *uint256.Int) preInstr { return preInstr{kind: prePush, value: v} }
func data(op evm.OpCode) preInstr  { return preInstr{kind: preData, op: op} }

// String implements fmt.Stringer, for trace logging.
func (p preInstr) String() string {
	switch p.kind {
	case preRotate:
		return fmt.Sprintf("rotate %d->%d", p.from, p.to)
	case preDup:
		return fmt.Sprintf("dup %d", p.depth)
	case prePush:
		return fmt.Sprintf("push %s", p.value.Dec())
	case preData:
		return p.op.String()
	}
	return "preinstr(?)"
}

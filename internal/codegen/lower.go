package codegen

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/evmzero/evmzero/internal/evm"
)

// noReg marks a physical slot holding a genuine stack value rather than a
// placeholder for a spilled one.
const noReg = -1

// registerFile hands out 32-byte memory slots for spilled values. Freed
// registers are reused before the region grows.
type registerFile struct {
	free  []int
	count int
	log   logrus.FieldLogger
}

func (f *registerFile) alloc() int {
	if n := len(f.free); n > 0 {
		r := f.free[n-1]
		f.free = f.free[:n-1]
		f.log.Debugf("reuse register %d", r)
		return r
	}
	r := f.count
	f.count++
	f.log.Debugf("new register %d", r)
	return r
}

func (f *registerFile) release(r int) {
	f.log.Debugf("release register %d", r)
	f.free = append(f.free, r)
}

// lowerer replays the pre-instruction stream against a physical stack model.
// Each model slot either holds a genuine value (noReg) or names the register
// its value was spilled to; the slot itself then carries a placeholder.
type lowerer struct {
	out    evm.Program
	phys   []int
	regs   registerFile
	spills []spill
	log    logrus.FieldLogger
}

// lower materializes the pre-instruction stream plus its spill plan into the
// final program, returning it with the number of registers reserved.
func lower(code []preInstr, spills []spill, log logrus.FieldLogger) (evm.Program, int) {
	l := &lowerer{regs: registerFile{log: log}, spills: spills, log: log}

	for k, instr := range code {
		switch instr.kind {
		case preRotate:
			l.lowerRotate(instr.from, instr.to)
		case preDup:
			l.lowerDup(instr.depth)
		case prePush:
			l.emit(evm.Push(instr.value))
			l.phys = append(l.phys, noReg)
		case preData:
			l.lowerData(instr.op)
		}

		for len(l.spills) > 0 && l.spills[0].codeIndex == k {
			l.lowerSpill(l.spills[0])
			l.spills = l.spills[1:]
		}
	}
	if len(l.spills) > 0 {
		panic(fmt.Sprintf("BUG: %d spill records past the end of the stream", len(l.spills)))
	}
	return l.out, l.regs.count
}

func (l *lowerer) emit(i evm.Instruction) {
	l.out = append(l.out, i)
}

// load pushes register r's 32-byte word.
func (l *lowerer) load(r int) {
	l.emit(evm.Push(uint256.NewInt(uint64(r * evm.WordSize))))
	l.emit(evm.Data(evm.MLOAD))
}

// store pops the top into register r.
func (l *lowerer) store(r int) {
	l.emit(evm.Push(uint256.NewInt(uint64(r * evm.WordSize))))
	l.emit(evm.Data(evm.MSTORE))
}

func (l *lowerer) index(depth int) int {
	return len(l.phys) - 1 - depth
}

func (l *lowerer) swapModel(fromDepth, toDepth int) {
	i, j := l.index(fromDepth), l.index(toDepth)
	l.phys[i], l.phys[j] = l.phys[j], l.phys[i]
}

func (l *lowerer) lowerRotate(from, to int) {
	if from == to {
		return // anchor
	}
	if from < evm.MaxReachDepth {
		if from != 0 {
			l.emit(evm.Swap(from))
		}
		if to != 0 {
			l.emit(evm.Swap(to))
		}
		l.swapModel(from, 0)
		l.swapModel(0, to)
		return
	}

	// The source is buried: its value lives in a register and the slot holds
	// a placeholder. Fetch it, park the displaced top in that same register,
	// and move the fetched value on to its target. The placeholder itself
	// never moves.
	r := l.phys[l.index(from)]
	if r == noReg {
		panic("BUG: deep rotate source not spilled")
	}
	l.load(r)
	l.emit(evm.Swap(1))
	top := l.index(0)
	if r2 := l.phys[top]; r2 != noReg {
		// The displaced top is itself spilled; pull its real value out so
		// the register exchange below saves a value, not a placeholder.
		l.load(r2)
		l.emit(evm.Swap(1))
		l.store(r2)
		l.regs.release(r2)
		l.phys[top] = noReg
	}
	l.store(r)
	if to != 0 {
		l.emit(evm.Swap(to))
	}
	l.swapModel(0, to)
}

func (l *lowerer) lowerDup(depth int) {
	if r := l.phys[l.index(depth)]; r != noReg {
		l.load(r)
	} else {
		l.emit(evm.Dup(depth))
	}
	l.phys = append(l.phys, noReg)
}

func (l *lowerer) lowerData(op evm.OpCode) {
	l.emit(evm.Data(op))
	nargs, nres := evm.DataArity(op)
	for i := 0; i < nargs; i++ {
		top := l.phys[len(l.phys)-1]
		l.phys = l.phys[:len(l.phys)-1]
		if top != noReg {
			panic(fmt.Sprintf("BUG: %s consumed spilled slot (register %d)", op, top))
		}
	}
	for i := 0; i < nres; i++ {
		l.phys = append(l.phys, noReg)
	}
}

// lowerSpill exchanges the slot at s.depth with a register. The emitted
// sequence is the same in both directions: push the register word, swap it
// into the slot, store what came out. Outward that saves the slot's value
// under a placeholder; inward it puts the value back and retires the
// placeholder.
func (l *lowerer) lowerSpill(s spill) {
	index := l.index(s.depth)
	if s.outward {
		if l.phys[index] != noReg {
			panic("BUG: outward spill of an already spilled slot")
		}
		r := l.regs.alloc()
		l.phys[index] = r
		l.log.Debugf("store depth %d to register %d", s.depth, r)
		l.load(r)
		l.emit(evm.Swap(s.depth + 1))
		l.store(r)
		return
	}

	r := l.phys[index]
	if r == noReg {
		panic("BUG: inward restore of a slot that is not spilled")
	}
	l.regs.release(r)
	l.phys[index] = noReg
	l.log.Debugf("restore depth %d from register %d", s.depth, r)
	l.load(r)
	l.emit(evm.Swap(s.depth + 1))
	l.store(r)
}

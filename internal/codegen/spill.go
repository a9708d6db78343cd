package codegen

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/evmzero/evmzero/internal/evm"
)

// codeLoc is a position in the pre-instruction stream paired with a stack
// depth: "right after instruction codeIndex, the slot at depth". Spill
// records are anchored to such positions, so a slot's later movement never
// invalidates them.
type codeLoc struct {
	codeIndex int
	depth     int
}

func (l codeLoc) String() string {
	return fmt.Sprintf("[%d]@%d", l.codeIndex, l.depth)
}

// spill instructs the lowering pass to exchange the slot at loc with a
// memory register: outward saves the slot's value, inward restores it.
type spill struct {
	codeIndex int
	depth     int
	outward   bool
}

// Slot statuses. A slot is born unspillable (fresh duplicate) or
// maybe-spilled (fresh value, in window); if it is needed while buried below
// the window it gets spilled at its last in-window position, and restored
// either in place (maybe-restored, then consumed) or inline by a deep
// rotate.
type spillState byte

const (
	spillStateUnspillable spillState = iota
	spillStateMaybeSpilled
	spillStateSpilled
	spillStateMaybeRestored
	spillStateRestored
)

func (s spillState) String() string {
	switch s {
	case spillStateUnspillable:
		return "unspillable"
	case spillStateMaybeSpilled:
		return "maybe-spilled"
	case spillStateSpilled:
		return "spilled"
	case spillStateMaybeRestored:
		return "maybe-restored"
	case spillStateRestored:
		return "restored"
	}
	return "state(?)"
}

type slotStatus struct {
	state spillState
	loc   codeLoc // last in-window position; meaningful for maybe-spilled and maybe-restored
}

// spillPlanner walks the pre-instruction stream with a status stack parallel
// to the abstract stack and decides which slots must round-trip through
// memory. It never mutates the stream; the records it returns are applied
// during lowering.
type spillPlanner struct {
	status []slotStatus
	spills []spill
	log    logrus.FieldLogger
}

// planSpills legalizes the stream: afterwards no rotate or dup source is
// outside the window without a planned register round-trip. The result is
// sorted by code position, outward records first within a position.
func planSpills(code []preInstr, log logrus.FieldLogger) []spill {
	p := &spillPlanner{log: log}

	for k, instr := range code {
		switch instr.kind {
		case preRotate:
			p.planRotate(k, instr.from, instr.to)
		case preDup:
			p.planDup(k, instr.depth)
		case prePush:
			p.status = append(p.status, slotStatus{state: spillStateMaybeSpilled, loc: codeLoc{k, 0}})
		case preData:
			p.planData(k, instr.op)
		}
	}

	sort.SliceStable(p.spills, func(i, j int) bool {
		a, b := p.spills[i], p.spills[j]
		if a.codeIndex != b.codeIndex {
			return a.codeIndex < b.codeIndex
		}
		return a.outward && !b.outward
	})
	return p.spills
}

func (p *spillPlanner) index(depth int) int {
	return len(p.status) - 1 - depth
}

// setReachableAt records that the slot is in window at loc.
func (p *spillPlanner) setReachableAt(index int, loc codeLoc) {
	if loc.depth >= evm.MaxReachDepth {
		panic("BUG: location outside spill window " + loc.String())
	}
	s := &p.status[index]
	switch s.state {
	case spillStateUnspillable:
		// Duplicates die before they could ever need a register.
	case spillStateMaybeSpilled:
		s.loc = loc
	case spillStateSpilled:
		s.state = spillStateMaybeRestored
		s.loc = loc
	case spillStateMaybeRestored:
		// Keep the earliest restore point.
	case spillStateRestored:
		panic("BUG: restored slot reached again at " + loc.String())
	}
}

// ensureReachable makes the slot at depth usable: a no-op inside the window,
// otherwise the slot must be (or become) memory-backed.
func (p *spillPlanner) ensureReachable(index, depth int) {
	if depth < evm.MaxReachDepth {
		return
	}
	s := &p.status[index]
	switch s.state {
	case spillStateUnspillable:
		panic("BUG: duplicate buried out of reach")
	case spillStateMaybeSpilled:
		p.log.Debugf("spill out %s", s.loc)
		p.spills = append(p.spills, spill{codeIndex: s.loc.codeIndex, depth: s.loc.depth, outward: true})
		s.state = spillStateSpilled
	case spillStateSpilled:
		// Already saved.
	case spillStateMaybeRestored:
		// The brief in-window visit did not bring it back; keep deferring.
		s.state = spillStateSpilled
	case spillStateRestored:
		panic("BUG: restored slot out of reach again")
	}
}

func (p *spillPlanner) swap(i, j int) {
	p.status[i], p.status[j] = p.status[j], p.status[i]
}

func (p *spillPlanner) planRotate(k, from, to int) {
	if to >= evm.MaxReachDepth {
		panic(fmt.Sprintf("BUG: rotate target %d outside spill window", to))
	}
	fromIndex := p.index(from)
	p.ensureReachable(fromIndex, from)

	if from < evm.MaxReachDepth {
		p.setReachableAt(fromIndex, codeLoc{k, to})
	} else {
		// The lowering pass exchanges the deep slot with the top through its
		// register: the buried value comes back for good and the displaced
		// top inherits the memory backing, with no separate spill record.
		if p.status[fromIndex].state != spillStateSpilled {
			panic("BUG: deep rotate source not spilled")
		}
		p.status[fromIndex] = slotStatus{state: spillStateRestored}
		top := p.index(0)
		if p.status[top].state == spillStateUnspillable {
			panic("BUG: duplicate displaced by deep rotate")
		}
		p.status[top] = slotStatus{state: spillStateSpilled}
	}

	p.swap(fromIndex, p.index(0))
	p.swap(p.index(0), p.index(to))
}

func (p *spillPlanner) planDup(k, depth int) {
	index := p.index(depth)
	p.ensureReachable(index, depth)
	// The push below sinks the source one slot.
	if depth+1 < evm.MaxReachDepth && p.status[index].state != spillStateRestored {
		p.setReachableAt(index, codeLoc{k, depth + 1})
	}
	p.status = append(p.status, slotStatus{state: spillStateUnspillable})
}

func (p *spillPlanner) planData(k int, op evm.OpCode) {
	nargs, nres := evm.DataArity(op)
	for i := 0; i < nargs; i++ {
		top := p.status[len(p.status)-1]
		p.status = p.status[:len(p.status)-1]
		switch top.state {
		case spillStateMaybeRestored:
			p.log.Debugf("spill in %s", top.loc)
			p.spills = append(p.spills, spill{codeIndex: top.loc.codeIndex, depth: top.loc.depth})
		case spillStateSpilled:
			panic("BUG: spilled value consumed without restore")
		}
	}
	for i := 0; i < nres; i++ {
		p.status = append(p.status, slotStatus{state: spillStateMaybeSpilled, loc: codeLoc{k, nres - 1 - i}})
	}
}

package codegen

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/evmzero/evmzero/internal/evm"
	"github.com/evmzero/evmzero/internal/ir"
)

// machine drives the abstract stack and accumulates the pre-instruction
// stream. It is oblivious to the reachable window except for the rotate and
// copy target depths, which the scheduler keeps small by construction; source
// depths may be arbitrarily deep and are legalized later by the spill
// planner.
type machine struct {
	code []preInstr
	data *stackData
	log  logrus.FieldLogger
}

func newMachine(log logrus.FieldLogger) *machine {
	return &machine{data: newStackData(), log: log}
}

func (m *machine) emit(p preInstr) {
	m.log.Debugf("emit [%d] %s", len(m.code), p)
	m.code = append(m.code, p)
}

// push produces the main instance of a constant-valued variable.
func (m *machine) push(v ir.Var, value *uint256.Int) {
	m.data.push(v)
	m.emit(push(value))
}

// pop removes the dead value on top. The {0,0} rotate is a no-op anchor
// giving the spill planner a code position for the value being removed.
func (m *machine) pop() {
	m.data.pop()
	m.emit(rotate(0, 0))
	m.emit(data(evm.POP))
}

// rotateTo moves v's nearest instance to toDepth. The source depth may be
// outside the reachable window; the target may not.
func (m *machine) rotateTo(v ir.Var, toDepth int) {
	if toDepth > evm.MaxReachDepth {
		panic("BUG: rotate target too deep")
	}
	fromDepth := m.data.findDepth(v)
	m.data.swap(fromDepth, 0)
	m.data.swap(0, toDepth)
	m.emit(rotate(fromDepth, toDepth))
}

// copyTo duplicates v onto the top and moves the duplicate to toDepth.
func (m *machine) copyTo(v ir.Var, toDepth int) {
	if toDepth > evm.MaxReachDepth {
		panic("BUG: copy target too deep")
	}
	fromDepth := m.data.findDepth(v)
	m.data.copy(v)
	m.emit(dup(fromDepth))
	if toDepth != 0 {
		m.data.swap(0, toDepth)
		m.emit(rotate(0, toDepth))
	}
}

// apply consumes the staged arguments and produces the results. The top
// nargs entries must hold the arguments in position order, top first;
// rotateTo and copyTo staging guarantees it, so a mismatch is a scheduler
// bug.
func (m *machine) apply(op evm.OpCode, args, results []ir.Var) {
	nargs, nres := evm.DataArity(op)
	if len(args) != nargs || len(results) != nres {
		panic("BUG: apply arity mismatch for " + op.String())
	}
	for i, a := range args {
		if got := m.data.stack[m.data.len()-1-i].v; got != a {
			panic(fmt.Sprintf("BUG: expected %s staged at depth %d, found %s", a, i, got))
		}
	}
	m.data.drain(nargs)
	m.data.extend(results)
	m.emit(data(op))
}

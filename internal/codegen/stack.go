package codegen

import (
	"github.com/evmzero/evmzero/internal/ir"
)

// varInstance is one abstract-stack entry: either the sole canonical copy of
// a variable (main) or a transient duplicate scheduled for imminent
// consumption.
type varInstance struct {
	v      ir.Var
	isCopy bool
}

// varLocation records where a live variable sits on the abstract stack.
// Index 0 is the stack bottom. copyIndexPlus1 is zero when no copy exists.
type varLocation struct {
	mainIndex      int
	copyIndexPlus1 int
}

func (l *varLocation) copyIndex() (int, bool) {
	if l.copyIndexPlus1 == 0 {
		return 0, false
	}
	return l.copyIndexPlus1 - 1, true
}

// stackData pairs the abstract stack with the location map. Invariant: for
// every live variable exactly one main entry exists, location[v].mainIndex
// points at it, and no two locations reference the same index. push creates
// a location record directly; every later index change or removal goes
// through setLocation to keep the two in sync.
type stackData struct {
	stack    []varInstance
	location map[ir.Var]*varLocation
}

func newStackData() *stackData {
	return &stackData{location: make(map[ir.Var]*varLocation)}
}

func (d *stackData) len() int {
	return len(d.stack)
}

// setLocation records that instance now lives at index, or that it left the
// stack (present=false). Removing a main entry deletes the variable's
// location; removing a copy only clears the copy index.
func (d *stackData) setLocation(instance varInstance, index int, present bool) {
	loc, ok := d.location[instance.v]
	if instance.isCopy {
		if !ok {
			// The main entry was drained first in the same operation.
			return
		}
		if present {
			loc.copyIndexPlus1 = index + 1
		} else {
			loc.copyIndexPlus1 = 0
		}
		return
	}
	if !ok {
		panic("BUG: no location for " + instance.v.String())
	}
	if present {
		loc.mainIndex = index
	} else {
		delete(d.location, instance.v)
	}
}

// findDepth returns the distance from the top of v's nearest instance,
// preferring a pending copy over the main entry.
func (d *stackData) findDepth(v ir.Var) int {
	loc, ok := d.location[v]
	if !ok {
		panic("BUG: no location for " + v.String())
	}
	index := loc.mainIndex
	if ci, ok := loc.copyIndex(); ok {
		index = ci
	}
	return len(d.stack) - 1 - index
}

// push appends the main instance of a freshly produced variable.
func (d *stackData) push(v ir.Var) {
	d.stack = append(d.stack, varInstance{v: v})
	d.location[v] = &varLocation{mainIndex: len(d.stack) - 1}
}

// pop removes the top entry and its location record.
func (d *stackData) pop() {
	top := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	d.setLocation(top, 0, false)
}

// copy appends a copy instance of v.
func (d *stackData) copy(v ir.Var) {
	instance := varInstance{v: v, isCopy: true}
	d.stack = append(d.stack, instance)
	d.setLocation(instance, len(d.stack)-1, true)
}

// swap exchanges the entries at the two depths.
func (d *stackData) swap(fromDepth, toDepth int) {
	top := len(d.stack) - 1
	fromIndex, toIndex := top-fromDepth, top-toDepth
	if fromIndex == toIndex {
		return
	}
	from, to := d.stack[fromIndex], d.stack[toIndex]
	d.stack[fromIndex], d.stack[toIndex] = to, from
	d.setLocation(from, toIndex, true)
	d.setLocation(to, fromIndex, true)
}

// drain removes the top count entries, top first, so a copy's location
// clears before its main entry (possibly drained by the same call) goes.
func (d *stackData) drain(count int) {
	for i := 0; i < count; i++ {
		d.pop()
	}
}

// extend appends main instances for freshly produced results, first result
// deepest.
func (d *stackData) extend(results []ir.Var) {
	for _, r := range results {
		d.push(r)
	}
}

package codegen

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/evmzero/evmzero/internal/evm"
	"github.com/evmzero/evmzero/internal/ir"
)

// ErrArity is the sentinel wrapped by statements whose argument or result
// count does not match the operator's arity.
var ErrArity = errors.New("arity mismatch")

// Config carries generation options. The zero value is usable.
type Config struct {
	// Log receives per-pass trace output. Nil discards it.
	Log logrus.FieldLogger
}

func (c Config) logger() logrus.FieldLogger {
	if c.Log != nil {
		return c.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Result is the generated program together with the number of 32-byte memory
// registers the spill planner reserved at the bottom of memory.
type Result struct {
	Program       evm.Program
	RegisterCount int
}

// Generate compiles a resolved block. Input-level mistakes (unknown
// operators, arity mismatches) return errors; any inconsistency detected
// past scheduling is a compiler bug and panics.
func Generate(rb *ir.ResolvedBlock, cfg Config) (*Result, error) {
	log := cfg.logger()

	occurs := ir.CountOccurrences(rb)
	m := newMachine(log)

	for si, s := range rb.Block.Statements {
		log.Debugf("statement %d", si)

		if s.Expr.IsConst() {
			if len(s.Results) != 1 {
				return nil, errors.WithMessagef(ErrArity, "statement %d: const produces 1 result, %d bound", si, len(s.Results))
			}
			m.push(s.Results[0], s.Expr.Const)
		} else {
			op, err := evm.ParseDataOp(s.Expr.Op)
			if err != nil {
				return nil, errors.WithMessagef(err, "statement %d", si)
			}
			nargs, nres := evm.DataArity(op)
			if len(s.Expr.Args) != nargs {
				return nil, errors.WithMessagef(ErrArity, "statement %d: %s takes %d arguments, got %d", si, op, nargs, len(s.Expr.Args))
			}
			if len(s.Results) != nres {
				return nil, errors.WithMessagef(ErrArity, "statement %d: %s produces %d results, %d bound", si, op, nres, len(s.Results))
			}

			schedule(m, occurs, op, s.Expr.Args, s.Results)
		}

		// Results nobody reads are popped right away, keeping the stack
		// tight. Reverse order so each sweep target is rotated over an
		// already-swept region.
		for i := len(s.Results) - 1; i >= 0; i-- {
			r := s.Results[i]
			if occurs[r.Index()] == 0 {
				log.Debugf("dead result %s", r)
				m.rotateTo(r, 0)
				m.pop()
			}
		}
	}

	spills := planSpills(m.code, log)
	program, registers := lower(m.code, spills, log)
	return &Result{Program: program, RegisterCount: registers}, nil
}

// schedule stages one operator's arguments and applies it. Argument i must
// sit at depth i when the operator executes. Arguments with remaining uses
// are staged as duplicates; the rest are rotated into place and consumed.
func schedule(m *machine, occurs []int, op evm.OpCode, args, results []ir.Var) {
	// An argument is duplicated iff a use remains after this one. Counting
	// down per occurrence makes repeated arguments of a single operator
	// come out right: every occurrence but the last duplicates.
	ndups := 0
	dups := make([]bool, len(args))
	for i, a := range args {
		occurs[a.Index()]--
		dups[i] = occurs[a.Index()] > 0
		if dups[i] {
			ndups++
		}
	}

	// Right to left. A non-duplicated argument is staged at its position
	// minus the duplicates still to be manufactured below it; each later
	// dup push then sinks it one slot, landing it at exactly its position.
	for i := len(args) - 1; i >= 0; i-- {
		if dups[i] {
			ndups--
		}
		toDepth := i - ndups
		if dups[i] {
			m.log.Debugf("arg %d: copy %s to depth %d", i, args[i], toDepth)
			m.copyTo(args[i], toDepth)
		} else {
			m.log.Debugf("arg %d: rotate %s to depth %d", i, args[i], toDepth)
			m.rotateTo(args[i], toDepth)
		}
	}

	m.apply(op, args, results)
}

package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnknownVariable is the sentinel wrapped by references to names with no
// preceding definition.
var ErrUnknownVariable = errors.New("unknown variable")

// Var is a dense identifier for an SSA value, assigned in definition order.
// The order has no runtime meaning; it only makes Var usable as a slice index.
type Var uint32

// String implements fmt.Stringer.
func (v Var) String() string {
	return fmt.Sprintf("v%d", uint32(v))
}

// Index returns the variable id as a slice index.
func (v Var) Index() int {
	return int(v)
}

// ResolvedBlock is a block over dense variable ids together with the total
// number of ids assigned (max id plus one).
type ResolvedBlock struct {
	Block    Block[Var]
	VarCount int
}

// Resolve rewrites names to dense ids. Every result name defines a fresh id,
// shadowing any earlier definition; every argument must refer to a name
// defined by an earlier statement.
func Resolve(b Block[string]) (*ResolvedBlock, error) {
	env := make(map[string]Var)
	var next Var

	rb := &ResolvedBlock{}
	for _, s := range b.Statements {
		rs := Statement[Var]{}

		if s.Expr.IsConst() {
			rs.Expr = ConstExpr[Var](s.Expr.Const)
		} else {
			args := make([]Var, len(s.Expr.Args))
			for i, name := range s.Expr.Args {
				v, ok := env[name]
				if !ok {
					return nil, errors.WithMessagef(ErrUnknownVariable, "%q", name)
				}
				args[i] = v
			}
			rs.Expr = Expression[Var]{Op: s.Expr.Op, Args: args}
		}

		// Results bind after the expression's arguments resolve, so an
		// argument never sees a name defined by its own statement.
		rs.Results = make([]Var, len(s.Results))
		for i, name := range s.Results {
			env[name] = next
			rs.Results[i] = next
			next++
		}

		rb.Block.Statements = append(rb.Block.Statements, rs)
	}
	rb.VarCount = int(next)
	return rb, nil
}

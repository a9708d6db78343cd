// Package ir defines the straight-line intermediate representation consumed by
// the code generator: a block of statements over named (or, after resolution,
// densely numbered) SSA values, plus the passes that turn source text into a
// resolved block.
package ir

import "github.com/holiman/uint256"

// Expression is the right-hand side of a statement: either a 256-bit constant
// literal or a named operator applied to an ordered argument list. The type
// parameter is the variable representation: string before name resolution,
// Var after.
type Expression[V any] struct {
	// Const is non-nil iff this is a constant expression.
	Const *uint256.Int
	// Op is the operator name. Empty for constant expressions.
	Op   string
	Args []V
}

// IsConst returns true for constant expressions.
func (e Expression[V]) IsConst() bool {
	return e.Const != nil
}

// ConstExpr returns a constant expression producing the given literal.
func ConstExpr[V any](value *uint256.Int) Expression[V] {
	return Expression[V]{Const: value}
}

// OpExpr returns an operator expression.
func OpExpr[V any](op string, args ...V) Expression[V] {
	return Expression[V]{Op: op, Args: args}
}

// Statement binds the results of one expression. An expression with no
// results (e.g. mstore) has an empty Results slice.
type Statement[V any] struct {
	Results []V
	Expr    Expression[V]
}

// Block is an ordered sequence of statements with no control flow.
type Block[V any] struct {
	Statements []Statement[V]
}

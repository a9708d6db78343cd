package ir

// CountOccurrences returns, for each variable, the number of times it appears
// as an operator argument anywhere in the block. The code generator treats
// the result as the remaining-use count and decrements it as arguments are
// consumed.
func CountOccurrences(rb *ResolvedBlock) []int {
	counts := make([]int, rb.VarCount)
	for _, s := range rb.Block.Statements {
		if s.Expr.IsConst() {
			continue
		}
		for _, a := range s.Expr.Args {
			counts[a.Index()]++
		}
	}
	return counts
}

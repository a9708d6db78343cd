package codegen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/evmzero/evmzero/internal/evm"
	"github.com/evmzero/evmzero/internal/ir"
)

func compile(t *testing.T, src string) *Result {
	t.Helper()
	block, err := ir.Parse(src)
	require.NoError(t, err)
	rb, err := ir.Resolve(block)
	require.NoError(t, err)
	result, err := Generate(rb, Config{})
	require.NoError(t, err)
	return result
}

func mustRun(t *testing.T, p evm.Program) *evm.State {
	t.Helper()
	state, err := evm.Run(p)
	require.NoError(t, err)
	return state
}

// requireWindow asserts every dup and swap stays inside the reachable
// window.
func requireWindow(t *testing.T, p evm.Program) {
	t.Helper()
	for i, inst := range p {
		switch inst.Op {
		case evm.DUP:
			require.LessOrEqual(t, inst.Depth, evm.MaxReachDepth, "instruction %d: %s", i, inst)
			require.GreaterOrEqual(t, inst.Depth, 0, "instruction %d: %s", i, inst)
		case evm.SWAP:
			require.LessOrEqual(t, inst.Depth, evm.MaxReachDepth, "instruction %d: %s", i, inst)
			require.GreaterOrEqual(t, inst.Depth, 1, "instruction %d: %s", i, inst)
		}
	}
}

func TestGenerate_RoundTrip(t *testing.T) {
	result := compile(t, `
		let x = const 0;
		let p = const 1;
		mstore p x;
		let y = mload p;
	`)
	require.Equal(t, "push0\npush1 1\nswap1\ndup2\nmstore\nmload\npop\n", result.Program.String())
	require.Zero(t, result.RegisterCount)

	// The loaded value is popped as dead; just before that cleanup it sits
	// on top and reads back the stored zero.
	state := mustRun(t, result.Program[:len(result.Program)-1])
	require.Len(t, state.Stack, 1)
	require.True(t, state.Stack[0].IsZero())

	state = mustRun(t, result.Program)
	require.Empty(t, state.Stack)
}

func TestGenerate_DeadResultPop(t *testing.T) {
	result := compile(t, `
		let a = const 7;
		let b = const 8;
		let c = add a b;
		pop c;
	`)
	require.Equal(t, "push1 7\npush1 8\nswap1\nadd\npop\n", result.Program.String())

	state := mustRun(t, result.Program)
	require.Empty(t, state.Stack)
}

func TestGenerate_Duplication(t *testing.T) {
	result := compile(t, `
		let a = const 3;
		let b = add a a;
	`)

	dups := 0
	for _, inst := range result.Program {
		if inst.Op == evm.DUP {
			dups++
		}
	}
	require.GreaterOrEqual(t, dups, 1, "argument used twice must be duplicated")

	// b is dead and swept; its value is on top just before the final pop.
	last := result.Program[len(result.Program)-1]
	require.Equal(t, evm.POP, last.Op)
	state := mustRun(t, result.Program[:len(result.Program)-1])
	require.Equal(t, uint64(6), state.Stack[len(state.Stack)-1].Uint64())
}

// deepSource defines count constants x0..x{count-1} (value i+base), applies
// body, then pops the listed leftovers.
func deepSource(count int, base uint64, body string, leftovers ...int) string {
	var b strings.Builder
	for i := 0; i < count; i++ {
		fmt.Fprintf(&b, "let x%d = const %d;\n", i, uint64(i)+base)
	}
	b.WriteString(body)
	for _, i := range leftovers {
		fmt.Fprintf(&b, "pop x%d;\n", i)
	}
	return b.String()
}

func TestGenerate_DeepSpill(t *testing.T) {
	// 17 live constants bury x0 at depth 16, below the planner's window: the
	// add forces one register round-trip.
	body := "let s = add x0 x1;\nlet p = const 1000;\nmstore p s;\n"
	leftovers := []int{2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	result := compile(t, deepSource(17, 5, body, leftovers...))

	require.Equal(t, 1, result.RegisterCount)
	requireWindow(t, result.Program)

	stores, loads := 0, 0
	for _, inst := range result.Program {
		switch inst.Op {
		case evm.MSTORE:
			stores++
		case evm.MLOAD:
			loads++
		}
	}
	require.Greater(t, stores, 1, "register traffic beyond the user mstore")
	require.GreaterOrEqual(t, loads, 1)

	state := mustRun(t, result.Program)
	require.Empty(t, state.Stack)
	memWord1000 := state.MemWord(1000)
	require.Equal(t, uint64(11), memWord1000.Uint64(), "x0+x1 stored outside the register region")
}

func TestGenerate_DeepCleanup(t *testing.T) {
	// Popping the deepest value first forces it from depth 16 to the top
	// through a register exchange.
	leftovers := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	result := compile(t, deepSource(17, 0, "", leftovers...))

	require.Equal(t, 1, result.RegisterCount)
	requireWindow(t, result.Program)

	state := mustRun(t, result.Program)
	require.Empty(t, state.Stack)
}

func TestGenerate_RepeatedDeepArgument(t *testing.T) {
	// Both operands of the add are the buried x0: one deep rotate restores
	// it, then the duplicate is manufactured from the restored copy.
	body := "let s = add x0 x0;\nlet p = const 2000;\nmstore p s;\n"
	leftovers := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	result := compile(t, deepSource(17, 9, body, leftovers...))

	require.Equal(t, 1, result.RegisterCount)
	requireWindow(t, result.Program)

	state := mustRun(t, result.Program)
	require.Empty(t, state.Stack)
	memWord2000 := state.MemWord(2000)
	require.Equal(t, uint64(18), memWord2000.Uint64())
}

func TestGenerate_ManySpills(t *testing.T) {
	// 25 live constants popped oldest-first: nine values start below the
	// window, the first five are still below it when popped, and five
	// displaced tops inherit their registers.
	leftovers := make([]int, 25)
	for i := range leftovers {
		leftovers[i] = i
	}
	result := compile(t, deepSource(25, 0, "", leftovers...))

	requireWindow(t, result.Program)
	require.GreaterOrEqual(t, result.RegisterCount, 1)
	// Property: the register region never outgrows the overhang above the
	// window (max depth 25 here).
	require.LessOrEqual(t, result.RegisterCount, 25-evm.MaxReachDepth+1)

	state := mustRun(t, result.Program)
	require.Empty(t, state.Stack)
}

func TestGenerate_WindowProperty(t *testing.T) {
	sources := []struct {
		name string
		src  string
	}{
		{"shallow", "let a = const 1;\nlet b = const 2;\nlet c = add a b;\npop c;\n"},
		{"deep pops", deepSource(20, 0, "", 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19)},
		{"deep reverse pops", deepSource(20, 0, "", 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0)},
	}

	for _, tt := range sources {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			result := compile(t, tc.src)
			requireWindow(t, result.Program)
			state := mustRun(t, result.Program)
			require.Empty(t, state.Stack)
		})
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		sentinel error
	}{
		{name: "mstore missing argument", src: "let p = const 0;\nmstore p;", sentinel: ErrArity},
		{name: "add extra argument", src: "let a = const 1;\nlet b = add a a a;", sentinel: ErrArity},
		{name: "const multiple results", src: "let a, b = const 1;", sentinel: ErrArity},
		{name: "pop binds result", src: "let a = const 1;\nlet b = pop a;", sentinel: ErrArity},
		{name: "unknown operator", src: "let a = const 1;\nlet b = mul a a;", sentinel: evm.ErrUnknownOp},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			block, err := ir.Parse(tc.src)
			require.NoError(t, err)
			rb, err := ir.Resolve(block)
			require.NoError(t, err)
			_, err = Generate(rb, Config{})
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.sentinel), "want %v, got %v", tc.sentinel, err)
		})
	}
}

func TestGenerate_EmptyBlock(t *testing.T) {
	result := compile(t, "")
	require.Empty(t, result.Program)
	require.Zero(t, result.RegisterCount)
}

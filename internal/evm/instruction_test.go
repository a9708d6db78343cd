package evm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestInstruction_String(t *testing.T) {
	big, err := uint256.FromDecimal("340282366920938463463374607431768211456") // 2^128
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    Instruction
		expected string
	}{
		{name: "push zero", input: Push(uint256.NewInt(0)), expected: "push0"},
		{name: "push one byte", input: Push(uint256.NewInt(7)), expected: "push1 7"},
		{name: "push boundary", input: Push(uint256.NewInt(255)), expected: "push1 255"},
		{name: "push two bytes", input: Push(uint256.NewInt(256)), expected: "push2 256"},
		{name: "push wide", input: Push(big), expected: "push17 340282366920938463463374607431768211456"},
		{name: "dup top", input: Dup(0), expected: "dup1"},
		{name: "dup deepest", input: Dup(16), expected: "dup17"},
		{name: "swap", input: Swap(3), expected: "swap3"},
		{name: "pop", input: Data(POP), expected: "pop"},
		{name: "mstore", input: Data(MSTORE), expected: "mstore"},
		{name: "mload", input: Data(MLOAD), expected: "mload"},
		{name: "add", input: Data(ADD), expected: "add"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.input.String())
		})
	}
}

func TestProgram_String(t *testing.T) {
	p := Program{Push(uint256.NewInt(0)), Dup(0), Data(ADD)}
	require.Equal(t, "push0\ndup1\nadd\n", p.String())
}

func TestDataArity(t *testing.T) {
	tests := []struct {
		op           OpCode
		nargs, nres int
	}{
		{POP, 1, 0},
		{MSTORE, 2, 0},
		{MLOAD, 1, 1},
		{ADD, 2, 1},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.op.String(), func(t *testing.T) {
			nargs, nres := DataArity(tc.op)
			require.Equal(t, tc.nargs, nargs)
			require.Equal(t, tc.nres, nres)
		})
	}

	require.Panics(t, func() { DataArity(PUSH) })
}

func TestParseDataOp(t *testing.T) {
	for _, name := range []string{"pop", "mstore", "mload", "add"} {
		op, err := ParseDataOp(name)
		require.NoError(t, err)
		require.Equal(t, name, op.String())
		require.True(t, op.IsData())
	}

	_, err := ParseDataOp("mul")
	require.True(t, errors.Is(err, ErrUnknownOp))
	require.Contains(t, err.Error(), "mul")
}

func TestData_PanicsOnStackOp(t *testing.T) {
	require.Panics(t, func() { Data(SWAP) })
}

// Command evmzero compiles straight-line IR to stack-machine assembly whose
// dup/swap traffic never reaches below the addressable window, spilling
// values through a reserved memory region instead.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/evmzero/evmzero/internal/codegen"
	"github.com/evmzero/evmzero/internal/evm"
	"github.com/evmzero/evmzero/internal/ir"
)

const version = "0.1.0"

func main() {
	os.Exit(doMain(os.Stdin, os.Stdout, os.Stderr, os.Args[1:]))
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdin io.Reader, stdout, stderr io.Writer, args []string) int {
	log := logrus.New()
	log.SetOutput(stderr)

	root := newRootCmd(stdout, log)
	root.SetIn(stdin)
	root.SetArgs(args)
	root.SetOut(stderr)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		log.Error(err)
		return 1
	}
	return 0
}

func newRootCmd(stdout io.Writer, log *logrus.Logger) *cobra.Command {
	var trace bool
	root := &cobra.Command{
		Use:           "evmzero",
		Short:         "compile straight-line IR to spill-legal stack code",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if trace {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVar(&trace, "trace", false, "log scheduling, spill and register decisions")
	root.AddCommand(newCompileCmd(stdout, log))
	root.AddCommand(newRunCmd(stdout, log))
	root.AddCommand(newVersionCmd(stdout))
	return root
}

func newCompileCmd(stdout io.Writer, log *logrus.Logger) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile [source|-]",
		Short: "translate a source file to assembly text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := compileSource(cmd, args[0], log)
			if err != nil {
				return err
			}
			w := stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err = io.WriteString(w, result.Program.String())
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write assembly to a file instead of stdout")
	return cmd
}

func newRunCmd(stdout io.Writer, log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run [source|-]",
		Short: "compile and execute on the reference interpreter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := compileSource(cmd, args[0], log)
			if err != nil {
				return err
			}
			state, err := evm.Run(result.Program)
			if err != nil {
				return err
			}
			printState(stdout, state, result.RegisterCount)
			return nil
		},
	}
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the evmzero version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(stdout, "evmzero", version)
		},
	}
}

func compileSource(cmd *cobra.Command, path string, log *logrus.Logger) (*codegen.Result, error) {
	var src []byte
	var err error
	if path == "-" {
		src, err = io.ReadAll(cmd.InOrStdin())
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	block, err := ir.Parse(string(src))
	if err != nil {
		return nil, err
	}
	rb, err := ir.Resolve(block)
	if err != nil {
		return nil, err
	}
	return codegen.Generate(rb, codegen.Config{Log: log})
}

// printState lists the terminal stack top first, then every touched nonzero
// memory word outside the spill-register region.
func printState(w io.Writer, state *evm.State, registers int) {
	for i := len(state.Stack) - 1; i >= 0; i-- {
		fmt.Fprintf(w, "stack[%d] = %s\n", len(state.Stack)-1-i, state.Stack[i].Dec())
	}

	regionEnd := uint64(registers * evm.WordSize)
	var offsets []uint64
	for off := range state.TouchedMemory() {
		if off >= regionEnd {
			offsets = append(offsets, off)
		}
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	for _, off := range offsets {
		word := state.MemWord(off)
		if word.IsZero() {
			continue
		}
		fmt.Fprintf(w, "mem[%d] = %s\n", off, word.Dec())
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

// evalCmd is the one-shot evaluator: it compiles and evaluates exactly one
// expression, either given inline with -e or read whole from a file named
// as the positional argument, and prints the resulting value.
type evalCmd struct {
	compiler *Compiler
	inline   string
}

func (*evalCmd) Name() string     { return "eval" }
func (*evalCmd) Synopsis() string { return "compile and evaluate one expression" }
func (*evalCmd) Usage() string {
	return `eval -e "<expr>" | eval <file>:
  Compile and evaluate one expression, printing its result.
`
}

func (r *evalCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.inline, "e", "", "expression text to evaluate, instead of a file argument")
}

func (r *evalCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	source, name, status := readExprArg(r.inline, f.Args())
	if status != subcommands.ExitSuccess {
		return status
	}

	expr, err := r.compiler.Compile(name, source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	val, err := expr.Evaluate(expr.NewScope())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(val.GoString())
	return subcommands.ExitSuccess
}

// readExprArg resolves an expression's source text and a diagnostic name
// from either the -e inline flag or a single file argument, used by both
// evalCmd and emitCmd.
func readExprArg(inline string, args []string) (source, name string, status subcommands.ExitStatus) {
	if inline != "" {
		return inline, "<eval>", subcommands.ExitSuccess
	}
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "💥 no expression given: pass -e \"<expr>\" or a file path")
		return "", "", subcommands.ExitUsageError
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to read file: %v\n", err)
		return "", "", subcommands.ExitFailure
	}
	return string(data), args[0], subcommands.ExitSuccess
}

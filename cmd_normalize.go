package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

// normalizeCmd compiles an expression and prints its normalized string
// (the as-parsed form re-serialized under configurable formatting rules)
// and, with -optimized, the optimized string (the same, after the
// compiler's constant folding and dead-branch elimination) instead of
// evaluating it.
type normalizeCmd struct {
	compiler  *Compiler
	inline    string
	optimized bool
}

func (*normalizeCmd) Name() string     { return "normalize" }
func (*normalizeCmd) Synopsis() string { return "print an expression's normalized or optimized form" }
func (*normalizeCmd) Usage() string {
	return `normalize [-optimized] -e "<expr>" | normalize [-optimized] <file>:
  Compile an expression and print its normalized string, without evaluating
  it. With -optimized, print the optimized string instead (spec.md §3's
  normalized-string/optimized-string Expression fields).
`
}

func (cmd *normalizeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.inline, "e", "", "expression text, instead of a file argument")
	f.BoolVar(&cmd.optimized, "optimized", false, "print the optimized (post-folding) string instead of the normalized one")
}

func (cmd *normalizeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	source, name, status := readExprArg(cmd.inline, f.Args())
	if status != subcommands.ExitSuccess {
		return status
	}

	expr, err := cmd.compiler.Compile(name, source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if cmd.optimized {
		opt, err := expr.Optimized()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		fmt.Println(opt)
		return subcommands.ExitSuccess
	}
	fmt.Println(expr.Normalized())
	return subcommands.ExitSuccess
}

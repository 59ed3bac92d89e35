package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"
)

// replCmd implements the interactive REPL: each line is compiled and
// evaluated as its own expression, sharing one repo-backed Compiler so
// named-expression references resolve across lines.
type replCmd struct {
	compiler *Compiler
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "start an interactive expression REPL" }
func (*replCmd) Usage() string {
	return `repl:
  Start an interactive REPL. Each line is compiled and evaluated as one
  expression. ":norm" and ":opt" show the normalized/optimized form of the
  previous line; "exit" or Ctrl-D quits.
`
}
func (r *replCmd) SetFlags(f *flag.FlagSet) {}

func (r *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rl, err := readline.New(">>> ")
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	fmt.Println("xpr expression REPL — type an expression, or \"exit\" to quit.")

	var last *Expression

	for {
		line, err := rl.Readline()
		if err != nil {
			return subcommands.ExitSuccess
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "exit":
			return subcommands.ExitSuccess
		case line == ":norm":
			if last == nil {
				fmt.Println("no previous expression")
				continue
			}
			fmt.Println(last.Normalized())
			continue
		case line == ":opt":
			if last == nil {
				fmt.Println("no previous expression")
				continue
			}
			opt, err := last.Optimized()
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println(opt)
			continue
		}

		expr, err := r.compiler.Compile("<repl>", line)
		if err != nil {
			fmt.Println(err)
			continue
		}
		last = expr

		val, err := expr.Evaluate(expr.NewScope())
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Println(val.GoString())
	}
}

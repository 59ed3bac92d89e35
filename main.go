// Command xpr is the reference CLI for the expression library: a REPL, a
// one-shot evaluator, a bytecode disassembler, and a normalize-only mode,
// following the teacher's flat cmd_*.go-per-subcommand layout
// (_examples/informatter-nilan/main.go).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"xpr/builtins"
	"xpr/plugin"
	"xpr/repo"
)

var exprFile = flag.String("expr-file", "", "path to a name = \"expr\" named-expression file loaded into the repository")

func defaultRegistry() *plugin.Registry {
	return plugin.NewRegistry(
		builtins.NewArithmetic(),
		builtins.NewComparison(),
		builtins.NewLogic(),
		builtins.NewStrings(),
		builtins.NewMath(),
		builtins.NewDateTime(),
	)
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	store := repo.NewMap()

	c := NewCompiler(defaultRegistry(), WithRepo(store))

	subcommands.Register(&replCmd{compiler: c}, "")
	subcommands.Register(&evalCmd{compiler: c}, "")
	subcommands.Register(&emitCmd{compiler: c}, "")
	subcommands.Register(&normalizeCmd{compiler: c}, "")

	flag.Parse()

	if *exprFile != "" {
		if err := store.LoadFile(*exprFile); err != nil {
			fmt.Fprintf(os.Stderr, "loading %s: %v\n", *exprFile, err)
			os.Exit(1)
		}
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}

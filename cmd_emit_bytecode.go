package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"xpr/compiler"
)

// emitCmd compiles one expression and prints its bytecode, either as a
// human-readable disassembly (default) or as raw hexadecimal, optionally
// writing the result to a file instead of stdout.
type emitCmd struct {
	compiler *Compiler
	inline   string
	hex      bool
	out      string
}

func (*emitCmd) Name() string     { return "emit" }
func (*emitCmd) Synopsis() string { return "emit the compiled bytecode of an expression" }
func (*emitCmd) Usage() string {
	return `emit -e "<expr>" | emit <file>:
  Compile an expression and print its disassembled bytecode (or, with -hex,
  its raw encoded instruction stream).
`
}

func (cmd *emitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.inline, "e", "", "expression text, instead of a file argument")
	f.BoolVar(&cmd.hex, "hex", false, "dump the raw instruction stream as hexadecimal instead of disassembling")
	f.StringVar(&cmd.out, "out", "", "write output to this file instead of stdout")
}

func (cmd *emitCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	source, name, status := readExprArg(cmd.inline, f.Args())
	if status != subcommands.ExitSuccess {
		return status
	}

	expr, err := cmd.compiler.Compile(name, source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	var output string
	if cmd.hex {
		output = hex.EncodeToString(expr.program.Instructions) + "\n"
	} else {
		output = disassemble(expr.program)
	}

	if cmd.out == "" {
		fmt.Print(output)
		return subcommands.ExitSuccess
	}
	if err := os.WriteFile(cmd.out, []byte(output), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "💥 writing %s: %v\n", cmd.out, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// disassemble renders prog's instruction stream as a human-readable
// listing, one instruction per line, annotated with the constant/callback/
// subroutine pool entry each operand indexes (spec.md §4.4's opcode
// "debug-info").
func disassemble(prog *compiler.Program) string {
	var sb strings.Builder
	ins := prog.Instructions
	ip := 0
	for ip < len(ins) {
		op := compiler.Opcode(ins[ip])
		operand := compiler.ReadOperand(ins, ip)
		fmt.Fprintf(&sb, "%04d %-14s", ip, op)
		switch op {
		case compiler.PushConstant:
			fmt.Fprintf(&sb, " %-4d ; %s\n", operand, prog.ConstantsPool[operand].GoString())
		case compiler.InvokeCallback:
			meta := prog.CallbacksPool[operand].Meta
			label := meta.Name
			if label == "" {
				label = meta.Symbol
			}
			fmt.Fprintf(&sb, " %-4d ; %s/%d -> %s\n", operand, label, meta.ArgCount, meta.ResultType)
		case compiler.Subroutine:
			meta := prog.SubroutinePool[operand]
			fmt.Fprintf(&sb, " %-4d ; %s -> %s\n", operand, meta.Name, meta.ResultType)
		case compiler.JumpIfFalse, compiler.Jump:
			fmt.Fprintf(&sb, " -> %04d\n", operand)
		default:
			sb.WriteByte('\n')
		}
		ip += compiler.InstructionWidth
	}
	fmt.Fprintf(&sb, "; result type: %s\n", prog.ResultType)
	return sb.String()
}

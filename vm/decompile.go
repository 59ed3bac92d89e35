package vm

import (
	"fmt"

	"xpr/ast"
	"xpr/compiler"
)

// Decompile reconstructs an ast.Node tree from a compiled Program (spec.md
// §4.5), the inverse of what compiler.Compiler does. It is used to produce
// an "optimized" rendering of an expression: source text for the folded,
// dead-branch-eliminated program actually compiled, rather than the
// original source. A folded constant that came from a plug-in call carrying
// a LiteralWriter is rendered back as that call (e.g. "Days(3)") via
// ast.Literal.Display instead of an opaque value.
func Decompile(prog *compiler.Program) (ast.Node, error) {
	nodes, err := decompileSpan(prog, 0, len(prog.Instructions))
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, RuntimeError{Message: fmt.Sprintf("decompile: expected one root node, got %d", len(nodes))}
	}
	return nodes[0], nil
}

// decompileSpan interprets instructions in [start, end) the same way the VM
// executes them, building ast.Node values on a stack instead of value.Value,
// and returns whatever nodes are left on the stack (normally exactly one,
// for any span the compiler itself emitted for a single expression).
//
// JumpIfFalse/Jump are special-cased to recognize the exact byte layout
// VisitConditional emits ([Q][JumpIfFalse t1][T][Jump t2][F], with t1
// always landing immediately after the Jump instruction that closes the T
// branch) and reconstruct an ast.Conditional, recursing into the T and F
// spans. No other source of these two opcodes exists in this compiler, so
// encountering a bare Jump outside that pattern is a RuntimeError.
func decompileSpan(prog *compiler.Program, start, end int) ([]ast.Node, error) {
	ins := prog.Instructions
	var stack []ast.Node
	ip := start
	for ip < end {
		op := compiler.Opcode(ins[ip])
		switch op {
		case compiler.PushConstant:
			idx := compiler.ReadOperand(ins, ip)
			val := prog.ConstantsPool[idx]
			lit := &ast.Literal{Value: val}
			if writer, ok := prog.ConstantWriters[int(idx)]; ok {
				lit.Display = writer(val)
			}
			stack = append(stack, lit)
			ip += compiler.InstructionWidth

		case compiler.InvokeCallback:
			idx := compiler.ReadOperand(ins, ip)
			entry := prog.CallbacksPool[idx]
			n := entry.Meta.ArgCount
			if len(stack) < n {
				return nil, RuntimeError{Message: "decompile: callback argument underflow"}
			}
			args := append([]ast.Node(nil), stack[len(stack)-n:]...)
			stack = stack[:len(stack)-n]
			stack = append(stack, buildCallNode(entry.Meta, args))
			ip += compiler.InstructionWidth

		case compiler.Subroutine:
			idx := compiler.ReadOperand(ins, ip)
			meta := prog.SubroutinePool[idx]
			n := meta.ArgCount
			if len(stack) < n {
				return nil, RuntimeError{Message: "decompile: subroutine argument underflow"}
			}
			args := append([]ast.Node(nil), stack[len(stack)-n:]...)
			stack = stack[:len(stack)-n]
			node, err := buildSubroutineNode(meta, args)
			if err != nil {
				return nil, err
			}
			stack = append(stack, node)
			ip += compiler.InstructionWidth

		case compiler.JumpIfFalse:
			if len(stack) < 1 {
				return nil, RuntimeError{Message: "decompile: conditional missing its condition"}
			}
			q := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			target := int(compiler.ReadOperand(ins, ip))
			jumpEndPos := target - compiler.InstructionWidth
			if jumpEndPos < ip+compiler.InstructionWidth || jumpEndPos >= end ||
				compiler.Opcode(ins[jumpEndPos]) != compiler.Jump {
				return nil, RuntimeError{Message: "decompile: malformed conditional layout"}
			}

			tNodes, err := decompileSpan(prog, ip+compiler.InstructionWidth, jumpEndPos)
			if err != nil {
				return nil, err
			}
			if len(tNodes) != 1 {
				return nil, RuntimeError{Message: "decompile: conditional true-branch did not reduce to one node"}
			}

			fEnd := int(compiler.ReadOperand(ins, jumpEndPos))
			fNodes, err := decompileSpan(prog, jumpEndPos+compiler.InstructionWidth, fEnd)
			if err != nil {
				return nil, err
			}
			if len(fNodes) != 1 {
				return nil, RuntimeError{Message: "decompile: conditional false-branch did not reduce to one node"}
			}

			stack = append(stack, &ast.Conditional{Q: q, T: tNodes[0], F: fNodes[0]})
			ip = fEnd

		case compiler.Jump:
			return nil, RuntimeError{Message: fmt.Sprintf("decompile: unexpected bare Jump at ip %d", ip)}

		default:
			return nil, RuntimeError{Message: fmt.Sprintf("decompile: unknown opcode %v at ip %d", op, ip)}
		}
	}
	return stack, nil
}

// buildCallNode reconstructs whichever AST shape produced the InvokeCallback
// instruction described by meta: a unary or binary operator if Meta.Symbol
// is set, a named function call otherwise (spec.md §4.5).
func buildCallNode(meta compiler.CallbackMeta, args []ast.Node) ast.Node {
	if meta.Symbol != "" {
		switch len(args) {
		case 1:
			return &ast.UnaryOp{Symbol: meta.Symbol, Operand: args[0], Position: meta.Position}
		case 2:
			return &ast.BinaryOp{Symbol: meta.Symbol, LHS: args[0], RHS: args[1], Position: meta.Position,
				OriginalSymbol: meta.OriginalSymbol}
		}
	}
	return &ast.Function{Name: meta.Name, Args: args, Position: meta.Position}
}

// buildSubroutineNode reconstructs whichever nested-expression call shape
// produced a Subroutine instruction. A plain by-name or compile-time-pinned
// reference decompiles back to a zero-arg call on its name; the
// evaluation-time Expression(name, replacement[, throw]) form recurses into
// its own Replacement Program to rebuild the replacement argument, since that
// Program was never inlined into the parent's instruction stream.
func buildSubroutineNode(meta compiler.SubroutineMeta, args []ast.Node) (ast.Node, error) {
	if meta.Replacement != nil {
		replacement, err := Decompile(meta.Replacement)
		if err != nil {
			return nil, err
		}
		callArgs := append([]ast.Node{args[0], replacement}, args[1:]...)
		return &ast.Function{Name: "Expression", Args: callArgs, Position: meta.Position}, nil
	}
	return &ast.Function{Name: meta.Name, Position: meta.Position}, nil
}

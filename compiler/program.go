// Package compiler turns an AST into a linear bytecode Program of exactly
// five opcodes (spec.md §4.4). Each instruction carries the metadata that
// package vm's Decompile uses to reconstruct an AST from a Program.
package compiler

import (
	"encoding/binary"
	"fmt"

	"xpr/plugin"
	"xpr/value"
)

// Opcode is one of the five instruction kinds named in spec.md §4.4.
type Opcode byte

const (
	// PushConstant pushes ConstantsPool[operand] onto the evaluation stack.
	PushConstant Opcode = iota
	// InvokeCallback pops the top N values (N given by the instruction's
	// Meta.ArgCount), calls the callback at CallbacksPool[operand] with
	// them, and pushes the result.
	InvokeCallback
	// JumpIfFalse pops the top value; if it is not Truthy, sets ip to
	// operand (a byte offset into Instructions).
	JumpIfFalse
	// Jump unconditionally sets ip to operand.
	Jump
	// Subroutine invokes a named expression's compiled Program at
	// evaluation time, per spec.md §4.3.4/§6. operand indexes
	// SubroutinePool.
	Subroutine
)

func (op Opcode) String() string {
	switch op {
	case PushConstant:
		return "PushConstant"
	case InvokeCallback:
		return "InvokeCallback"
	case JumpIfFalse:
		return "JumpIfFalse"
	case Jump:
		return "Jump"
	case Subroutine:
		return "Subroutine"
	default:
		return fmt.Sprintf("Opcode(%d)", byte(op))
	}
}

// OpDefinition describes how an opcode's operand is encoded, mirroring the
// teacher's OpCodeDefinition table.
type OpDefinition struct {
	Name          string
	OperandWidths []int
}

var definitions = map[Opcode]*OpDefinition{
	PushConstant:   {Name: "PushConstant", OperandWidths: []int{2}},
	InvokeCallback: {Name: "InvokeCallback", OperandWidths: []int{2}},
	JumpIfFalse:    {Name: "JumpIfFalse", OperandWidths: []int{2}},
	Jump:           {Name: "Jump", OperandWidths: []int{2}},
	Subroutine:     {Name: "Subroutine", OperandWidths: []int{2}},
}

func Lookup(op Opcode) (*OpDefinition, error) {
	def, ok := definitions[op]
	if !ok {
		return nil, fmt.Errorf("opcode %v undefined", op)
	}
	return def, nil
}

// Instructions is the raw encoded instruction stream.
type Instructions []byte

// MakeInstruction encodes op and its operand (all five opcodes take exactly
// one uint16 operand: a constant-pool index, callback-pool index,
// subroutine-pool index, or jump target byte offset).
func MakeInstruction(op Opcode, operand int) []byte {
	def, err := Lookup(op)
	if err != nil {
		return nil
	}
	instr := make([]byte, 1+def.OperandWidths[0])
	instr[0] = byte(op)
	binary.BigEndian.PutUint16(instr[1:], uint16(operand))
	return instr
}

// ReadOperand decodes the uint16 operand of the instruction at ip.
func ReadOperand(ins Instructions, ip int) uint16 {
	return binary.BigEndian.Uint16(ins[ip+1:])
}

// InstructionWidth is the fixed width of every instruction in this VM: one
// opcode byte plus one uint16 operand.
const InstructionWidth = 3

// CallbackMeta is the per-InvokeCallback-instruction bookkeeping the
// compiler emits alongside the instruction stream, consumed by the VM (to
// know how many stack slots to pop) and by the decompiler (spec.md §4.5)
// to rebuild an ast.Function or ast.BinaryOp/UnaryOp node.
type CallbackMeta struct {
	Name       string // function/operator name as written in source, empty for operators
	Symbol     string // operator symbol, empty for named functions
	ArgCount   int
	ResultType *value.Type
	Position   int // AST node position, for decompiled literal/error positions

	// LiteralWriter renders a folded-constant result of ResultType back
	// into source form (spec.md §4.5); nil if the plug-in didn't supply one.
	LiteralWriter func(value.Value) string

	// OriginalSymbol is Symbol as written in source, when a binary plug-in
	// rewrote it (spec.md §4.3.2's operator-symbol rewriting, e.g. "&" to
	// "&&"). Empty when no rewrite happened. Unused for unary operators.
	OriginalSymbol string
}

// SubroutineMeta records the name and declared argument count of a
// Subroutine instruction's target, resolved at evaluation time through a
// NamedExpressionRepository (spec.md §4.3.4/§6). ResultType is the type the
// compiler observed when it resolved the name at compile time; the VM
// compares it against the type of whatever the repository holds under that
// name at evaluation time, raising NestedExpressionResultTypeError on a
// mismatch (the repository's text changed between compile and evaluation).
type SubroutineMeta struct {
	Name       string
	ArgCount   int
	Position   int
	ResultType *value.Type

	// Program, when set, is a compile-time-resolved Program kept by direct
	// reference: the Subroutine instruction runs it without consulting the
	// repository again, so evaluation still works even if the name is later
	// deleted from the repository (spec.md §4.3.4's compile-time
	// nested-expression form, the unary-operator and 1-arg Expression(name)
	// spellings). Mutually exclusive with Replacement.
	Program *Program

	// Replacement, when set, marks this Subroutine as the evaluation-time
	// Expression(name, replacement[, throwKeyword]) form (spec.md §4.3.4/§6):
	// the name (and, when ArgCount is 2, the throw flag) is popped off the
	// stack at evaluation time and resolved against the repository fresh on
	// every call, falling back to running Replacement when resolution
	// misses or the resolved result's type doesn't match ResultType, unless
	// the throw flag says to raise the miss instead.
	Replacement *Program

	// ThrowOnMissConst is the throw-keyword's value when the call's 3rd
	// argument was itself a compile-time constant, in which case it isn't
	// pushed onto the stack at all and ArgCount stays 1 (name only).
	ThrowOnMissConst bool
}

// Program is the compiled form of one expression (spec.md §4.4's "linear
// bytecode program"): an instruction stream plus the pools its operands
// index into.
type Program struct {
	Instructions   Instructions
	ConstantsPool  []value.Value
	CallbacksPool  []CallbacksEntry
	SubroutinePool []SubroutineMeta

	// ResultType is the static type of the value left on the stack after a
	// full run of Instructions, known from the root AST node's compiled
	// type (spec.md §4.3).
	ResultType *value.Type

	// ConstantWriters records, for a constant-pool index that came from
	// folding a plug-in call rather than a source literal, the plug-in's
	// LiteralWriter (spec.md §4.5) — so the decompiler can render the
	// folded value back as a call expression (e.g. "Days(3)") instead of
	// an opaque literal.
	ConstantWriters map[int]func(value.Value) string
}

// CallbacksEntry pairs a callback with the metadata the VM and decompiler
// need about the call site that produced it.
type CallbacksEntry struct {
	Callback plugin.Callback
	Meta     CallbackMeta
}

// IsConstant reports whether p's entire instruction stream reduces to a
// single PushConstant — the compiler's definition of "compile-time
// constant" used for constant folding and named-expression resolution
// (spec.md §4.3.1/§4.3.4).
func (p *Program) IsConstant() bool {
	return len(p.Instructions) == InstructionWidth && Opcode(p.Instructions[0]) == PushConstant
}

// ConstantValue returns the folded value of a Program for which IsConstant
// is true; it does not check this, so for any other Program the result is
// meaningless (or an index panic), and callers check first.
func (p *Program) ConstantValue() value.Value {
	return p.ConstantsPool[ReadOperand(p.Instructions, 0)]
}

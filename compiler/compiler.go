package compiler

// This file implements the Compiler, which compiles an AST directly to a
// Program by walking it with the ast.Visitor protocol (spec.md §4.3). Every
// Visit* method eagerly emits its own bytecode span and returns an outcome
// describing that span's static type and, when known, its folded constant
// value; a parent node that can fold or eliminate a child's span simply
// truncates the instruction stream back to the child's recorded start
// before emitting its own replacement code.

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"xpr/ast"
	"xpr/parser"
	"xpr/plugin"
	"xpr/scope"
	"xpr/token"
	"xpr/value"
	"xpr/xprerr"
)

// Repo is the subset of a named-expression repository the compiler needs:
// looking up a stored expression's source text by name. Kept as an
// interface here (rather than importing package repo) to avoid a
// compiler -> repo -> compiler import cycle, since repo's own tests may
// want to compile the text they store.
type Repo interface {
	Get(name string) (string, bool)
}

// outcome is the per-node compile result threaded through the recursive
// descent: the node's static type, its folded value if the compiler could
// prove one, and the byte offset in the instruction stream where its own
// code begins (so an enclosing node can truncate it away).
type outcome struct {
	typ      *value.Type
	constVal *value.Value
	start    int
}

// visitResult is what every Visit* method actually returns, smuggled
// through ast.Visitor's `any` return type; compileNode unwraps it.
type visitResult struct {
	out outcome
	err error
}

// Compiler compiles one expression's AST into a Program, consulting a
// plug-in Registry for identifier/function/operator resolution and an
// optional Repo for named-expression (nested-expression) references.
type Compiler struct {
	registry *plugin.Registry
	repo     Repo
	table    *token.OperatorTable

	// compiling is shared across every nested compile triggered while
	// resolving named expressions, so a reference cycle is caught no
	// matter how deep the chain runs (spec.md §4.3.4's
	// CircularNestedExpressions).
	compiling map[string]bool

	instructions    Instructions
	constants       []value.Value
	callbacks       []CallbacksEntry
	subroutines     []SubroutineMeta
	constantWriters map[int]func(value.Value) string

	foldScope *scope.CompileScope

	// Logger is gated structured logging for compile timings (spec.md §3's
	// "compile timings (debug)"), defaulting to zerolog's disabled logger
	// so an unconfigured Compiler pays no logging cost.
	Logger zerolog.Logger

	// PluginFallThrough implements spec.md §6's PluginExceptionFallThrough:
	// when true, a non-xpr error raised by a plug-in is returned unchanged
	// instead of being wrapped in ExceptionInPlugin (spec.md §4.3.6).
	PluginFallThrough bool

	// NestedOperator is the unary operator symbol that, applied to a
	// constant string operand, resolves a compile-time named-expression
	// reference (spec.md §4.3.4/§6). Defaults to "*".
	NestedOperator string

	// NestedFuncName is the nested-expression function family's name
	// (spec.md §6's "function name (default Expression with min-abbrev
	// length)"). A call is recognized as the nested-expression family when
	// its name matches NestedFuncName under NestedFuncMinAbbrev.
	NestedFuncName string

	// NestedFuncMinAbbrev is the minimum case-insensitive prefix length of
	// NestedFuncName that still counts as a match (e.g. "Expr" for
	// NestedFuncName "Expression" with NestedFuncMinAbbrev 4). Set equal to
	// len(NestedFuncName) to require an exact match.
	NestedFuncMinAbbrev int
}

// New creates a Compiler. repo may be nil if the host application has no
// named-expression repository configured.
func New(registry *plugin.Registry, repo Repo, table *token.OperatorTable) *Compiler {
	return &Compiler{
		registry: registry, repo: repo, table: table, compiling: make(map[string]bool), Logger: zerolog.Nop(),
		NestedOperator: "*", NestedFuncName: "Expression", NestedFuncMinAbbrev: len("Expression"),
	}
}

func (c *Compiler) child() *Compiler {
	return &Compiler{
		registry: c.registry, repo: c.repo, table: c.table, compiling: c.compiling, foldScope: c.foldScope, Logger: c.Logger,
		PluginFallThrough: c.PluginFallThrough,
		NestedOperator:    c.NestedOperator, NestedFuncName: c.NestedFuncName, NestedFuncMinAbbrev: c.NestedFuncMinAbbrev,
	}
}

// Compile parses and compiles src into a Program.
func (c *Compiler) Compile(src string) (*Program, error) {
	start := time.Now()
	p, err := parser.New(src, c.table)
	if err != nil {
		return nil, xprerr.WithExpressionInfo(err, src, 0)
	}
	root, err := p.Parse()
	if err != nil {
		return nil, xprerr.WithExpressionInfo(err, src, 0)
	}
	parsed := time.Now()
	out, err := c.compileNode(root)
	if err != nil {
		var xe *xprerr.Error
		if c.PluginFallThrough && !errors.As(err, &xe) {
			return nil, err
		}
		return nil, xprerr.WithExpressionInfo(err, src, out.start)
	}
	c.Logger.Debug().
		Dur("parse", parsed.Sub(start)).
		Dur("compile", time.Since(parsed)).
		Str("result_type", out.typ.String()).
		Msg("compiled expression")
	return &Program{
		Instructions:    c.instructions,
		ConstantsPool:   c.constants,
		CallbacksPool:   c.callbacks,
		SubroutinePool:  c.subroutines,
		ResultType:      out.typ,
		ConstantWriters: c.constantWriters,
	}, nil
}

// recordWriter associates a LiteralWriter with the constant just pushed by
// addConstant, so the decompiler can recover it later.
func (c *Compiler) recordWriter(writer func(value.Value) string) {
	if writer == nil {
		return
	}
	if c.constantWriters == nil {
		c.constantWriters = make(map[int]func(value.Value) string)
	}
	c.constantWriters[len(c.constants)-1] = writer
}

func (c *Compiler) compileSource(src string) (*Program, error) {
	return c.child().Compile(src)
}

func (c *Compiler) compileNode(n ast.Node) (outcome, error) {
	r, ok := n.Accept(c).(visitResult)
	if !ok {
		return outcome{}, DeveloperError{Message: "visitor returned an unexpected type"}
	}
	return r.out, r.err
}

// --- low-level emission -------------------------------------------------

func (c *Compiler) pos() int { return len(c.instructions) }

func (c *Compiler) truncate(start int) { c.instructions = c.instructions[:start] }

// removeSpan deletes the byte range [start, end) in place and moves every
// Jump/JumpIfFalse target at or past end back by the removed width, so the
// already-patched jumps of the code that followed the span keep pointing at
// the same instructions.
func (c *Compiler) removeSpan(start, end int) {
	c.instructions = append(c.instructions[:start], c.instructions[end:]...)
	for ip := 0; ip < len(c.instructions); ip += InstructionWidth {
		op := Opcode(c.instructions[ip])
		if target := int(ReadOperand(c.instructions, ip)); (op == Jump || op == JumpIfFalse) && target >= end {
			c.patchJump(ip, target-(end-start))
		}
	}
}

func (c *Compiler) addConstant(v value.Value) {
	idx := len(c.constants)
	c.constants = append(c.constants, v)
	c.instructions = append(c.instructions, MakeInstruction(PushConstant, idx)...)
}

func (c *Compiler) overwriteConstant(op outcome, v value.Value) {
	idx := ReadOperand(c.instructions[op.start:], 0)
	c.constants[idx] = v
}

func (c *Compiler) emitPlaceholderJump(op Opcode) int {
	pos := c.pos()
	c.instructions = append(c.instructions, MakeInstruction(op, 0)...)
	return pos
}

func (c *Compiler) patchJump(jumpPos, target int) {
	operand := MakeInstruction(Jump, target)[1:]
	copy(c.instructions[jumpPos+1:], operand)
}

// insertInstructions splices code into the instruction stream at position
// at, shifting everything at or after at forward by len(code), and moves
// every already-patched Jump/JumpIfFalse target past at forward by the same
// width (a target equal to at now lands on the inserted code). The tail is
// copied out independently first so the subsequent append cannot alias its
// own source while it is being overwritten.
func (c *Compiler) insertInstructions(at int, code Instructions) {
	tail := make(Instructions, len(c.instructions)-at)
	copy(tail, c.instructions[at:])
	combined := append(code, tail...)
	c.instructions = append(c.instructions[:at], combined...)
	for ip := 0; ip < len(c.instructions); ip += InstructionWidth {
		op := Opcode(c.instructions[ip])
		if target := int(ReadOperand(c.instructions, ip)); (op == Jump || op == JumpIfFalse) && target > at {
			c.patchJump(ip, target+len(code))
		}
	}
}

// insertCast splices an InvokeCallback for proposal's cast callback at
// position at, consuming the value already left on the stack by the branch
// ending there and replacing it with the cast result. Returns the number of
// bytes inserted so callers can shift any position recorded past at.
func (c *Compiler) insertCast(at int, proposal *plugin.CastProposal, pos int) int {
	idx := len(c.callbacks)
	c.callbacks = append(c.callbacks, CallbacksEntry{Callback: proposal.Callback, Meta: CallbackMeta{
		Symbol: "cast:" + proposal.CastFnName, ArgCount: 1, ResultType: proposal.NewType, Position: pos,
	}})
	code := MakeInstruction(InvokeCallback, idx)
	c.insertInstructions(at, code)
	return len(code)
}

func (c *Compiler) invokeCompileTime(cb plugin.Callback, args []value.Value) (value.Value, error) {
	if c.foldScope == nil {
		c.foldScope = scope.NewCompileScope()
	}
	return cb(c.foldScope, args)
}

// --- dispatch helpers shared by identifiers/functions/operators --------

// finishCall either folds a call's already-emitted argument spans into one
// constant, or leaves them and appends the InvokeCallback instruction that
// will run output.Callback at evaluation time. Folding happens two ways:
// the plug-in may already know the result without looking at the argument
// values (output.Constant set directly, e.g. a short-circuiting identity
// element) or it may only be knowable by actually running the callback,
// which this compiler does itself — plug-ins never see argument *values*
// at TryCompile* time, only their types and constness (spec.md §4.3.1) —
// so here, when output.Evaluable and every argument is itself constant,
// the callback is invoked once at compile time through a CompileScope and
// its result becomes the fold (spec.md §4.3.1's compile-time-invokable
// hint).
func (c *Compiler) finishCall(args []outcome, output *plugin.Output, name, symbol, originalSymbol string, pos int) (outcome, error) {
	start := c.pos()
	if len(args) > 0 {
		start = args[0].start
	}
	if output.Constant == nil && output.Evaluable && allConstant(args) {
		val, err := c.invokeCompileTime(output.Callback, constValues(args))
		if err != nil {
			return outcome{}, xprerr.Wrap(xprerr.ExceptionInPlugin, pos, err, c.PluginFallThrough)
		}
		output = &plugin.Output{Callback: output.Callback, ResultType: output.ResultType,
			Constant: &val, Evaluable: true, LiteralWriter: output.LiteralWriter}
	}
	if output.Constant != nil {
		c.truncate(start)
		c.addConstant(*output.Constant)
		c.recordWriter(output.LiteralWriter)
		return outcome{typ: output.ResultType, constVal: output.Constant, start: start}, nil
	}
	idx := len(c.callbacks)
	c.callbacks = append(c.callbacks, CallbacksEntry{Callback: output.Callback, Meta: CallbackMeta{
		Name: name, Symbol: symbol, ArgCount: len(args), ResultType: output.ResultType,
		Position: pos, LiteralWriter: output.LiteralWriter, OriginalSymbol: originalSymbol,
	}})
	c.instructions = append(c.instructions, MakeInstruction(InvokeCallback, idx)...)
	return outcome{typ: output.ResultType, start: start}, nil
}

func allConstant(args []outcome) bool {
	for _, a := range args {
		if a.constVal == nil {
			return false
		}
	}
	return true
}

func constValues(args []outcome) []value.Value {
	vals := make([]value.Value, len(args))
	for i, a := range args {
		vals[i] = *a.constVal
	}
	return vals
}

func (c *Compiler) functionHintError(info *plugin.FunctionInfo, pos int, name string) error {
	switch info.Hint {
	case plugin.HintMissingParentheses:
		return xprerr.New(xprerr.MissingFunctionParentheses, pos, "'"+name+"' must be called with parentheses")
	case plugin.HintUnexpectedParentheses:
		return xprerr.New(xprerr.IdentifierWithFunctionParentheses, pos, "'"+name+"' is a plain identifier, not a function")
	case plugin.HintWrongArgumentTypes:
		return xprerr.New(xprerr.FunctionHint, pos, "'"+name+"' does not accept these argument types")
	default:
		return nil
	}
}

// --- named-expression / nested-expression resolution --------------------

// compileNamedConstant resolves a bare identifier against the repository as
// a compile-time-only substitution: the repository's text must reduce to a
// constant (spec.md §4.3.4's NamedExpressionNotConstant).
func (c *Compiler) compileNamedConstant(name string, pos int, src string) (outcome, error) {
	if c.compiling[name] {
		return outcome{}, xprerr.New(xprerr.CircularNestedExpressions, pos, "circular named expression reference: "+name)
	}
	c.compiling[name] = true
	sub, err := c.compileSource(src)
	delete(c.compiling, name)
	if err != nil {
		return outcome{}, xprerr.WithExpressionInfo(err, src, pos)
	}
	if !sub.IsConstant() {
		return outcome{}, xprerr.New(xprerr.NamedExpressionNotConstant, pos,
			"named expression '"+name+"' does not reduce to a compile-time constant")
	}
	val := sub.ConstantValue()
	start := c.pos()
	c.addConstant(val)
	c.recordWriter(sub.ConstantWriters[int(ReadOperand(sub.Instructions, 0))])
	return outcome{typ: sub.ResultType, constVal: &val, start: start}, nil
}

// compileNestedCall resolves a Name(args...) call against the repository.
// It always compiles the target eagerly (to learn its static result type
// for the surrounding expression) and folds it away if it turns out
// constant; otherwise it leaves a Subroutine instruction that re-resolves
// the name against the live repository at every evaluation (spec.md
// §4.3.4/§6).
func (c *Compiler) compileNestedCall(name string, pos int, args []outcome, src string) (outcome, error) {
	if len(args) != 0 {
		return outcome{}, xprerr.New(xprerr.NestedExpressionCallArgumentMismatch, pos,
			fmt.Sprintf("nested expression %q takes no arguments", name))
	}
	if c.compiling[name] {
		return outcome{}, xprerr.New(xprerr.CircularNestedExpressions, pos, "circular nested expression reference: "+name)
	}
	c.compiling[name] = true
	sub, err := c.compileSource(src)
	delete(c.compiling, name)
	if err != nil {
		return outcome{}, xprerr.WithExpressionInfo(err, src, pos)
	}
	if sub.IsConstant() {
		val := sub.ConstantValue()
		start := c.pos()
		c.addConstant(val)
		c.recordWriter(sub.ConstantWriters[int(ReadOperand(sub.Instructions, 0))])
		return outcome{typ: sub.ResultType, constVal: &val, start: start}, nil
	}
	start := c.pos()
	idx := len(c.subroutines)
	c.subroutines = append(c.subroutines, SubroutineMeta{Name: name, ArgCount: 0, Position: pos, ResultType: sub.ResultType})
	c.instructions = append(c.instructions, MakeInstruction(Subroutine, idx)...)
	return outcome{typ: sub.ResultType, start: start}, nil
}

// matchesNestedFuncName reports whether name is a (possibly abbreviated)
// spelling of the nested-expression function family's name (spec.md §6's
// "function name (default Expression with min-abbrev length)"): a
// case-insensitive prefix of c.NestedFuncName at least NestedFuncMinAbbrev
// characters long.
func (c *Compiler) matchesNestedFuncName(name string) bool {
	if c.NestedFuncName == "" {
		return false
	}
	min := c.NestedFuncMinAbbrev
	if min <= 0 || min > len(c.NestedFuncName) {
		min = len(c.NestedFuncName)
	}
	if len(name) < min || len(name) > len(c.NestedFuncName) {
		return false
	}
	return strings.EqualFold(name, c.NestedFuncName[:len(name)])
}

// compileNestedExpressionRef resolves name against the repository at compile
// time and emits a shared reference to its compiled Program: folded away if
// it reduces to a constant, otherwise a Subroutine instruction that holds
// the Program directly (SubroutineMeta.Program) rather than re-resolving the
// name later, so evaluation keeps working even if the repository's entry is
// subsequently deleted or changed (spec.md §8's shared-reference scenario).
// start is the byte offset of the operand/argument bytecode this reference
// replaces; it, and everything after it, is discarded.
func (c *Compiler) compileNestedExpressionRef(name string, pos, start int) (outcome, error) {
	if c.repo == nil {
		return outcome{}, xprerr.New(xprerr.NestedExpressionNotFoundCT, pos, "no named-expression repository configured")
	}
	src, ok := c.repo.Get(name)
	if !ok {
		return outcome{}, xprerr.New(xprerr.NestedExpressionNotFoundCT, pos, "named expression not found: "+name)
	}
	if c.compiling[name] {
		return outcome{}, xprerr.New(xprerr.CircularNestedExpressions, pos, "circular nested expression reference: "+name)
	}
	c.compiling[name] = true
	sub, err := c.compileSource(src)
	delete(c.compiling, name)
	if err != nil {
		return outcome{}, xprerr.WithExpressionInfo(err, src, pos)
	}
	c.truncate(start)
	if sub.IsConstant() {
		val := sub.ConstantValue()
		c.addConstant(val)
		c.recordWriter(sub.ConstantWriters[int(ReadOperand(sub.Instructions, 0))])
		return outcome{typ: sub.ResultType, constVal: &val, start: start}, nil
	}
	idx := len(c.subroutines)
	c.subroutines = append(c.subroutines, SubroutineMeta{Name: name, Position: pos, ResultType: sub.ResultType, Program: sub})
	c.instructions = append(c.instructions, MakeInstruction(Subroutine, idx)...)
	return outcome{typ: sub.ResultType, start: start}, nil
}

// compileSubProgram compiles n as a fully independent Program through a
// child Compiler, without inlining its instructions into c's own stream.
// Used for the Expression(...) evaluation-time form's replacement argument,
// which must run only on a resolution miss rather than unconditionally.
func (c *Compiler) compileSubProgram(n ast.Node) (*Program, error) {
	child := c.child()
	out, err := child.compileNode(n)
	if err != nil {
		return nil, err
	}
	return &Program{
		Instructions:    child.instructions,
		ConstantsPool:   child.constants,
		CallbacksPool:   child.callbacks,
		SubroutinePool:  child.subroutines,
		ResultType:      out.typ,
		ConstantWriters: child.constantWriters,
	}, nil
}

// compileNestedExpressionFunc dispatches a call to the nested-expression
// function family (spec.md §4.3.4/§6): Expression(name) is the compile-time
// form (name must be a constant string), while Expression(name, replacement
// [, throwKeyword]) is the evaluation-time form.
func (c *Compiler) compileNestedExpressionFunc(n *ast.Function) (outcome, error) {
	if len(n.Args) < 1 || len(n.Args) > 3 {
		return outcome{}, xprerr.New(xprerr.NestedExpressionCallArgumentMismatch, n.Position,
			fmt.Sprintf("%s takes between 1 and 3 arguments", c.NestedFuncName))
	}
	nameOut, err := c.compileNode(n.Args[0])
	if err != nil {
		return outcome{}, err
	}
	if len(n.Args) == 1 {
		if nameOut.typ != value.String || nameOut.constVal == nil {
			return outcome{}, xprerr.New(xprerr.NamedExpressionNotConstant, n.Position,
				fmt.Sprintf("%s(name) requires name to be a compile-time constant string", c.NestedFuncName))
		}
		return c.compileNestedExpressionRef(nameOut.constVal.String(), n.Position, nameOut.start)
	}
	return c.compileNestedExpressionEval(n, nameOut)
}

// compileNestedExpressionEval implements the evaluation-time
// Expression(name, replacement[, throwKeyword]) form: name is evaluated
// fresh every call and resolved against the live repository, falling back
// to running replacement (compiled as its own independent Program, not
// inlined) on a resolution miss or result-type mismatch, unless throwKeyword
// says to raise the miss instead (spec.md §4.3.4/§6).
func (c *Compiler) compileNestedExpressionEval(n *ast.Function, nameOut outcome) (outcome, error) {
	if nameOut.typ != value.String {
		return outcome{}, xprerr.New(xprerr.NestedExpressionCallArgumentMismatch, n.Position,
			fmt.Sprintf("%s's name argument must be a string", c.NestedFuncName))
	}
	replacement, err := c.compileSubProgram(n.Args[1])
	if err != nil {
		return outcome{}, err
	}

	start := nameOut.start
	argCount := 1
	var throwConst bool
	if len(n.Args) == 3 {
		throwOut, err := c.compileNode(n.Args[2])
		if err != nil {
			return outcome{}, err
		}
		if throwOut.typ != value.Bool {
			return outcome{}, xprerr.New(xprerr.NestedExpressionCallArgumentMismatch, n.Position,
				fmt.Sprintf("%s's throw argument must be a bool", c.NestedFuncName))
		}
		if throwOut.constVal != nil {
			throwConst = throwOut.constVal.Bool()
			c.removeSpan(throwOut.start, c.pos())
		} else {
			argCount = 2
		}
	}

	idx := len(c.subroutines)
	c.subroutines = append(c.subroutines, SubroutineMeta{
		ArgCount: argCount, Position: n.Position, ResultType: replacement.ResultType,
		Replacement: replacement, ThrowOnMissConst: throwConst,
	})
	c.instructions = append(c.instructions, MakeInstruction(Subroutine, idx)...)
	return outcome{typ: replacement.ResultType, start: start}, nil
}

// --- ast.Visitor implementation -----------------------------------------

func (c *Compiler) VisitLiteral(n *ast.Literal) any {
	start := c.pos()
	c.addConstant(n.Value)
	return visitResult{out: outcome{typ: n.Value.Type(), constVal: &n.Value, start: start}}
}

func (c *Compiler) VisitIdentifier(n *ast.Identifier) any {
	info := &plugin.FunctionInfo{Name: n.Name, HasParens: false}
	output, err := c.registry.CompileFunction(info)
	if err != nil {
		return visitResult{err: xprerr.Wrap(xprerr.ExceptionInPlugin, n.Position, err, c.PluginFallThrough)}
	}
	if output != nil {
		out, err := c.finishCall(nil, output, n.Name, "", "", n.Position)
		return visitResult{out, err}
	}
	if herr := c.functionHintError(info, n.Position, n.Name); herr != nil {
		return visitResult{err: herr}
	}
	if c.repo == nil {
		return visitResult{err: xprerr.New(xprerr.UnknownIdentifier, n.Position, "unknown identifier: "+n.Name)}
	}
	src, ok := c.repo.Get(n.Name)
	if !ok {
		return visitResult{err: xprerr.New(xprerr.NamedExpressionNotFound, n.Position, "named expression not found: "+n.Name)}
	}
	out, err := c.compileNamedConstant(n.Name, n.Position, src)
	return visitResult{out, err}
}

func (c *Compiler) VisitFunction(n *ast.Function) any {
	if c.matchesNestedFuncName(n.Name) {
		out, err := c.compileNestedExpressionFunc(n)
		return visitResult{out, err}
	}

	args := make([]outcome, len(n.Args))
	for i, a := range n.Args {
		out, err := c.compileNode(a)
		if err != nil {
			return visitResult{err: err}
		}
		args[i] = out
	}
	argTypes := make([]*value.Type, len(args))
	constness := make(plugin.ArgConstness, len(args))
	for i, a := range args {
		argTypes[i] = a.typ
		constness[i] = a.constVal != nil
	}
	info := &plugin.FunctionInfo{Name: n.Name, ArgTypes: argTypes, Constness: constness, HasParens: true}
	output, err := c.registry.CompileFunction(info)
	if err != nil {
		return visitResult{err: xprerr.Wrap(xprerr.ExceptionInPlugin, n.Position, err, c.PluginFallThrough)}
	}
	if output != nil {
		out, err := c.finishCall(args, output, n.Name, "", "", n.Position)
		return visitResult{out, err}
	}
	if herr := c.functionHintError(info, n.Position, n.Name); herr != nil {
		return visitResult{err: herr}
	}
	if c.repo == nil {
		return visitResult{err: xprerr.New(xprerr.UnknownFunction, n.Position, "unknown function: "+n.Name)}
	}
	src, ok := c.repo.Get(n.Name)
	if !ok {
		return visitResult{err: xprerr.New(xprerr.NestedExpressionNotFoundCT, n.Position, "unknown function or nested expression: "+n.Name)}
	}
	out, err := c.compileNestedCall(n.Name, n.Position, args, src)
	return visitResult{out, err}
}

func (c *Compiler) VisitUnaryOp(n *ast.UnaryOp) any {
	operand, err := c.compileNode(n.Operand)
	if err != nil {
		return visitResult{err: err}
	}
	if n.Symbol == c.NestedOperator && operand.typ == value.String && operand.constVal != nil {
		out, err := c.compileNestedExpressionRef(operand.constVal.String(), n.Position, operand.start)
		return visitResult{out, err}
	}
	info := &plugin.UnaryInfo{Symbol: n.Symbol, OperandType: operand.typ, OperandConst: operand.constVal != nil}
	output, err := c.registry.CompileUnary(info)
	if err != nil {
		return visitResult{err: xprerr.Wrap(xprerr.ExceptionInPlugin, n.Position, err, c.PluginFallThrough)}
	}
	if output == nil {
		return visitResult{err: xprerr.New(xprerr.UnaryOperatorNotDefined, n.Position,
			fmt.Sprintf("unary operator '%s' not defined for %s", n.Symbol, operand.typ))}
	}
	out, err := c.finishCall([]outcome{operand}, output, "", n.Symbol, "", n.Position)
	return visitResult{out, err}
}

func (c *Compiler) VisitBinaryOp(n *ast.BinaryOp) any {
	lhs, err := c.compileNode(n.LHS)
	if err != nil {
		return visitResult{err: err}
	}
	rhs, err := c.compileNode(n.RHS)
	if err != nil {
		return visitResult{err: err}
	}
	out, err := c.compileBinary(n.Symbol, lhs, rhs, n.Position, false)
	return visitResult{out, err}
}

// compileBinary dispatches a binary operator, retrying once through
// AutoCast if no plug-in accepts the operand types as given (spec.md
// §4.3.5).
func (c *Compiler) compileBinary(symbol string, lhs, rhs outcome, pos int, retried bool) (outcome, error) {
	info := &plugin.BinaryInfo{Symbol: symbol, LHSType: lhs.typ, RHSType: rhs.typ,
		LHSConst: lhs.constVal != nil, RHSConst: rhs.constVal != nil}
	output, err := c.registry.CompileBinary(info)
	if err != nil {
		return outcome{}, xprerr.Wrap(xprerr.ExceptionInPlugin, pos, err, c.PluginFallThrough)
	}
	if output != nil {
		return c.finishBinary(lhs, rhs, output, symbol, pos)
	}
	if retried {
		return outcome{}, xprerr.New(xprerr.BinaryOperatorNotDefined, pos,
			fmt.Sprintf("binary operator '%s' not defined for %s and %s", symbol, lhs.typ, rhs.typ))
	}
	cast, err := c.registry.AutoCast(symbol, lhs.typ, rhs.typ)
	if err != nil {
		return outcome{}, xprerr.Wrap(xprerr.ExceptionInPlugin, pos, err, c.PluginFallThrough)
	}
	if cast == nil {
		return outcome{}, xprerr.New(xprerr.BinaryOperatorNotDefined, pos,
			fmt.Sprintf("binary operator '%s' not defined for %s and %s", symbol, lhs.typ, rhs.typ))
	}
	newLHS, newRHS := lhs, rhs
	if cast.LHS != nil {
		newLHS, err = c.applyCast(lhs, cast.LHS, pos)
		if err != nil {
			return outcome{}, err
		}
	}
	if cast.RHS != nil {
		newRHS, err = c.applyCast(rhs, cast.RHS, pos)
		if err != nil {
			return outcome{}, err
		}
	}
	return c.compileBinary(symbol, newLHS, newRHS, pos, true)
}

func (c *Compiler) applyCast(operand outcome, proposal *plugin.CastProposal, pos int) (outcome, error) {
	out := &plugin.Output{Callback: proposal.Callback, ResultType: proposal.NewType}
	if operand.constVal != nil {
		val, err := c.invokeCompileTime(proposal.Callback, []value.Value{*operand.constVal})
		if err != nil {
			return outcome{}, xprerr.Wrap(xprerr.ExceptionInPlugin, pos, err, c.PluginFallThrough)
		}
		out.Constant = &val
	}
	return c.finishCall([]outcome{operand}, out, "", "cast:"+proposal.CastFnName, "", pos)
}

// finishBinary applies a BinaryOutput's elimination directive (spec.md
// §4.3.2's partial-constant elimination) before falling back to an actual
// InvokeCallback instruction.
func (c *Compiler) finishBinary(lhs, rhs outcome, output *plugin.BinaryOutput, symbol string, pos int) (outcome, error) {
	effSymbol := symbol
	originalSymbol := ""
	if output.RewriteSymbol != "" {
		effSymbol = output.RewriteSymbol
		originalSymbol = symbol
	}
	switch output.Eliminate {
	case plugin.DiscardBoth:
		c.truncate(lhs.start)
		c.addConstant(*output.Constant)
		return outcome{typ: output.ResultType, constVal: output.Constant, start: lhs.start}, nil
	case plugin.DiscardConstant:
		if lhs.constVal != nil {
			c.removeSpan(lhs.start, rhs.start)
			return outcome{typ: rhs.typ, constVal: rhs.constVal, start: lhs.start}, nil
		}
		c.removeSpan(rhs.start, c.pos())
		return outcome{typ: lhs.typ, constVal: lhs.constVal, start: lhs.start}, nil
	default:
		return c.finishCall([]outcome{lhs, rhs}, &output.Output, "", effSymbol, originalSymbol, pos)
	}
}

func (c *Compiler) VisitConditional(n *ast.Conditional) any {
	q, err := c.compileNode(n.Q)
	if err != nil {
		return visitResult{err: err}
	}

	// Dead-branch elimination (spec.md §4.3.3): a constant condition means
	// only one branch is ever live, so only that branch is compiled.
	if q.constVal != nil {
		c.truncate(q.start)
		live := n.T
		if !q.constVal.Truthy() {
			live = n.F
		}
		out, err := c.compileNode(live)
		return visitResult{out, err}
	}

	jumpIfFalse := c.emitPlaceholderJump(JumpIfFalse)
	t, err := c.compileNode(n.T)
	if err != nil {
		return visitResult{err: err}
	}
	jumpEnd := c.emitPlaceholderJump(Jump)
	falseStart := c.pos()
	f, err := c.compileNode(n.F)
	if err != nil {
		return visitResult{err: err}
	}
	fEnd := c.pos()

	typ := t.typ
	if t.typ != f.typ {
		unifiedType, err := c.unifyConditionalTypes(t, f, &jumpEnd, &falseStart, &fEnd, n.QMarkPos)
		if err != nil {
			return visitResult{err: err}
		}
		typ = unifiedType
	}

	c.patchJump(jumpIfFalse, falseStart)
	c.patchJump(jumpEnd, fEnd)
	return visitResult{out: outcome{typ: typ, start: q.start}}
}

// unifyConditionalTypes handles a T/F type mismatch by asking the plug-ins
// for an auto-cast proposal on the pair (spec.md §4.3.3): a constant branch
// is cast in place by overwriting its constant pool entry, while a
// non-constant branch gets an actual InvokeCallback spliced in right after
// its span so the cast runs at evaluation time, symmetric to applyCast's
// handling of binary operands. jumpEnd/falseStart/fEnd are the positions the
// caller still needs to patch jumps against; they are shifted in place by
// however many bytes a spliced-in cast adds ahead of them. Only a genuine
// AutoCast miss is reported as IncompatibleTypesInConditional.
func (c *Compiler) unifyConditionalTypes(t, f outcome, jumpEnd, falseStart, fEnd *int, pos int) (*value.Type, error) {
	cast, err := c.registry.AutoCast("?:", t.typ, f.typ)
	if err != nil {
		return nil, xprerr.Wrap(xprerr.ExceptionInPlugin, pos, err, c.PluginFallThrough)
	}
	if cast == nil {
		return nil, xprerr.New(xprerr.IncompatibleTypesInConditional, pos,
			fmt.Sprintf("conditional branches have incompatible types %s and %s", t.typ, f.typ))
	}
	if cast.LHS != nil {
		if t.constVal != nil {
			nv, err := c.invokeCompileTime(cast.LHS.Callback, []value.Value{*t.constVal})
			if err != nil {
				return nil, xprerr.Wrap(xprerr.ExceptionInPlugin, pos, err, c.PluginFallThrough)
			}
			c.overwriteConstant(t, nv)
			return cast.LHS.NewType, nil
		}
		width := c.insertCast(*jumpEnd, cast.LHS, pos)
		*jumpEnd += width
		*falseStart += width
		*fEnd += width
		return cast.LHS.NewType, nil
	}
	if cast.RHS != nil {
		if f.constVal != nil {
			nv, err := c.invokeCompileTime(cast.RHS.Callback, []value.Value{*f.constVal})
			if err != nil {
				return nil, xprerr.Wrap(xprerr.ExceptionInPlugin, pos, err, c.PluginFallThrough)
			}
			c.overwriteConstant(f, nv)
			return cast.RHS.NewType, nil
		}
		width := c.insertCast(*fEnd, cast.RHS, pos)
		*fEnd += width
		return cast.RHS.NewType, nil
	}
	return nil, xprerr.New(xprerr.IncompatibleTypesInConditional, pos,
		fmt.Sprintf("conditional branches have incompatible types %s and %s", t.typ, f.typ))
}

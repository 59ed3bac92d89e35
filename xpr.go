package main

// This file is the library's public entry point, colocated with the CLI at
// the repository root per the teacher's flat layout: Compiler compiles
// source text into an Expression (spec.md §3's "Expression object"), which
// owns its compiled program, its compile-time scope, and the
// lazily-computed optimized string of spec.md's glossary ("the normalized
// string of the program decompiled after constant folding and dead-branch
// elimination").

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"xpr/compiler"
	"xpr/normalize"
	"xpr/parser"
	"xpr/plugin"
	"xpr/scope"
	"xpr/token"
	"xpr/value"
	"xpr/vm"
)

// CompileTimings records how long parsing and compiling an expression took,
// per spec.md §3's "compile timings (debug)" Expression field.
type CompileTimings struct {
	Parse   time.Duration
	Compile time.Duration
}

// Compiler is the library's entry point: configured once with a plug-in
// registry, an optional named-expression repository, and an operator
// table, it compiles any number of expressions and evaluates them through
// a shared VM (so named-expression Subroutine calls across expressions
// resolve consistently).
type Compiler struct {
	registry *plugin.Registry
	repo     compiler.Repo
	table    *token.OperatorTable
	flags    normalize.Flags
	vm       *vm.VM

	// Logger is gated structured logging, defaulting to disabled
	// (spec.md §3's ambient-stack expansion); set it to propagate to both
	// the underlying compiler and VM.
	Logger zerolog.Logger

	// pluginFallThrough/callbackFallThrough implement spec.md §6's
	// PluginExceptionFallThrough/CallbackExceptionFallThrough: when set, a
	// non-xpr error raised by a plug-in (at compile time) or a callback/
	// nested-expression evaluation (at evaluation time) is returned
	// unchanged instead of being wrapped.
	pluginFallThrough   bool
	callbackFallThrough bool

	// noOptimization implements spec.md §6's NoOptimization: when set,
	// Expression.Optimized returns the original source's normalized form
	// instead of the decompiled-after-folding one.
	noOptimization bool
}

// Option configures a Compiler at construction time.
type Option func(*Compiler)

// WithRepo configures the named-expression repository used to resolve
// nested-expression references (spec.md §4.3.4/§6).
func WithRepo(repo compiler.Repo) Option {
	return func(c *Compiler) { c.repo = repo }
}

// WithOperatorTable overrides the default operator table.
func WithOperatorTable(table *token.OperatorTable) Option {
	return func(c *Compiler) { c.table = table }
}

// WithNormalizeFlags sets the Flags used when computing an Expression's
// normalized string (spec.md §3's Expression.normalized-string).
func WithNormalizeFlags(flags normalize.Flags) Option {
	return func(c *Compiler) { c.flags = flags }
}

// WithLogger installs a zerolog logger, propagated to both the compiler
// and VM this Compiler drives.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Compiler) { c.Logger = logger }
}

// WithPluginFallThrough implements spec.md §6's PluginExceptionFallThrough:
// when enabled, an error a plug-in raises while being asked to compile an
// identifier/function/operator is returned as-is instead of being wrapped in
// ExceptionInPlugin (spec.md §4.3.6).
func WithPluginFallThrough(enabled bool) Option {
	return func(c *Compiler) { c.pluginFallThrough = enabled }
}

// WithCallbackFallThrough implements spec.md §6's CallbackExceptionFallThrough:
// when enabled, an error a callback raises at evaluation time (including
// while evaluating a nested expression) is returned as-is instead of being
// wrapped in ExceptionInCallback/WhenEvaluatingNestedExpression.
func WithCallbackFallThrough(enabled bool) Option {
	return func(c *Compiler) { c.callbackFallThrough = enabled }
}

// WithNoOptimization implements spec.md §6's NoOptimization: when enabled,
// Expression.Optimized returns the original source's normalized form
// instead of decompiling the folded program, so constant folding and
// dead-branch elimination never show up in the reported "optimized" text.
func WithNoOptimization(enabled bool) Option {
	return func(c *Compiler) { c.noOptimization = enabled }
}

// NewCompiler builds a Compiler from a plug-in registry (tried in priority
// order for every identifier/function/operator, per spec.md §4.3) and any
// Options. The default operator table is token.DefaultOperatorTable.
func NewCompiler(registry *plugin.Registry, opts ...Option) *Compiler {
	c := &Compiler{registry: registry, table: token.DefaultOperatorTable(), Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.vm = vm.New(c.registry, c.repo, c.table)
	c.vm.Logger = c.Logger
	c.vm.PluginFallThrough = c.pluginFallThrough
	c.vm.CallbackFallThrough = c.callbackFallThrough
	return c
}

// Compile parses and compiles source, producing an Expression named name
// (used only for diagnostics and as the key under which this expression
// itself could be stored in a repository for other expressions to
// reference).
func (c *Compiler) Compile(name, source string) (*Expression, error) {
	comp := compiler.New(c.registry, c.repo, c.table)
	comp.Logger = c.Logger
	comp.PluginFallThrough = c.pluginFallThrough

	start := time.Now()
	p, parseErr := parser.New(source, c.table)
	var normalized string
	if parseErr == nil {
		if root, err := p.Parse(); err == nil {
			normalized = normalize.New(c.flags, c.table).Normalize(root)
		}
	}
	parseTime := time.Since(start)

	prog, err := comp.Compile(source)
	if err != nil {
		return nil, err
	}
	timings := CompileTimings{Parse: parseTime, Compile: time.Since(start) - parseTime}

	return &Expression{
		name:           name,
		original:       source,
		normalized:     normalized,
		program:        prog,
		compile:        scope.NewCompileScope(),
		timings:        timings,
		vm:             c.vm,
		flags:          c.flags,
		table:          c.table,
		noOptimization: c.noOptimization,
	}, nil
}

// NewScope creates an evaluation-time scope bound to expr's compile-time
// scope (spec.md §3's "Evaluation-time scope...a pointer to the
// expression's compile-time scope").
func (e *Expression) NewScope() *scope.Scope { return scope.New(e.compile) }

// Evaluate runs the expression's compiled program against s, per spec.md
// §4.4. s is reset before running.
func (e *Expression) Evaluate(s *scope.Scope) (value.Value, error) {
	return e.vm.Run(e.program, s)
}

// Name returns the name this expression was compiled under.
func (e *Expression) Name() string { return e.name }

// Original returns the exact source text passed to Compile.
func (e *Expression) Original() string { return e.original }

// Normalized returns the re-serialized form of the as-parsed AST (before
// constant folding), per spec.md §3's Expression.normalized-string.
func (e *Expression) Normalized() string { return e.normalized }

// ResultType reports the expression's static result type.
func (e *Expression) ResultType() *value.Type { return e.program.ResultType }

// CompileTimings reports how long compiling this expression took.
func (e *Expression) CompileTimings() CompileTimings { return e.timings }

// Optimized lazily computes and caches the normalized string of the
// compiled program decompiled after constant folding and dead-branch
// elimination (spec.md glossary's "Optimized string"). When the Compiler
// that produced this Expression was built WithNoOptimization, folding never
// happened in any observable sense here either: Optimized instead returns
// the same text Normalized does, so the two stay identical (spec.md §6).
func (e *Expression) Optimized() (string, error) {
	if e.noOptimization {
		return e.normalized, nil
	}
	e.optimizeOnce.Do(func() {
		root, err := vm.Decompile(e.program)
		if err != nil {
			e.optimizeErr = err
			return
		}
		e.optimized = normalize.New(e.flags, e.table).Normalize(root)
	})
	return e.optimized, e.optimizeErr
}

// Expression is the compiled, evaluable form of one expression's source
// text (spec.md §3's "Expression object"). Ownership is effectively shared:
// multiple host call sites may evaluate the same *Expression concurrently
// against their own scope.Scope. Other expressions never reference this
// Expression or its program: a nested reference to a repository name
// compiles that name's stored text into a Program of its own.
type Expression struct {
	name       string
	original   string
	normalized string
	program    *compiler.Program
	compile    *scope.CompileScope
	timings    CompileTimings
	vm         *vm.VM
	flags      normalize.Flags
	table      *token.OperatorTable

	noOptimization bool

	optimizeOnce sync.Once
	optimized    string
	optimizeErr  error
}

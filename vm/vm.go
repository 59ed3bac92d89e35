// Package vm implements the five-opcode stack machine of spec.md §4.4: it
// walks a compiler.Program's instruction stream, pushing and popping
// value.Value on the evaluation scope's stack. A Subroutine holding a
// compile-time-pinned Program runs that Program; every other Subroutine
// re-resolves its target against the live named-expression repository on
// every call.
package vm

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"xpr/compiler"
	"xpr/plugin"
	"xpr/scope"
	"xpr/token"
	"xpr/value"
	"xpr/xprerr"
)

// subroutineCacheEntry pairs a compiled Program with the repository source
// text it was compiled from, so a change to that text (even under the same
// name) invalidates the cache entry instead of silently serving stale code.
type subroutineCacheEntry struct {
	src  string
	prog *compiler.Program
}

// VM runs compiled Programs. A single VM is reused across evaluations; it
// holds no per-evaluation state itself (that lives in the scope.Scope
// passed to Run), only the long-lived configuration needed to resolve
// nested-expression (Subroutine) calls.
type VM struct {
	registry *plugin.Registry
	repo     compiler.Repo
	table    *token.OperatorTable
	cache    *lru.Cache[string, subroutineCacheEntry]

	// Logger is gated trace-level opcode dispatch logging, defaulting to
	// zerolog's disabled logger (spec.md §3's ambient-stack expansion).
	Logger zerolog.Logger

	// CallbackFallThrough implements spec.md §6's CallbackExceptionFallThrough:
	// when true, a non-xpr error raised by a callback, or while evaluating a
	// nested expression, is returned unchanged instead of being wrapped.
	CallbackFallThrough bool

	// PluginFallThrough is threaded into every Compiler this VM spins up to
	// compile a named-expression reference resolved at evaluation time
	// (spec.md §6's PluginExceptionFallThrough).
	PluginFallThrough bool
}

// New creates a VM. repo may be nil if named-expression calls are not used.
func New(registry *plugin.Registry, repo compiler.Repo, table *token.OperatorTable) *VM {
	cache, _ := lru.New[string, subroutineCacheEntry](256)
	return &VM{registry: registry, repo: repo, table: table, cache: cache, Logger: zerolog.Nop()}
}

// Run executes prog against s, returning the single value the program
// computes. s is reset (arena, stack, reentrancy set cleared) before
// running (spec.md §4.4: "evaluation begins by clearing the evaluation
// scope's arena").
func (vm *VM) Run(prog *compiler.Program, s *scope.Scope) (value.Value, error) {
	s.Reset()
	return vm.run(prog, s)
}

// run executes prog without resetting s, used both by the public Run entry
// point and by recursive Subroutine evaluation, which must share the
// calling scope's stack, arena and reentrancy set.
func (vm *VM) run(prog *compiler.Program, s *scope.Scope) (value.Value, error) {
	ip := 0
	ins := prog.Instructions
	for ip < len(ins) {
		op := compiler.Opcode(ins[ip])
		if vm.Logger.GetLevel() <= zerolog.TraceLevel {
			vm.Logger.Trace().Int("ip", ip).Stringer("op", op).Msg("dispatch")
		}
		switch op {
		case compiler.PushConstant:
			idx := compiler.ReadOperand(ins, ip)
			s.Stack().Push(prog.ConstantsPool[idx])
			ip += compiler.InstructionWidth

		case compiler.InvokeCallback:
			idx := compiler.ReadOperand(ins, ip)
			entry := prog.CallbacksPool[idx]
			args := s.Stack().PopN(entry.Meta.ArgCount)
			val, err := entry.Callback(s, args)
			if err != nil {
				return value.Value{}, xprerr.Wrap(xprerr.ExceptionInCallback, entry.Meta.Position, err, vm.CallbackFallThrough)
			}
			s.Stack().Push(val)
			ip += compiler.InstructionWidth

		case compiler.JumpIfFalse:
			cond := s.Stack().Pop()
			if !cond.Truthy() {
				ip = int(compiler.ReadOperand(ins, ip))
			} else {
				ip += compiler.InstructionWidth
			}

		case compiler.Jump:
			ip = int(compiler.ReadOperand(ins, ip))

		case compiler.Subroutine:
			idx := compiler.ReadOperand(ins, ip)
			meta := prog.SubroutinePool[idx]
			var args []value.Value
			if meta.ArgCount > 0 {
				args = s.Stack().PopN(meta.ArgCount)
			}
			val, err := vm.runSubroutine(meta, args, s)
			if err != nil {
				return value.Value{}, err
			}
			s.Stack().Push(val)
			ip += compiler.InstructionWidth

		default:
			return value.Value{}, RuntimeError{Message: fmt.Sprintf("unknown opcode %v at ip %d", op, ip)}
		}
	}
	return s.Stack().Pop(), nil
}

// runSubroutine dispatches a Subroutine instruction to one of its three
// forms (spec.md §4.3.4/§6): a compile-time-pinned shared reference
// (meta.Program), the evaluation-time Expression(name, replacement[, throw])
// fallback form (meta.Replacement), or the legacy by-name form that
// re-resolves meta.Name against the repository on every call.
func (vm *VM) runSubroutine(meta compiler.SubroutineMeta, args []value.Value, s *scope.Scope) (value.Value, error) {
	switch {
	case meta.Program != nil:
		leave, err := s.EnterNested(meta.Name)
		if err != nil {
			return value.Value{}, xprerr.New(xprerr.CircularNestedExpressions, meta.Position, err.Error())
		}
		defer leave()
		val, err := vm.run(meta.Program, s)
		if err != nil {
			return value.Value{}, xprerr.Wrap(xprerr.WhenEvaluatingNestedExpression, meta.Position, err, vm.CallbackFallThrough)
		}
		return val, nil

	case meta.Replacement != nil:
		name := args[0].String()
		throw := meta.ThrowOnMissConst
		if len(args) > 1 {
			throw = args[1].Bool()
		}
		val, missErr := vm.evaluateNamedExpression(name, meta, s)
		if missErr == nil {
			return val, nil
		}
		if throw {
			return value.Value{}, missErr
		}
		return vm.run(meta.Replacement, s)

	default:
		return vm.evaluateNamedExpression(meta.Name, meta, s)
	}
}

// evaluateNamedExpression resolves and evaluates a named-expression
// reference by name at evaluation time, guarding against a reference cycle
// introduced after compile time (spec.md §4.3.4's CircularNestedExpressions)
// and against the repository's entry having disappeared or changed shape
// since compile time (NestedExpressionNotFoundET / NestedExpressionResultTypeError).
func (vm *VM) evaluateNamedExpression(name string, meta compiler.SubroutineMeta, s *scope.Scope) (value.Value, error) {
	leave, err := s.EnterNested(name)
	if err != nil {
		return value.Value{}, xprerr.New(xprerr.CircularNestedExpressions, meta.Position, err.Error())
	}
	defer leave()

	prog, err := vm.resolveSubroutine(name, meta.Position)
	if err != nil {
		return value.Value{}, err
	}
	if prog.ResultType != meta.ResultType {
		return value.Value{}, xprerr.New(xprerr.NestedExpressionResultTypeError, meta.Position,
			fmt.Sprintf("named expression %q now evaluates to %s, expected %s", name, prog.ResultType, meta.ResultType))
	}
	val, err := vm.run(prog, s)
	if err != nil {
		return value.Value{}, xprerr.Wrap(xprerr.WhenEvaluatingNestedExpression, meta.Position, err, vm.CallbackFallThrough)
	}
	return val, nil
}

func (vm *VM) resolveSubroutine(name string, pos int) (*compiler.Program, error) {
	if vm.repo == nil {
		return nil, xprerr.New(xprerr.NestedExpressionNotFoundET, pos, "no named-expression repository configured")
	}
	src, ok := vm.repo.Get(name)
	if !ok {
		return nil, xprerr.New(xprerr.NestedExpressionNotFoundET, pos, "named expression not found: "+name)
	}
	if entry, ok := vm.cache.Get(name); ok && entry.src == src {
		return entry.prog, nil
	}
	comp := compiler.New(vm.registry, vm.repo, vm.table)
	comp.PluginFallThrough = vm.PluginFallThrough
	prog, err := comp.Compile(src)
	if err != nil {
		return nil, xprerr.WithExpressionInfo(err, src, pos)
	}
	vm.cache.Add(name, subroutineCacheEntry{src: src, prog: prog})
	return prog, nil
}

// Package scope implements the compile-time and evaluation-time scopes of
// spec.md §3/§5: the value stack, an arena for intermediate allocations, a
// map of named compile-time resources, and (for evaluation-time scopes) a
// back-pointer to the compile-time scope.
package scope

import (
	"fmt"
	"sync"

	"xpr/value"
)

// Arena is the allocator backing one scope's intermediate storage. It is
// cleared wholesale between evaluations (spec.md §3 invariant: "the
// evaluation-time arena is cleared before a new evaluation begins").
type Arena struct {
	items []any
}

// Keep stores v in the arena and returns it; used by callbacks that must
// allocate a result (e.g. a concatenated string) that needs to outlive the
// single opcode that produced it, without escaping to the Go heap in a way
// the caller has to track.
func (a *Arena) Keep(v any) any {
	a.items = append(a.items, v)
	return v
}

// Reset clears the arena, invalidating every value it is holding.
func (a *Arena) Reset() { a.items = a.items[:0] }

// CompileScope is the per-compiled-expression compile-time scope (spec.md
// §3). It owns the arena that holds every constant the program references
// and every plug-in-stashed named resource (e.g. a compiled wildcard
// matcher keyed by its constant pattern string).
type CompileScope struct {
	mu        sync.RWMutex
	arena     Arena
	resources map[string]any
}

// NewCompileScope creates an empty compile-time scope.
func NewCompileScope() *CompileScope {
	return &CompileScope{resources: make(map[string]any)}
}

func (c *CompileScope) IsCompileTime() bool { return true }

func (c *CompileScope) Resource(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.resources[name]
	return v, ok
}

func (c *CompileScope) SetResource(name string, res any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[name] = res
}

// Arena exposes the compile-time arena for plug-ins that must allocate
// data which outlives any single evaluation (spec.md §4.4's "InvokeCallback"
// paragraph: "...or in the compile-time scope's arena for data that must
// outlive this evaluation").
func (c *CompileScope) Arena() *Arena { return &c.arena }

// Stack is the evaluation-time value stack the VM pushes and pops opcode
// results from.
type Stack struct {
	values []value.Value
}

func (s *Stack) Push(v value.Value) { s.values = append(s.values, v) }

func (s *Stack) Pop() value.Value {
	n := len(s.values)
	v := s.values[n-1]
	s.values = s.values[:n-1]
	return v
}

// PopN removes and returns the top n values, in original left-to-right
// order, matching an opcode's contiguous argument window (spec.md §3).
func (s *Stack) PopN(n int) []value.Value {
	total := len(s.values)
	window := append([]value.Value(nil), s.values[total-n:]...)
	s.values = s.values[:total-n]
	return window
}

func (s *Stack) Top() value.Value { return s.values[len(s.values)-1] }

func (s *Stack) Len() int { return len(s.values) }

func (s *Stack) reset() { s.values = s.values[:0] }

// Scope is the evaluation-time scope a caller constructs once and reuses
// across evaluations (spec.md §3/§5). It owns the evaluation stack, a fresh
// arena cleared at the start of every Evaluate, and a pointer to the
// expression's compile-time scope.
type Scope struct {
	stack      Stack
	arena      Arena
	compile    *CompileScope
	reentrancy map[string]bool

	// Host is free for host applications to stash whatever per-evaluation
	// state their callbacks need to read (e.g. a file-info record being
	// filtered) — spec.md §6 describes callbacks as able to "read
	// scope-carried host state."
	Host any
}

// New creates an evaluation-time scope bound to compile, the compiled
// expression's compile-time scope (spec.md §3: "a back-pointer to the
// compile-time scope").
func New(compile *CompileScope) *Scope {
	return &Scope{compile: compile, reentrancy: make(map[string]bool)}
}

func (s *Scope) IsCompileTime() bool { return false }

func (s *Scope) Resource(name string) (any, bool) {
	if s.compile == nil {
		return nil, false
	}
	return s.compile.Resource(name)
}

func (s *Scope) SetResource(name string, res any) {
	if s.compile != nil {
		s.compile.SetResource(name, res)
	}
}

// CompileScope exposes the bound compile-time scope, nil iff this Scope
// itself doubles as a compile-time scope during constant folding.
func (s *Scope) CompileScope() *CompileScope { return s.compile }

func (s *Scope) Stack() *Stack { return &s.stack }

func (s *Scope) Arena() *Arena { return &s.arena }

// Reset clears the evaluation arena and reentrancy set, per spec.md §4.4:
// "Evaluation begins by clearing the evaluation scope's arena."
func (s *Scope) Reset() {
	s.arena.Reset()
	s.stack.reset()
	for k := range s.reentrancy {
		delete(s.reentrancy, k)
	}
}

// EnterNested marks name as currently being evaluated, returning an error
// if it already is — spec.md §4.4's circular nested-expression detection
// ("a per-scope reentrancy set keyed by named-expression identity").
func (s *Scope) EnterNested(name string) (leave func(), err error) {
	if s.reentrancy[name] {
		return nil, fmt.Errorf("circular nested expression: %s", name)
	}
	s.reentrancy[name] = true
	return func() { delete(s.reentrancy, name) }, nil
}

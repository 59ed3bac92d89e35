// Package repo implements the named-expression repository interface of
// spec.md §6 (`get(name) -> string`), grounded on ALib's
// alib::expressions::StandardRepository (original_source/src/alib/
// expressions/standardrepository.hpp): a lookup keyed by name, consulted by
// the compiler at compile time and by the VM at evaluation time, backed
// here by a plain in-memory map rather than ALib's configuration/resource
// pool chain (spec.md §1 keeps the backing store out of the core's scope).
package repo

import "sync"

// Map is the default NamedExpressionRepository: a concurrent-read-safe
// map[string]string. The compiler and VM may both call Get concurrently
// while compiling/evaluating different expressions against the same
// repository instance (spec.md §5).
type Map struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMap creates an empty repository.
func NewMap() *Map {
	return &Map{entries: make(map[string]string)}
}

// Get implements compiler.Repo / vm's repository dependency.
func (m *Map) Get(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.entries[name]
	return src, ok
}

// Set stores or replaces the expression text registered under name. Setting
// a name to new text invalidates any VM-side subroutine cache entry keyed
// on that name, since the cache compares cached source text, not just the
// name (spec.md §4.3.4).
func (m *Map) Set(name, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = source
}

// Delete removes a named expression, if present.
func (m *Map) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
}

// Names returns the currently registered expression names, in no particular
// order.
func (m *Map) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	return names
}

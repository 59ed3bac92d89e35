package builtins

import (
	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"xpr/plugin"
	"xpr/value"
)

// wildcardCacheSize bounds the number of distinct constant glob patterns
// cached across a single compile-time scope (SPEC_FULL.md §4.6): an
// LRU rather than the unbounded map original_source's C++ plugin uses,
// since a Go host may compile many short-lived filter expressions.
const wildcardCacheSize = 256

// Strings implements binary "+" (concatenation, compile-time-invokable so
// two constant strings fold per spec.md §8 scenario 2) and the wildcard
// filename operator "*" ("name.ext" * "*.ext"), whose compiled matcher is
// cached in the compile-time scope's named-resource map keyed by the
// constant pattern string (spec.md §8 scenario 5; §9's shared
// compile-time-scope state), evicting under github.com/hashicorp/golang-lru/v2
// so repeated distinct patterns across a large expression don't grow it
// unboundedly.
type Strings struct{ plugin.Base }

func NewStrings() *Strings { return &Strings{plugin.Base{PluginName: "Strings"}} }

const wildcardCacheResourceName = "builtins.wildcardCache"

func (p *Strings) TryCompileBinary(info *plugin.BinaryInfo) (*plugin.BinaryOutput, bool, error) {
	if info.LHSType != value.String || info.RHSType != value.String {
		return nil, false, nil
	}
	switch info.Symbol {
	case "+":
		return &plugin.BinaryOutput{Output: plugin.Output{ResultType: value.String, Evaluable: true, Callback: concat}}, true, nil
	case "*":
		return &plugin.BinaryOutput{Output: plugin.Output{ResultType: value.Bool, Callback: matchWildcard}}, true, nil
	}
	return nil, false, nil
}

func concat(_ plugin.Scope, a []value.Value) (value.Value, error) {
	return value.OfString(a[0].String() + a[1].String()), nil
}

// matchWildcard is not Evaluable (spec.md §4.3.1's "compile-time-invokable"
// hint is reserved for callbacks whose result cannot depend on host state;
// a filename match conceptually may in richer hosts, so this one always
// defers to evaluation time, exercising the Subroutine-independent
// InvokeCallback path even when both operands happen to be constant).
func matchWildcard(s plugin.Scope, a []value.Value) (value.Value, error) {
	name, pattern := a[0].String(), a[1].String()
	matcher, err := wildcardMatcher(s, pattern)
	if err != nil {
		return value.Value{}, err
	}
	ok, err := matcher(name)
	if err != nil {
		return value.Value{}, err
	}
	return value.OfBool(ok), nil
}

func wildcardMatcher(s plugin.Scope, pattern string) (func(string) (bool, error), error) {
	cache, err := wildcardCache(s)
	if err != nil {
		return nil, err
	}
	if m, ok := cache.Get(pattern); ok {
		return m, nil
	}
	m := func(name string) (bool, error) { return doublestar.Match(pattern, name) }
	cache.Add(pattern, m)
	return m, nil
}

func wildcardCache(s plugin.Scope) (*lru.Cache[string, func(string) (bool, error)], error) {
	if res, ok := s.Resource(wildcardCacheResourceName); ok {
		return res.(*lru.Cache[string, func(string) (bool, error)]), nil
	}
	cache, err := lru.New[string, func(string) (bool, error)](wildcardCacheSize)
	if err != nil {
		return nil, err
	}
	s.SetResource(wildcardCacheResourceName, cache)
	return cache, nil
}

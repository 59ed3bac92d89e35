package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xpr/builtins"
	"xpr/plugin"
	"xpr/repo"
	"xpr/value"
)

func testRegistry() *plugin.Registry {
	return plugin.NewRegistry(
		builtins.NewArithmetic(),
		builtins.NewComparison(),
		builtins.NewLogic(),
		builtins.NewDateTime(),
	)
}

func TestCompileEvaluateRoundTrip(t *testing.T) {
	c := NewCompiler(testRegistry())
	expr, err := c.Compile("sum", "1 + 2 * 3")
	require.NoError(t, err)

	val, err := expr.Evaluate(expr.NewScope())
	require.NoError(t, err)
	assert.Equal(t, int64(7), val.Int())
	assert.Equal(t, value.Int, expr.ResultType())
	assert.Equal(t, "sum", expr.Name())
	assert.Equal(t, "1 + 2 * 3", expr.Original())
}

func TestNormalizedDivergesFromOptimizedAfterFolding(t *testing.T) {
	c := NewCompiler(testRegistry())
	expr, err := c.Compile("folded", "1 + 2")
	require.NoError(t, err)

	assert.Equal(t, "1 + 2", expr.Normalized())

	opt, err := expr.Optimized()
	require.NoError(t, err)
	assert.Equal(t, "3", opt)
}

func TestOptimizedRendersFoldedDurationViaLiteralWriter(t *testing.T) {
	c := NewCompiler(testRegistry())
	expr, err := c.Compile("days", "Days(3)")
	require.NoError(t, err)

	opt, err := expr.Optimized()
	require.NoError(t, err)
	assert.Equal(t, "Days(3)", opt)
}

func TestOptimizedIsCachedAcrossCalls(t *testing.T) {
	c := NewCompiler(testRegistry())
	expr, err := c.Compile("cached", "2 * 3")
	require.NoError(t, err)

	first, err := expr.Optimized()
	require.NoError(t, err)
	second, err := expr.Optimized()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompileTimingsAreRecorded(t *testing.T) {
	c := NewCompiler(testRegistry())
	expr, err := c.Compile("timed", "1 + 1")
	require.NoError(t, err)
	timings := expr.CompileTimings()
	assert.GreaterOrEqual(t, timings.Parse, time.Duration(0))
	assert.GreaterOrEqual(t, timings.Compile, time.Duration(0))
}

func TestNamedExpressionResolutionAcrossCompiles(t *testing.T) {
	store := repo.NewMap()
	store.Set("three", "3")

	c := NewCompiler(testRegistry(), WithRepo(store))
	expr, err := c.Compile("plusThree", "three + 4")
	require.NoError(t, err)

	val, err := expr.Evaluate(expr.NewScope())
	require.NoError(t, err)
	assert.Equal(t, int64(7), val.Int())
}

func TestNoOptimizationSuppressesFolding(t *testing.T) {
	c := NewCompiler(testRegistry())
	expr, err := c.Compile("sum10", "5 + 5")
	require.NoError(t, err)
	assert.Equal(t, "5 + 5", expr.Normalized())
	opt, err := expr.Optimized()
	require.NoError(t, err)
	assert.Equal(t, "10", opt)

	noOpt := NewCompiler(testRegistry(), WithNoOptimization(true))
	exprNoOpt, err := noOpt.Compile("sum10noopt", "5 + 5")
	require.NoError(t, err)
	assert.Equal(t, "5 + 5", exprNoOpt.Normalized())
	optText, err := exprNoOpt.Optimized()
	require.NoError(t, err)
	assert.Equal(t, "5 + 5", optText)
}

func TestNestedExpressionSharedReferenceSurvivesDeletion(t *testing.T) {
	store := repo.NewMap()
	store.Set("adder", "2 + 3")

	c := NewCompiler(testRegistry(), WithRepo(store))
	expr, err := c.Compile("fromRepo", `*"adder"`)
	require.NoError(t, err)

	store.Delete("adder")

	val, err := expr.Evaluate(expr.NewScope())
	require.NoError(t, err)
	assert.Equal(t, int64(5), val.Int())
}

func TestNestedExpressionEvalFormFallsBackOnMiss(t *testing.T) {
	c := NewCompiler(testRegistry())
	expr, err := c.Compile("withFallback", `Expression("missing", 99)`)
	require.NoError(t, err)

	val, err := expr.Evaluate(expr.NewScope())
	require.NoError(t, err)
	assert.Equal(t, int64(99), val.Int())
}

func TestWithPluginFallThroughBypassesExceptionInPlugin(t *testing.T) {
	c := NewCompiler(testRegistry(), WithPluginFallThrough(true))
	_, err := c.Compile("divByZero", "1 / 0")
	require.Error(t, err)
	assert.Equal(t, builtins.DivisionByZeroError{}, err)
}

// zeroIdent is a stub plug-in exposing one identifier, "zero", whose
// Output.Evaluable is false, so "1 / zero" can never fold at compile time:
// it exercises the evaluation-time ExceptionInCallback path instead of
// ExceptionInPlugin.
type zeroIdent struct{ plugin.Base }

func (zeroIdent) Name() string { return "stub-zero" }

func (zeroIdent) TryCompileFunction(info *plugin.FunctionInfo) (*plugin.Output, bool, error) {
	if info.Name != "zero" {
		return nil, false, nil
	}
	return &plugin.Output{ResultType: value.Int, Callback: func(plugin.Scope, []value.Value) (value.Value, error) {
		return value.OfInt(0), nil
	}}, true, nil
}

func TestWithCallbackFallThroughBypassesExceptionInCallback(t *testing.T) {
	reg := plugin.NewRegistry(builtins.NewArithmetic(), zeroIdent{})
	c := NewCompiler(reg, WithCallbackFallThrough(true))
	expr, err := c.Compile("divByZeroRuntime", "1 / zero")
	require.NoError(t, err)

	_, err = expr.Evaluate(expr.NewScope())
	require.Error(t, err)
	assert.Equal(t, builtins.DivisionByZeroError{}, err)
}

func TestCompileErrorPropagatesFromParser(t *testing.T) {
	c := NewCompiler(testRegistry())
	_, err := c.Compile("bad", "1 +")
	assert.Error(t, err)
}

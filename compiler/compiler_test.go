package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xpr/builtins"
	"xpr/plugin"
	"xpr/repo"
	"xpr/token"
	"xpr/value"
	"xpr/xprerr"
)

func newCompiler(t *testing.T, r Repo) *Compiler {
	t.Helper()
	reg := plugin.NewRegistry(
		builtins.NewArithmetic(),
		builtins.NewComparison(),
		builtins.NewLogic(),
	)
	return New(reg, r, token.DefaultOperatorTable())
}

func compile(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := newCompiler(t, nil).Compile(src)
	require.NoError(t, err)
	return prog
}

func compileErr(t *testing.T, src string) *xprerr.Error {
	t.Helper()
	_, err := newCompiler(t, nil).Compile(src)
	require.Error(t, err)
	var e *xprerr.Error
	require.ErrorAs(t, err, &e)
	return e
}

func TestConstantArithmeticFoldsToSinglePushConstant(t *testing.T) {
	prog := compile(t, "1 + 2 * 3")
	assert.True(t, prog.IsConstant())
	assert.Equal(t, int64(7), prog.ConstantValue().Int())
	assert.Equal(t, value.Int, prog.ResultType)
}

// nonEvaluableIdent is a stub plug-in exposing one identifier, "x", whose
// Output.Evaluable is false — so the compiler can never fold a call to it,
// letting tests exercise the non-constant InvokeCallback emission path
// without depending on any builtins plug-in's foldability.
type nonEvaluableIdent struct{ plugin.Base }

func (nonEvaluableIdent) Name() string { return "stub" }

func (nonEvaluableIdent) TryCompileFunction(info *plugin.FunctionInfo) (*plugin.Output, bool, error) {
	if info.Name != "x" {
		return nil, false, nil
	}
	return &plugin.Output{ResultType: value.Int, Callback: func(plugin.Scope, []value.Value) (value.Value, error) {
		return value.OfInt(5), nil
	}}, true, nil
}

func TestNonConstantArithmeticEmitsInvokeCallback(t *testing.T) {
	reg := plugin.NewRegistry(builtins.NewArithmetic(), nonEvaluableIdent{})
	c := New(reg, nil, token.DefaultOperatorTable())
	prog, err := c.Compile("x + 1")
	require.NoError(t, err)
	assert.False(t, prog.IsConstant())
	require.Len(t, prog.CallbacksPool, 2) // the "x" stub call, then "+"
	assert.Equal(t, InvokeCallback, Opcode(prog.Instructions[len(prog.Instructions)-InstructionWidth]))
}

func TestDivisionByZeroFoldsToCompileTimeError(t *testing.T) {
	e := compileErr(t, "1 / 0")
	assert.Equal(t, xprerr.ExceptionInPlugin, e.Kind)
}

func TestPluginFallThroughReturnsCauseUnwrapped(t *testing.T) {
	c := newCompiler(t, nil)
	c.PluginFallThrough = true
	_, err := c.Compile("1 / 0")
	require.Error(t, err)
	var e *xprerr.Error
	assert.False(t, errors.As(err, &e), "fall-through should bypass xprerr.Error wrapping entirely")
	assert.Equal(t, builtins.DivisionByZeroError{}, err)
}

func TestIntFloatAutoCastOnBinary(t *testing.T) {
	prog := compile(t, "1 + 2.5")
	assert.True(t, prog.IsConstant())
	assert.Equal(t, value.Float, prog.ResultType)
	assert.Equal(t, 3.5, prog.ConstantValue().Float())
}

func TestUnknownBinaryOperatorIsReported(t *testing.T) {
	e := compileErr(t, `1 + "x"`)
	assert.Equal(t, xprerr.BinaryOperatorNotDefined, e.Kind)
}

func TestUnaryOperatorNotDefinedForType(t *testing.T) {
	e := compileErr(t, `-"x"`)
	assert.Equal(t, xprerr.UnaryOperatorNotDefined, e.Kind)
}

func TestUnknownIdentifierWithoutRepoIsReported(t *testing.T) {
	e := compileErr(t, "foo")
	assert.Equal(t, xprerr.UnknownIdentifier, e.Kind)
}

func TestUnknownFunctionWithoutRepoIsReported(t *testing.T) {
	e := compileErr(t, "foo(1)")
	assert.Equal(t, xprerr.UnknownFunction, e.Kind)
}

func TestConditionalDeadBranchElimination(t *testing.T) {
	prog := compile(t, "1 == 1 ? 10 : 20")
	assert.True(t, prog.IsConstant())
	assert.Equal(t, int64(10), prog.ConstantValue().Int())
}

func TestConditionalWithNonConstantConditionEmitsJumps(t *testing.T) {
	reg := plugin.NewRegistry(builtins.NewArithmetic(), builtins.NewComparison(), nonEvaluableIdent{})
	c := New(reg, nil, token.DefaultOperatorTable())
	prog, err := c.Compile("x == 5 ? 1 : 2")
	require.NoError(t, err)
	assert.False(t, prog.IsConstant())

	sawJumpIfFalse, sawJump := false, false
	for ip := 0; ip < len(prog.Instructions); ip += InstructionWidth {
		switch Opcode(prog.Instructions[ip]) {
		case JumpIfFalse:
			sawJumpIfFalse = true
		case Jump:
			sawJump = true
		}
	}
	assert.True(t, sawJumpIfFalse)
	assert.True(t, sawJump)
}

func TestIncompatibleConditionalBranchTypesAreReported(t *testing.T) {
	reg := plugin.NewRegistry(builtins.NewArithmetic(), builtins.NewComparison(), nonEvaluableIdent{})
	c := New(reg, nil, token.DefaultOperatorTable())
	_, err := c.Compile(`x == 5 ? 1 : "text"`)
	require.Error(t, err)
	var e *xprerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, xprerr.IncompatibleTypesInConditional, e.Kind)
}

func TestNamedExpressionResolvesAsConstant(t *testing.T) {
	store := repo.NewMap()
	store.Set("pi", "3")
	c := newCompiler(t, store)
	prog, err := c.Compile("pi + 1")
	require.NoError(t, err)
	assert.True(t, prog.IsConstant())
	assert.Equal(t, int64(4), prog.ConstantValue().Int())
}

func TestNamedExpressionNotFoundIsReported(t *testing.T) {
	store := repo.NewMap()
	c := newCompiler(t, store)
	e := compileErr2(t, c, "missing")
	assert.Equal(t, xprerr.NamedExpressionNotFound, e.Kind)
}

func TestCircularNamedExpressionIsDetected(t *testing.T) {
	store := repo.NewMap()
	store.Set("a", "b")
	store.Set("b", "a")
	c := newCompiler(t, store)
	e := compileErr2(t, c, "a")
	assert.Equal(t, xprerr.CircularNestedExpressions, e.Kind)
}

func TestNestedFunctionCallWithArgsIsRejected(t *testing.T) {
	store := repo.NewMap()
	store.Set("total", "1 + 2")
	c := newCompiler(t, store)
	e := compileErr2(t, c, "total(1)")
	assert.Equal(t, xprerr.NestedExpressionCallArgumentMismatch, e.Kind)
}

func compileErr2(t *testing.T, c *Compiler, src string) *xprerr.Error {
	t.Helper()
	_, err := c.Compile(src)
	require.Error(t, err)
	var e *xprerr.Error
	require.ErrorAs(t, err, &e)
	return e
}

func TestEmptyExpressionIsReported(t *testing.T) {
	e := compileErr(t, "")
	assert.Equal(t, xprerr.EmptyExpressionString, e.Kind)
}

// nonEvaluableFloatIdent exposes "y", an Int identifier's Float twin: paired
// with nonEvaluableIdent's "x" (Int), it lets a test put two non-constant,
// differently-typed operands on either side of a conditional, so
// unifyConditionalTypes must splice an actual cast instead of folding one in
// place (neither branch carries a constVal to rewrite).
type nonEvaluableFloatIdent struct{ plugin.Base }

func (nonEvaluableFloatIdent) Name() string { return "stub-float" }

func (nonEvaluableFloatIdent) TryCompileFunction(info *plugin.FunctionInfo) (*plugin.Output, bool, error) {
	if info.Name != "y" {
		return nil, false, nil
	}
	return &plugin.Output{ResultType: value.Float, Callback: func(plugin.Scope, []value.Value) (value.Value, error) {
		return value.OfFloat(2.5), nil
	}}, true, nil
}

func TestConditionalAutoCastsNonConstantBranches(t *testing.T) {
	reg := plugin.NewRegistry(builtins.NewArithmetic(), builtins.NewComparison(), nonEvaluableIdent{}, nonEvaluableFloatIdent{})
	c := New(reg, nil, token.DefaultOperatorTable())
	prog, err := c.Compile("x == 5 ? x : y")
	require.NoError(t, err)
	assert.False(t, prog.IsConstant())
	assert.Equal(t, value.Float, prog.ResultType)

	sawInvoke := 0
	for ip := 0; ip < len(prog.Instructions); ip += InstructionWidth {
		if Opcode(prog.Instructions[ip]) == InvokeCallback {
			sawInvoke++
		}
	}
	// "==" comparison, "x" itself, the spliced int->float cast, and "y".
	assert.GreaterOrEqual(t, sawInvoke, 4)
}

func TestNestedOperatorFoldsConstantNamedExpression(t *testing.T) {
	store := repo.NewMap()
	store.Set("rate", "5 + 2")
	c := newCompiler(t, store)
	prog, err := c.Compile(`*"rate"`)
	require.NoError(t, err)
	assert.True(t, prog.IsConstant())
	assert.Equal(t, int64(7), prog.ConstantValue().Int())
}

func TestNestedFuncSingleArgPinsSharedReferenceProgram(t *testing.T) {
	reg := plugin.NewRegistry(builtins.NewArithmetic(), nonEvaluableIdent{})
	store := repo.NewMap()
	store.Set("total", "x + 2")
	c := New(reg, store, token.DefaultOperatorTable())
	prog, err := c.Compile(`Expression("total") + 1`)
	require.NoError(t, err)
	require.NotEmpty(t, prog.SubroutinePool)
	require.NotNil(t, prog.SubroutinePool[0].Program)
	assert.Equal(t, value.Int, prog.SubroutinePool[0].ResultType)
}

func TestNestedFuncSingleArgRejectsNonConstantName(t *testing.T) {
	reg := plugin.NewRegistry(builtins.NewArithmetic(), nonEvaluableIdent{})
	store := repo.NewMap()
	c := New(reg, store, token.DefaultOperatorTable())
	_, err := c.Compile(`Expression(x)`)
	require.Error(t, err)
	var e *xprerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, xprerr.NamedExpressionNotConstant, e.Kind)
}

func TestNestedFuncEvalFormCompilesReplacementIndependently(t *testing.T) {
	store := repo.NewMap()
	c := newCompiler(t, store)
	prog, err := c.Compile(`Expression("missing", 42)`)
	require.NoError(t, err)
	require.Len(t, prog.SubroutinePool, 1)
	meta := prog.SubroutinePool[0]
	require.NotNil(t, meta.Replacement)
	assert.Equal(t, value.Int, meta.ResultType)
	assert.Equal(t, 1, meta.ArgCount) // throwKeyword omitted, so only name is pushed
}

func TestNestedFuncEvalFormWithConstantThrowOmitsArg(t *testing.T) {
	store := repo.NewMap()
	c := newCompiler(t, store)
	prog, err := c.Compile(`Expression("missing", 42, true)`)
	require.NoError(t, err)
	require.Len(t, prog.SubroutinePool, 1)
	meta := prog.SubroutinePool[0]
	assert.Equal(t, 1, meta.ArgCount) // throw was constant, so it's baked into ThrowOnMissConst
	assert.True(t, meta.ThrowOnMissConst)
}

func TestNestedFuncAbbreviatedNameMatches(t *testing.T) {
	store := repo.NewMap()
	store.Set("total", "3")
	c := newCompiler(t, store)
	c.NestedFuncMinAbbrev = 4
	prog, err := c.Compile(`Expr("total")`)
	require.NoError(t, err)
	assert.True(t, prog.IsConstant())
	assert.Equal(t, int64(3), prog.ConstantValue().Int())
}

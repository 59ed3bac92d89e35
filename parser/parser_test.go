package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xpr/ast"
	"xpr/token"
	"xpr/xprerr"
)

func parse(t *testing.T, src string) ast.Node {
	t.Helper()
	p, err := New(src, token.DefaultOperatorTable())
	require.NoError(t, err)
	node, err := p.Parse()
	require.NoError(t, err)
	return node
}

func parseErr(t *testing.T, src string) *xprerr.Error {
	t.Helper()
	p, err := New(src, token.DefaultOperatorTable())
	if err != nil {
		var e *xprerr.Error
		require.ErrorAs(t, err, &e)
		return e
	}
	_, err = p.Parse()
	require.Error(t, err)
	var e *xprerr.Error
	require.ErrorAs(t, err, &e)
	return e
}

func TestEmptyExpressionIsRejected(t *testing.T) {
	e := parseErr(t, "")
	assert.Equal(t, xprerr.EmptyExpressionString, e.Kind)
}

func TestLiteralsParse(t *testing.T) {
	lit := parse(t, "42").(*ast.Literal)
	assert.Equal(t, int64(42), lit.Value.Int())

	lit = parse(t, "3.5").(*ast.Literal)
	assert.Equal(t, 3.5, lit.Value.Float())

	lit = parse(t, `"hi"`).(*ast.Literal)
	assert.Equal(t, "hi", lit.Value.String())
}

func TestIdentifierParses(t *testing.T) {
	id := parse(t, "foo").(*ast.Identifier)
	assert.Equal(t, "foo", id.Name)
}

func TestFunctionCallParsesArgs(t *testing.T) {
	fn := parse(t, "Max(1, 2, 3)").(*ast.Function)
	assert.Equal(t, "Max", fn.Name)
	require.Len(t, fn.Args, 3)
	assert.Equal(t, int64(2), fn.Args[1].(*ast.Literal).Value.Int())
}

func TestFunctionCallWithNoArgs(t *testing.T) {
	fn := parse(t, "Now()").(*ast.Function)
	assert.Equal(t, "Now", fn.Name)
	assert.Len(t, fn.Args, 0)
}

func TestBinaryPrecedenceClimbsCorrectly(t *testing.T) {
	// "1 + 2 * 3" must parse as "1 + (2 * 3)".
	node := parse(t, "1 + 2 * 3").(*ast.BinaryOp)
	assert.Equal(t, "+", node.Symbol)
	assert.Equal(t, int64(1), node.LHS.(*ast.Literal).Value.Int())
	rhs := node.RHS.(*ast.BinaryOp)
	assert.Equal(t, "*", rhs.Symbol)
}

func TestBinaryIsLeftAssociative(t *testing.T) {
	// "1 - 2 - 3" must parse as "(1 - 2) - 3".
	node := parse(t, "1 - 2 - 3").(*ast.BinaryOp)
	assert.Equal(t, "-", node.Symbol)
	lhs := node.LHS.(*ast.BinaryOp)
	assert.Equal(t, "-", lhs.Symbol)
	assert.Equal(t, int64(3), node.RHS.(*ast.Literal).Value.Int())
}

func TestParenthesesOverridePrecedence(t *testing.T) {
	node := parse(t, "(1 + 2) * 3").(*ast.BinaryOp)
	assert.Equal(t, "*", node.Symbol)
	lhs := node.LHS.(*ast.BinaryOp)
	assert.Equal(t, "+", lhs.Symbol)
}

func TestUnaryBindsTighterThanBinary(t *testing.T) {
	node := parse(t, "-1 + 2").(*ast.BinaryOp)
	assert.Equal(t, "+", node.Symbol)
	lhs := node.LHS.(*ast.UnaryOp)
	assert.Equal(t, "-", lhs.Symbol)
}

func TestDoubleUnaryNests(t *testing.T) {
	node := parse(t, "!!x").(*ast.UnaryOp)
	assert.Equal(t, "!", node.Symbol)
	inner := node.Operand.(*ast.UnaryOp)
	assert.Equal(t, "!", inner.Symbol)
	assert.IsType(t, &ast.Identifier{}, inner.Operand)
}

func TestConditionalParses(t *testing.T) {
	node := parse(t, "a ? 1 : 2").(*ast.Conditional)
	assert.IsType(t, &ast.Identifier{}, node.Q)
	assert.Equal(t, int64(1), node.T.(*ast.Literal).Value.Int())
	assert.Equal(t, int64(2), node.F.(*ast.Literal).Value.Int())
}

func TestConditionalIsRightAssociative(t *testing.T) {
	// "a ? 1 : b ? 2 : 3" must parse as "a ? 1 : (b ? 2 : 3)".
	node := parse(t, "a ? 1 : b ? 2 : 3").(*ast.Conditional)
	_, ok := node.F.(*ast.Conditional)
	assert.True(t, ok)
}

func TestSubscriptChains(t *testing.T) {
	node := parse(t, "a[0][1]").(*ast.BinaryOp)
	assert.Equal(t, "[]", node.Symbol)
	assert.Equal(t, int64(1), node.RHS.(*ast.Literal).Value.Int())
	inner := node.LHS.(*ast.BinaryOp)
	assert.Equal(t, "[]", inner.Symbol)
	assert.IsType(t, &ast.Identifier{}, inner.LHS)
}

func TestAlphabeticAliasesResolveToSymbol(t *testing.T) {
	node := parse(t, "a and b").(*ast.BinaryOp)
	assert.Equal(t, "&&", node.Symbol)

	node = parse(t, "a or b").(*ast.BinaryOp)
	assert.Equal(t, "||", node.Symbol)

	un := parse(t, "not a").(*ast.UnaryOp)
	assert.Equal(t, "!", un.Symbol)
}

func TestMultiCharSymbolSplitsIntoOperatorPlusSuffix(t *testing.T) {
	// "a<!b" : "<" is the longest registered binary prefix, "!" is a
	// separate unary operator applied to "b".
	node := parse(t, "a<!b").(*ast.BinaryOp)
	assert.Equal(t, "<", node.Symbol)
	un := node.RHS.(*ast.UnaryOp)
	assert.Equal(t, "!", un.Symbol)
}

func TestTrailingInputIsRejected(t *testing.T) {
	e := parseErr(t, "1 2")
	assert.Equal(t, xprerr.SyntaxErrorExpectationKind, e.Kind)
	assert.Equal(t, xprerr.ExpectEndOfInput, e.Expectation)
}

func TestUnclosedParenIsRejected(t *testing.T) {
	e := parseErr(t, "(1 + 2")
	assert.Equal(t, xprerr.SyntaxErrorExpectationKind, e.Kind)
	assert.Equal(t, xprerr.ExpectClosingParen, e.Expectation)
}

func TestUnclosedBracketIsRejected(t *testing.T) {
	e := parseErr(t, "a[0")
	assert.Equal(t, xprerr.ExpectClosingBracket, e.Expectation)
}

func TestMissingColonInConditionalIsRejected(t *testing.T) {
	e := parseErr(t, "a ? 1")
	assert.Equal(t, xprerr.ExpectColon, e.Expectation)
}

func TestDanglingOperatorIsRejected(t *testing.T) {
	e := parseErr(t, "1 +")
	assert.Equal(t, xprerr.SyntaxErrorExpectationKind, e.Kind)
	assert.Equal(t, xprerr.ExpectOperand, e.Expectation)
}

func TestEmptyArgInFunctionCallIsRejected(t *testing.T) {
	e := parseErr(t, "Max(1, , 2)")
	assert.Equal(t, xprerr.ExpectExpression, e.Expectation)
}

func TestSubscriptDisabledRejectsBracketAsUnexpectedCharacter(t *testing.T) {
	table := token.DefaultOperatorTable()
	table.AllowSubscript = false
	p, err := New("a[0]", table)
	require.NoError(t, err)
	_, err = p.Parse()
	assert.Error(t, err)
}

func TestAssignAliasedToEquals(t *testing.T) {
	table := token.DefaultOperatorTable()
	require.NoError(t, table.AliasEqualsWithAssign())
	p, err := New("a = b", table)
	require.NoError(t, err)
	node, err := p.Parse()
	require.NoError(t, err)
	assert.Equal(t, "==", node.(*ast.BinaryOp).Symbol)
}

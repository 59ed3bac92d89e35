package builtins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xpr/plugin"
	"xpr/value"
)

func TestComparisonBoolAndOr(t *testing.T) {
	p := NewComparison()
	andOut, handled, err := p.TryCompileBinary(&plugin.BinaryInfo{Symbol: "&&", LHSType: value.Bool, RHSType: value.Bool})
	require.NoError(t, err)
	require.True(t, handled)
	v, err := andOut.Callback(nil, []value.Value{value.OfBool(true), value.OfBool(false)})
	require.NoError(t, err)
	assert.False(t, v.Bool())

	orOut, _, _ := p.TryCompileBinary(&plugin.BinaryInfo{Symbol: "||", LHSType: value.Bool, RHSType: value.Bool})
	v, err = orOut.Callback(nil, []value.Value{value.OfBool(true), value.OfBool(false)})
	require.NoError(t, err)
	assert.True(t, v.Bool())
}

func TestComparisonEquality(t *testing.T) {
	p := NewComparison()
	for _, tc := range []struct {
		typ  *value.Type
		a, b value.Value
	}{
		{value.Int, value.OfInt(4), value.OfInt(4)},
		{value.Float, value.OfFloat(1.5), value.OfFloat(1.5)},
		{value.String, value.OfString("x"), value.OfString("x")},
		{value.Bool, value.OfBool(true), value.OfBool(true)},
	} {
		out, handled, err := p.TryCompileBinary(&plugin.BinaryInfo{Symbol: "==", LHSType: tc.typ, RHSType: tc.typ})
		require.NoError(t, err)
		require.True(t, handled)
		v, err := out.Callback(nil, []value.Value{tc.a, tc.b})
		require.NoError(t, err)
		assert.True(t, v.Bool())
	}
}

func TestComparisonNotEquals(t *testing.T) {
	p := NewComparison()
	out, _, _ := p.TryCompileBinary(&plugin.BinaryInfo{Symbol: "!=", LHSType: value.Int, RHSType: value.Int})
	v, err := out.Callback(nil, []value.Value{value.OfInt(1), value.OfInt(2)})
	require.NoError(t, err)
	assert.True(t, v.Bool())
}

func TestComparisonOrdering(t *testing.T) {
	p := NewComparison()
	cases := map[string]bool{"<": true, "<=": true, ">": false, ">=": false}
	for sym, want := range cases {
		out, handled, err := p.TryCompileBinary(&plugin.BinaryInfo{Symbol: sym, LHSType: value.Int, RHSType: value.Int})
		require.NoError(t, err)
		require.True(t, handled)
		v, err := out.Callback(nil, []value.Value{value.OfInt(1), value.OfInt(2)})
		require.NoError(t, err)
		assert.Equal(t, want, v.Bool(), sym)
	}
}

func TestComparisonDeclinesMismatchedTypes(t *testing.T) {
	p := NewComparison()
	_, handled, err := p.TryCompileBinary(&plugin.BinaryInfo{Symbol: "==", LHSType: value.Int, RHSType: value.String})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestComparisonDeclinesOrderingOnString(t *testing.T) {
	p := NewComparison()
	_, handled, err := p.TryCompileBinary(&plugin.BinaryInfo{Symbol: "<", LHSType: value.String, RHSType: value.String})
	require.NoError(t, err)
	assert.False(t, handled)
}

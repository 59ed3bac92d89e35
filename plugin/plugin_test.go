package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xpr/value"
)

type stubPlugin struct {
	Base
	name       string
	funcNames  map[string]bool
	unarySyms  map[string]bool
	binarySyms map[string]bool
}

func (s *stubPlugin) Name() string { return s.name }

func (s *stubPlugin) TryCompileFunction(info *FunctionInfo) (*Output, bool, error) {
	if !s.funcNames[info.Name] {
		return nil, false, nil
	}
	return &Output{ResultType: value.Int}, true, nil
}

func (s *stubPlugin) TryCompileUnary(info *UnaryInfo) (*Output, bool, error) {
	if !s.unarySyms[info.Symbol] {
		return nil, false, nil
	}
	return &Output{ResultType: value.Int}, true, nil
}

func (s *stubPlugin) TryCompileBinary(info *BinaryInfo) (*BinaryOutput, bool, error) {
	if !s.binarySyms[info.Symbol] {
		return nil, false, nil
	}
	return &BinaryOutput{Output: Output{ResultType: value.Int}}, true, nil
}

func TestRegistryTriesPluginsInPriorityOrder(t *testing.T) {
	first := &stubPlugin{name: "first", funcNames: map[string]bool{"F": true}}
	second := &stubPlugin{name: "second", funcNames: map[string]bool{"F": true, "G": true}}
	reg := NewRegistry(first, second)

	out, err := reg.CompileFunction(&FunctionInfo{Name: "F"})
	require.NoError(t, err)
	require.NotNil(t, out)

	out, err = reg.CompileFunction(&FunctionInfo{Name: "G"})
	require.NoError(t, err)
	require.NotNil(t, out)

	out, err = reg.CompileFunction(&FunctionInfo{Name: "H"})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRegistryAddAppendsAtLowestPriority(t *testing.T) {
	reg := NewRegistry()
	p := &stubPlugin{name: "only", unarySyms: map[string]bool{"-": true}}
	reg.Add(p)

	out, err := reg.CompileUnary(&UnaryInfo{Symbol: "-"})
	require.NoError(t, err)
	require.NotNil(t, out)
}

func TestRegistryPropagatesPluginError(t *testing.T) {
	erroring := &erroringPlugin{}
	reg := NewRegistry(erroring)
	_, err := reg.CompileBinary(&BinaryInfo{Symbol: "+"})
	assert.Error(t, err)
}

type erroringPlugin struct{ Base }

func (erroringPlugin) Name() string { return "erroring" }
func (erroringPlugin) TryCompileBinary(*BinaryInfo) (*BinaryOutput, bool, error) {
	return nil, false, assertErr
}

var assertErr = &stubError{"boom"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }

func TestArgConstnessAllConstant(t *testing.T) {
	assert.True(t, ArgConstness{true, true}.AllConstant())
	assert.False(t, ArgConstness{true, false}.AllConstant())
	assert.True(t, ArgConstness{}.AllConstant())
}

func TestBaseDeclinesEverything(t *testing.T) {
	b := Base{PluginName: "base"}
	assert.Equal(t, "base", b.Name())

	out, handled, err := b.TryCompileFunction(&FunctionInfo{})
	assert.Nil(t, out)
	assert.False(t, handled)
	assert.NoError(t, err)

	uo, handled, err := b.TryCompileUnary(&UnaryInfo{})
	assert.Nil(t, uo)
	assert.False(t, handled)
	assert.NoError(t, err)

	bo, handled, err := b.TryCompileBinary(&BinaryInfo{})
	assert.Nil(t, bo)
	assert.False(t, handled)
	assert.NoError(t, err)

	ac, handled, err := b.TryAutoCast("+", value.Int, value.Int)
	assert.Nil(t, ac)
	assert.False(t, handled)
	assert.NoError(t, err)
}

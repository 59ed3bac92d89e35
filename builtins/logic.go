package builtins

import (
	"xpr/plugin"
	"xpr/value"
)

// Logic implements the unary "!" (and its alphabetic alias "not", resolved
// by the lexer) over Bool.
type Logic struct{ plugin.Base }

func NewLogic() *Logic { return &Logic{plugin.Base{PluginName: "Logic"}} }

func (p *Logic) TryCompileUnary(info *plugin.UnaryInfo) (*plugin.Output, bool, error) {
	if info.Symbol != "!" || info.OperandType != value.Bool {
		return nil, false, nil
	}
	return &plugin.Output{ResultType: value.Bool, Evaluable: true, Callback: func(_ plugin.Scope, a []value.Value) (value.Value, error) {
		return value.OfBool(!a[0].Bool()), nil
	}}, true, nil
}

package builtins

import (
	"github.com/shopspring/decimal"

	"xpr/plugin"
	"xpr/value"
)

// Math implements Round(x, places), demonstrating a plug-in whose exact
// result is computed via github.com/shopspring/decimal (to avoid binary
// float rounding surprises) and then unboxed back to value.Float, the
// result type the rest of the core sees.
type Math struct{ plugin.Base }

func NewMath() *Math { return &Math{plugin.Base{PluginName: "Math"}} }

func (p *Math) TryCompileFunction(info *plugin.FunctionInfo) (*plugin.Output, bool, error) {
	if info.Name != "Round" {
		return nil, false, nil
	}
	if !info.HasParens {
		info.Hint = plugin.HintMissingParentheses
		return nil, true, nil
	}
	if len(info.ArgTypes) != 2 || info.ArgTypes[0] != value.Float || info.ArgTypes[1] != value.Int {
		info.Hint = plugin.HintWrongArgumentTypes
		return nil, true, nil
	}
	return &plugin.Output{ResultType: value.Float, Evaluable: true, Callback: roundCb}, true, nil
}

func roundCb(_ plugin.Scope, a []value.Value) (value.Value, error) {
	places := int32(a[1].Int())
	d := decimal.NewFromFloat(a[0].Float()).Round(places)
	f, _ := d.Float64()
	return value.OfFloat(f), nil
}

package builtins

import (
	"xpr/plugin"
	"xpr/value"
)

// Comparison implements <, <=, >, >=, ==, != over Int/Float and ==/!= over
// Bool and String, plus Bool's && and || (and their alphabetic aliases
// "and"/"or" resolved by the lexer before these ever see a symbol other
// than "&&"/"||", per DESIGN.md's alias-resolution decision).
type Comparison struct{ plugin.Base }

func NewComparison() *Comparison { return &Comparison{plugin.Base{PluginName: "Comparison"}} }

func (p *Comparison) TryCompileBinary(info *plugin.BinaryInfo) (*plugin.BinaryOutput, bool, error) {
	if info.LHSType != info.RHSType {
		return nil, false, nil
	}
	switch info.Symbol {
	case "&&", "||":
		if info.LHSType != value.Bool {
			return nil, false, nil
		}
		cb := boolAnd
		if info.Symbol == "||" {
			cb = boolOr
		}
		return &plugin.BinaryOutput{Output: plugin.Output{ResultType: value.Bool, Evaluable: true, Callback: cb}}, true, nil

	case "==", "!=":
		cb, ok := equalityCallback(info.LHSType, info.Symbol == "!=")
		if !ok {
			return nil, false, nil
		}
		return &plugin.BinaryOutput{Output: plugin.Output{ResultType: value.Bool, Evaluable: true, Callback: cb}}, true, nil

	case "<", "<=", ">", ">=":
		if info.LHSType != value.Int && info.LHSType != value.Float {
			return nil, false, nil
		}
		cb := orderingCallback(info.LHSType == value.Float, info.Symbol)
		return &plugin.BinaryOutput{Output: plugin.Output{ResultType: value.Bool, Evaluable: true, Callback: cb}}, true, nil
	}
	return nil, false, nil
}

func boolAnd(_ plugin.Scope, a []value.Value) (value.Value, error) {
	return value.OfBool(a[0].Bool() && a[1].Bool()), nil
}

func boolOr(_ plugin.Scope, a []value.Value) (value.Value, error) {
	return value.OfBool(a[0].Bool() || a[1].Bool()), nil
}

func equalityCallback(typ *value.Type, negate bool) (plugin.Callback, bool) {
	var eq func(a, b value.Value) bool
	switch typ {
	case value.Bool:
		eq = func(a, b value.Value) bool { return a.Bool() == b.Bool() }
	case value.Int:
		eq = func(a, b value.Value) bool { return a.Int() == b.Int() }
	case value.Float:
		eq = func(a, b value.Value) bool { return a.Float() == b.Float() }
	case value.String:
		eq = func(a, b value.Value) bool { return a.String() == b.String() }
	default:
		return nil, false
	}
	return func(_ plugin.Scope, a []value.Value) (value.Value, error) {
		result := eq(a[0], a[1])
		if negate {
			result = !result
		}
		return value.OfBool(result), nil
	}, true
}

func orderingCallback(isFloat bool, symbol string) plugin.Callback {
	return func(_ plugin.Scope, a []value.Value) (value.Value, error) {
		var cmp int
		if isFloat {
			lf, rf := a[0].Float(), a[1].Float()
			switch {
			case lf < rf:
				cmp = -1
			case lf > rf:
				cmp = 1
			}
		} else {
			li, ri := a[0].Int(), a[1].Int()
			switch {
			case li < ri:
				cmp = -1
			case li > ri:
				cmp = 1
			}
		}
		var result bool
		switch symbol {
		case "<":
			result = cmp < 0
		case "<=":
			result = cmp <= 0
		case ">":
			result = cmp > 0
		case ">=":
			result = cmp >= 0
		}
		return value.OfBool(result), nil
	}
}

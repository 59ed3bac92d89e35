// Package builtins ships reference compiler plug-ins exercising the core
// library end to end (SPEC_FULL.md §1/§4.6): arithmetic/comparison/logic,
// string concatenation and a wildcard filename operator, decimal rounding,
// and date/duration construction. These are test/reference fixtures, not a
// production standard library — spec.md §1 keeps built-in plug-in content
// out of the core's scope.
package builtins

import (
	"xpr/plugin"
	"xpr/value"
)

// Arithmetic implements +, -, *, /, % and unary +/- over Int and Float,
// grounded on the teacher's OP_ADD/OP_SUB/... opcode set
// (_examples/informatter-nilan/compiler/ast_compiler.go) and on
// original_source's built-in arithmetic plugin
// (original_source/src/alib/expressions/plugins/arithmetics.cpp).
type Arithmetic struct{ plugin.Base }

// NewArithmetic constructs the plug-in.
func NewArithmetic() *Arithmetic { return &Arithmetic{plugin.Base{PluginName: "Arithmetic"}} }

func (p *Arithmetic) TryCompileUnary(info *plugin.UnaryInfo) (*plugin.Output, bool, error) {
	switch info.Symbol {
	case "-":
		switch info.OperandType {
		case value.Int:
			return &plugin.Output{ResultType: value.Int, Evaluable: true, Callback: negInt}, true, nil
		case value.Float:
			return &plugin.Output{ResultType: value.Float, Evaluable: true, Callback: negFloat}, true, nil
		}
	case "+":
		switch info.OperandType {
		case value.Int, value.Float:
			return &plugin.Output{ResultType: info.OperandType, Evaluable: true, Callback: identity}, true, nil
		}
	}
	return nil, false, nil
}

func (p *Arithmetic) TryCompileBinary(info *plugin.BinaryInfo) (*plugin.BinaryOutput, bool, error) {
	if info.LHSType != value.Int && info.LHSType != value.Float {
		return nil, false, nil
	}
	if info.RHSType != info.LHSType {
		return nil, false, nil
	}
	isFloat := info.LHSType == value.Float
	var cb plugin.Callback
	switch info.Symbol {
	case "+":
		cb = addCb(isFloat)
	case "-":
		cb = subCb(isFloat)
	case "*":
		cb = mulCb(isFloat)
	case "/":
		cb = divCb(isFloat)
	case "%":
		if isFloat {
			return nil, false, nil
		}
		cb = modInt
	default:
		return nil, false, nil
	}
	return &plugin.BinaryOutput{Output: plugin.Output{ResultType: info.LHSType, Evaluable: true, Callback: cb}}, true, nil
}

// TryAutoCast proposes an Int -> Float cast for whichever side is Int when
// the other side is Float, per spec.md §4.3.5 and SPEC_FULL's "Int->Float
// auto-cast".
func (p *Arithmetic) TryAutoCast(symbol string, lhs, rhs *value.Type) (*plugin.AutoCastOutput, bool, error) {
	switch {
	case lhs == value.Int && rhs == value.Float:
		return &plugin.AutoCastOutput{LHS: &plugin.CastProposal{Callback: intToFloat, NewType: value.Float, CastFnName: "Float"}}, true, nil
	case lhs == value.Float && rhs == value.Int:
		return &plugin.AutoCastOutput{RHS: &plugin.CastProposal{Callback: intToFloat, NewType: value.Float, CastFnName: "Float"}}, true, nil
	default:
		return nil, false, nil
	}
}

func identity(_ plugin.Scope, args []value.Value) (value.Value, error) { return args[0], nil }

func negInt(_ plugin.Scope, args []value.Value) (value.Value, error) {
	return value.OfInt(-args[0].Int()), nil
}

func negFloat(_ plugin.Scope, args []value.Value) (value.Value, error) {
	return value.OfFloat(-args[0].Float()), nil
}

func intToFloat(_ plugin.Scope, args []value.Value) (value.Value, error) {
	return value.OfFloat(float64(args[0].Int())), nil
}

func addCb(isFloat bool) plugin.Callback {
	if isFloat {
		return func(_ plugin.Scope, a []value.Value) (value.Value, error) { return value.OfFloat(a[0].Float() + a[1].Float()), nil }
	}
	return func(_ plugin.Scope, a []value.Value) (value.Value, error) { return value.OfInt(a[0].Int() + a[1].Int()), nil }
}

func subCb(isFloat bool) plugin.Callback {
	if isFloat {
		return func(_ plugin.Scope, a []value.Value) (value.Value, error) { return value.OfFloat(a[0].Float() - a[1].Float()), nil }
	}
	return func(_ plugin.Scope, a []value.Value) (value.Value, error) { return value.OfInt(a[0].Int() - a[1].Int()), nil }
}

func mulCb(isFloat bool) plugin.Callback {
	if isFloat {
		return func(_ plugin.Scope, a []value.Value) (value.Value, error) { return value.OfFloat(a[0].Float() * a[1].Float()), nil }
	}
	return func(_ plugin.Scope, a []value.Value) (value.Value, error) { return value.OfInt(a[0].Int() * a[1].Int()), nil }
}

func divCb(isFloat bool) plugin.Callback {
	if isFloat {
		return func(_ plugin.Scope, a []value.Value) (value.Value, error) {
			return value.OfFloat(a[0].Float() / a[1].Float()), nil
		}
	}
	return func(_ plugin.Scope, a []value.Value) (value.Value, error) {
		if a[1].Int() == 0 {
			return value.Value{}, DivisionByZeroError{}
		}
		return value.OfInt(a[0].Int() / a[1].Int()), nil
	}
}

func modInt(_ plugin.Scope, a []value.Value) (value.Value, error) {
	if a[1].Int() == 0 {
		return value.Value{}, DivisionByZeroError{}
	}
	return value.OfInt(a[0].Int() % a[1].Int()), nil
}

// DivisionByZeroError is returned by the Arithmetic plug-in's / and %
// callbacks for an Int divisor of zero; it surfaces as ExceptionInCallback
// at evaluation time or ExceptionInPlugin if folded at compile time
// (spec.md §7).
type DivisionByZeroError struct{}

func (DivisionByZeroError) Error() string { return "division by zero" }

package builtins

import (
	"time"

	"github.com/itchyny/timefmt-go"

	"xpr/format"
	"xpr/plugin"
	"xpr/value"
)

// DateTime implements Now(), the Days/Hours/Minutes duration constructors,
// and Format(t, layout), grounded on original_source's built-in date/time
// plugin (original_source/src/alib/expressions/plugins/calendar.cpp).
// DateTime values box a time.Time, Duration values a time.Duration, in the
// Value's pointer payload.
type DateTime struct{ plugin.Base }

func NewDateTime() *DateTime { return &DateTime{plugin.Base{PluginName: "DateTime"}} }

func (p *DateTime) TryCompileFunction(info *plugin.FunctionInfo) (*plugin.Output, bool, error) {
	switch info.Name {
	case "Now":
		if len(info.ArgTypes) != 0 {
			info.Hint = plugin.HintWrongArgumentTypes
			return nil, true, nil
		}
		// Now is never compile-time-invokable: folding it would freeze
		// "the current time" into the program forever.
		return &plugin.Output{ResultType: value.DateTime, Callback: nowCb}, true, nil

	case "Days", "Hours", "Minutes":
		if len(info.ArgTypes) != 1 || info.ArgTypes[0] != value.Int {
			info.Hint = plugin.HintWrongArgumentTypes
			return nil, true, nil
		}
		unit := time.Hour * 24
		switch info.Name {
		case "Hours":
			unit = time.Hour
		case "Minutes":
			unit = time.Minute
		}
		name := info.Name
		return &plugin.Output{
			ResultType:    value.Duration,
			Evaluable:     true,
			Callback:      durationCb(unit),
			LiteralWriter: durationWriter(name, unit),
		}, true, nil

	case "Format":
		if len(info.ArgTypes) != 2 || info.ArgTypes[0] != value.DateTime || info.ArgTypes[1] != value.String {
			info.Hint = plugin.HintWrongArgumentTypes
			return nil, true, nil
		}
		return &plugin.Output{ResultType: value.String, Evaluable: true, Callback: formatCb}, true, nil
	}
	return nil, false, nil
}

func nowCb(_ plugin.Scope, _ []value.Value) (value.Value, error) {
	return value.Of(value.DateTime, time.Now()), nil
}

func durationCb(unit time.Duration) plugin.Callback {
	return func(_ plugin.Scope, a []value.Value) (value.Value, error) {
		return value.Of(value.Duration, time.Duration(a[0].Int())*unit), nil
	}
}

// durationWriter renders a folded Duration constant back as its constructor
// call (e.g. "Days(3)") so the decompiler/normalizer don't need to know
// anything about how Duration is boxed (spec.md §4.5, ast.Literal.Display).
func durationWriter(name string, unit time.Duration) func(value.Value) string {
	return func(v value.Value) string {
		d, _ := v.Payload().(time.Duration)
		n := int64(d / unit)
		return name + "(" + format.Int(n) + ")"
	}
}

func formatCb(_ plugin.Scope, a []value.Value) (value.Value, error) {
	t, _ := a[0].Payload().(time.Time)
	layout := a[1].String()
	return value.OfString(timefmt.Format(t, layout)), nil
}

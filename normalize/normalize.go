// Package normalize renders an ast.Node back into expression source text
// (spec.md §4.5's normalizer), consuming ast.Visitor the same way the
// compiler does: each Visit* method returns a renderResult carrying the
// rendered text and the precedence of its outermost operator, so a parent
// node can decide whether its child needs parenthesizing.
package normalize

import (
	"strconv"
	"strings"

	"xpr/ast"
	"xpr/format"
	"xpr/token"
	"xpr/value"
)

// Flags is a bitfield of normalization options (spec.md §4.5/SPEC_FULL §4).
type Flags uint32

const (
	// KeepRedundantBrackets parenthesizes every binary/conditional
	// subexpression regardless of whether precedence would require it.
	KeepRedundantBrackets Flags = 1 << iota
	// CompactSpacing omits the space around binary operators and after
	// commas; the default inserts single spaces, matching typical
	// hand-written expressions.
	CompactSpacing
	// VerbalOperators renders a symbolic operator using its registered
	// alphabetic alias (e.g. "&&" -> "and") when the operator table
	// defines one, instead of the symbol.
	VerbalOperators
	// ForceHexadecimal/ForceOctal/ForceBinary/ForceScientific render every
	// integer/float literal in that base/notation regardless of how it was
	// originally spelled, overriding KeepOriginalFormat if both are set.
	ForceHexadecimal
	ForceOctal
	ForceBinary
	ForceScientific
	// KeepOriginalFormat reproduces a Literal's original spelling (its
	// Hint) instead of always rendering plain decimal.
	KeepOriginalFormat
	// UpperIdentifiers/LowerIdentifiers rewrite identifier and function
	// names to the given case; the two are mutually exclusive, and
	// UpperIdentifiers wins if both are set.
	UpperIdentifiers
	LowerIdentifiers
	// ReplaceAliasOperators renders a binary operator using the symbol the
	// source actually wrote (ast.BinaryOp.OriginalSymbol) when a plug-in
	// rewrote it during compilation (spec.md §4.3.2, e.g. a single "&"
	// rewritten to "&&"), instead of the rewritten symbol the compiler
	// settled on. Has no effect on a BinaryOp that was never rewritten.
	ReplaceAliasOperators
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Normalizer renders AST nodes to source text under a fixed set of Flags
// and an OperatorTable (needed for precedence-aware bracket elision and
// for VerbalOperators' alias lookup).
type Normalizer struct {
	Flags Flags
	Table *token.OperatorTable

	verbalBinary map[string]string
	verbalUnary  map[string]string
}

// New creates a Normalizer. table may be nil, in which case every binary
// operator has the same precedence (a binary right operand is bracketed, a
// binary left operand is not) and VerbalOperators never substitutes anything.
func New(flags Flags, table *token.OperatorTable) *Normalizer {
	n := &Normalizer{Flags: flags, Table: table}
	if table != nil {
		n.verbalBinary = reverse(table.AlphaBinaryAliases)
		n.verbalUnary = reverse(table.AlphaUnaryAliases)
	}
	return n
}

func reverse(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for alias, symbol := range m {
		if _, dup := out[symbol]; !dup {
			out[symbol] = alias
		}
	}
	return out
}

// renderResult is what every Visit* method actually returns, smuggled
// through ast.Visitor's `any` return type.
type renderResult struct {
	text string
	prec int
}

// Normalize renders root as a complete expression string.
func (n *Normalizer) Normalize(root ast.Node) string {
	r := n.render(root)
	return r.text
}

func (n *Normalizer) render(node ast.Node) renderResult {
	r, _ := node.Accept(n).(renderResult)
	return r
}

const (
	precAtom       = 1 << 20
	precConditional = -1
)

func (n *Normalizer) op(sym string) string {
	if n.Flags.has(VerbalOperators) {
		if alias, ok := n.verbalBinary[sym]; ok {
			return alias
		}
		if alias, ok := n.verbalUnary[sym]; ok {
			return alias
		}
	}
	return sym
}

func (n *Normalizer) precedenceOf(sym string) int {
	if n.Table == nil {
		return 0
	}
	if p, ok := n.Table.BinaryPrecedence[sym]; ok {
		return p
	}
	return 0
}

func (n *Normalizer) space() string {
	if n.Flags.has(CompactSpacing) {
		return ""
	}
	return " "
}

// wrap parenthesizes child's text if its precedence is lower than
// parentPrec requires, or, for any non-atomic child, under
// KeepRedundantBrackets.
func (n *Normalizer) wrap(child renderResult, parentPrec int, forceBracket bool) string {
	if (n.Flags.has(KeepRedundantBrackets) && child.prec != precAtom) || forceBracket || child.prec < parentPrec {
		return "(" + child.text + ")"
	}
	return child.text
}

func (n *Normalizer) VisitLiteral(lit *ast.Literal) any {
	if lit.Display != "" {
		return renderResult{text: lit.Display, prec: precAtom}
	}
	return renderResult{text: n.renderValue(lit.Value, lit.Hint), prec: precAtom}
}

func (n *Normalizer) renderValue(v value.Value, hint ast.NumberFormat) string {
	switch v.Type() {
	case value.Bool:
		return strconv.FormatBool(v.Bool())
	case value.Int:
		return n.renderInt(v.Int(), hint)
	case value.Float:
		return n.renderFloat(v.Float(), hint)
	case value.String:
		return format.QuoteString(v.String())
	default:
		return v.GoString()
	}
}

func (n *Normalizer) renderInt(i int64, hint ast.NumberFormat) string {
	switch {
	case n.Flags.has(ForceHexadecimal):
		return format.Hex(i)
	case n.Flags.has(ForceOctal):
		return format.Octal(i)
	case n.Flags.has(ForceBinary):
		return format.Binary(i)
	case n.Flags.has(KeepOriginalFormat):
		switch hint {
		case ast.NFHexadecimal:
			return format.Hex(i)
		case ast.NFOctal:
			return format.Octal(i)
		case ast.NFBinary:
			return format.Binary(i)
		}
	}
	return format.Int(i)
}

func (n *Normalizer) renderFloat(f float64, hint ast.NumberFormat) string {
	if n.Flags.has(ForceScientific) || (n.Flags.has(KeepOriginalFormat) && hint == ast.NFScientific) {
		return format.Scientific(f)
	}
	return format.Float(f)
}

func (n *Normalizer) VisitIdentifier(id *ast.Identifier) any {
	return renderResult{text: n.renderName(id.Name), prec: precAtom}
}

func (n *Normalizer) renderName(name string) string {
	switch {
	case n.Flags.has(UpperIdentifiers):
		return strings.ToUpper(name)
	case n.Flags.has(LowerIdentifiers):
		return strings.ToLower(name)
	default:
		return name
	}
}

func (n *Normalizer) VisitFunction(fn *ast.Function) any {
	args := make([]string, len(fn.Args))
	for i, a := range fn.Args {
		args[i] = n.render(a).text
	}
	sep := "," + n.space()
	return renderResult{text: n.renderName(fn.Name) + "(" + strings.Join(args, sep) + ")", prec: precAtom}
}

func (n *Normalizer) VisitUnaryOp(u *ast.UnaryOp) any {
	operand := n.render(u.Operand)
	sym := n.op(u.Symbol)
	sep := ""
	if len(sym) > 0 && (sym[0] >= 'a' && sym[0] <= 'z' || sym[0] >= 'A' && sym[0] <= 'Z') {
		sep = " "
	}
	text := sym + sep + n.wrap(operand, precAtom, operand.prec == precConditional)
	return renderResult{text: text, prec: precAtom}
}

func (n *Normalizer) VisitBinaryOp(b *ast.BinaryOp) any {
	if b.Symbol == "[]" {
		lhs := n.render(b.LHS)
		rhs := n.render(b.RHS)
		return renderResult{text: n.wrap(lhs, precAtom, false) + "[" + rhs.text + "]", prec: precAtom}
	}
	prec := n.precedenceOf(b.Symbol)
	lhs := n.render(b.LHS)
	rhs := n.render(b.RHS)
	sp := n.space()
	displaySymbol := b.Symbol
	if n.Flags.has(ReplaceAliasOperators) && b.OriginalSymbol != "" {
		displaySymbol = b.OriginalSymbol
	}
	text := n.wrap(lhs, prec, false) + sp + n.op(displaySymbol) + sp + n.wrap(rhs, prec+1, false)
	return renderResult{text: text, prec: prec}
}

func (n *Normalizer) VisitConditional(c *ast.Conditional) any {
	q := n.render(c.Q)
	t := n.render(c.T)
	f := n.render(c.F)
	sp := n.space()
	text := n.wrap(q, 0, false) + sp + "?" + sp + n.wrap(t, 0, false) + sp + ":" + sp + n.wrap(f, 0, false)
	return renderResult{text: text, prec: precConditional}
}

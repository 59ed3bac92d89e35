// Package xprerr implements the single exception family described in
// spec.md §7: one error kind per parse/compile/nested-expression/runtime
// condition, each carrying a chain of ExpressionInfo entries that the
// compiler and VM append as the error crosses their boundary.
package xprerr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind enumerates every exception kind named in spec.md §7.
type Kind int

const (
	// Parse
	EmptyExpressionString Kind = iota
	SyntaxErrorKind
	SyntaxErrorExpectationKind
	UnknownUnaryOperatorSymbol
	UnknownBinaryOperatorSymbol

	// Compile
	UnknownIdentifier
	UnknownFunction
	FunctionHint
	UnaryOperatorNotDefined
	BinaryOperatorNotDefined
	MissingFunctionParentheses
	IdentifierWithFunctionParentheses
	IncompatibleTypesInConditional
	ExceptionInPlugin

	// Nested expressions
	NamedExpressionNotConstant
	NamedExpressionNotFound
	NestedExpressionNotFoundCT
	NestedExpressionCallArgumentMismatch
	NestedExpressionNotFoundET
	NestedExpressionResultTypeError
	CircularNestedExpressions

	// Runtime
	ExceptionInCallback
	WhenEvaluatingNestedExpression
)

func (k Kind) String() string {
	names := [...]string{
		"EmptyExpressionString", "SyntaxError", "SyntaxErrorExpectation",
		"UnknownUnaryOperatorSymbol", "UnknownBinaryOperatorSymbol",
		"UnknownIdentifier", "UnknownFunction", "FunctionHint",
		"UnaryOperatorNotDefined", "BinaryOperatorNotDefined",
		"MissingFunctionParentheses", "IdentifierWithFunctionParentheses",
		"IncompatibleTypesInConditional", "ExceptionInPlugin",
		"NamedExpressionNotConstant", "NamedExpressionNotFound",
		"NestedExpressionNotFoundCT", "NestedExpressionCallArgumentMismatch",
		"NestedExpressionNotFoundET", "NestedExpressionResultTypeError",
		"CircularNestedExpressions",
		"ExceptionInCallback", "WhenEvaluatingNestedExpression",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Expectation enumerates the specific "expected X" syntax errors of
// spec.md §4.2.
type Expectation int

const (
	ExpectNone Expectation = iota
	ExpectClosingParen
	ExpectClosingBracket
	ExpectClosingQuote
	ExpectColon
	ExpectOperand
	ExpectExpression
	ExpectEndOfInput
)

// ExpressionInfo decorates an error with the full expression text and the
// position within it where the error was detected, per spec.md §7.
type ExpressionInfo struct {
	Text     string
	Position int
}

// Error is the single exception type of spec.md §7. It wraps an optional
// cause (via github.com/pkg/errors, preserving a stack trace) and carries
// the chain of ExpressionInfo entries appended as it unwinds through the
// compiler and VM.
type Error struct {
	Kind        Kind
	Expectation Expectation
	Message     string
	Position    int
	Chain       []ExpressionInfo
	cause       error
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", e.Kind, e.Message)
	if e.cause != nil {
		fmt.Fprintf(&sb, ": %s", e.cause)
	}
	for _, info := range e.Chain {
		fmt.Fprintf(&sb, "\n  in %q at position %d", info.Text, info.Position)
	}
	return sb.String()
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// WithExpressionInfo appends an ExpressionInfo entry to an *Error and returns
// it, enabling `return xprerr.WithExpressionInfo(err, text, pos)` at each
// package boundary the error crosses (spec.md §7). Any other error is wrapped
// into a new ExceptionInPlugin *Error, which is returned without an
// ExpressionInfo entry.
func WithExpressionInfo(err error, text string, position int) error {
	var e *Error
	if errors.As(err, &e) {
		e.Chain = append(e.Chain, ExpressionInfo{Text: text, Position: position})
		return e
	}
	return New(ExceptionInPlugin, position, err.Error()).wrap(err)
}

// New constructs a bare Error of the given kind.
func New(kind Kind, position int, message string) *Error {
	return &Error{Kind: kind, Position: position, Message: message}
}

func (e *Error) wrap(cause error) *Error {
	e.cause = errors.WithStack(cause)
	return e
}

// NewSyntaxError builds a SyntaxError at position.
func NewSyntaxError(position int, message string) *Error {
	return New(SyntaxErrorKind, position, message)
}

// NewSyntaxErrorExpectation builds a SyntaxErrorExpectation carrying what
// was expected.
func NewSyntaxErrorExpectation(position int, exp Expectation, message string) *Error {
	e := New(SyntaxErrorExpectationKind, position, message)
	e.Expectation = exp
	return e
}

// Wrap wraps a non-xpr error (e.g. a panic recovered from a plug-in or
// callback) into the given kind, unless fallThrough is set, in which case
// the original error is returned unchanged — spec.md §4.3.6 and §4.4's
// PluginExceptionFallThrough / CallbackExceptionFallThrough options.
func Wrap(kind Kind, position int, cause error, fallThrough bool) error {
	if cause == nil {
		return nil
	}
	if fallThrough {
		return cause
	}
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return New(kind, position, cause.Error()).wrap(cause)
}

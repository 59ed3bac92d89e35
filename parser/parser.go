// Package parser builds an AST from a token stream using operator-precedence
// climbing plus special forms for the conditional, subscript and function-call
// productions, per spec.md §4.2.
//
// Grammar (mutually recursive):
//
//	Conditional -> Binary ( '?' Conditional ':' Conditional )?
//	Binary      -> Simple ( binaryOp Binary )*     -- precedence climbing
//	Simple      -> '(' Conditional ')'
//	             | unaryOp Simple
//	             | literal | identifier | identifier '(' args ')'
//	Simple is followed, zero or more times, by a Subscript: '[' Conditional ']'.
package parser

import (
	"xpr/ast"
	"xpr/lexer"
	"xpr/token"
	"xpr/value"
	"xpr/xprerr"
)

// Parser turns a token stream into an AST. It pulls tokens from the lexer
// one at a time and keeps a small pushback queue for the cases where a
// multi-character symbolic token must be split into an operator prefix and
// an unconsumed suffix (spec.md §4.2). Go's own call stack plays the role
// spec.md §4.2 assigns to "a small explicit operand stack": recursive
// descent keeps partial results alive across nested productions without
// any additional bookkeeping, so no separate stack type is introduced here.
type Parser struct {
	lex     *lexer.Lexer
	table   *token.OperatorTable
	pending []token.Token
	cur     token.Token
	src     string
}

// New creates a Parser over src using table for operator recognition.
func New(src string, table *token.OperatorTable) (*Parser, error) {
	p := &Parser{lex: lexer.New(src, table), table: table, src: src}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse parses the whole expression and requires that nothing but EOT
// follows it.
func (p *Parser) Parse() (ast.Node, error) {
	if p.cur.Kind == token.EOT {
		return nil, xprerr.New(xprerr.EmptyExpressionString, 0, "expression string is empty")
	}
	node, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if p.cur.Kind != token.EOT {
		return nil, xprerr.NewSyntaxErrorExpectation(p.cur.Position, xprerr.ExpectEndOfInput,
			"unexpected trailing input after expression")
	}
	return node, nil
}

// advance discards the current token and pulls the next one, preferring
// anything queued in pending (from a prior split) over the lexer.
func (p *Parser) advance() error {
	if n := len(p.pending); n > 0 {
		p.cur = p.pending[n-1]
		p.pending = p.pending[:n-1]
		return nil
	}
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *Parser) pushBack(tok token.Token) {
	p.pending = append(p.pending, tok)
}

// --- Conditional -------------------------------------------------------

func (p *Parser) parseConditional() (ast.Node, error) {
	q, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if !(p.cur.Kind == token.SymbolicOp && p.cur.Text == "?") {
		return q, nil
	}
	qmark := p.cur.Position
	if err := p.advance(); err != nil {
		return nil, err
	}
	t, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if !(p.cur.Kind == token.SymbolicOp && p.cur.Text == ":") {
		return nil, xprerr.NewSyntaxErrorExpectation(p.cur.Position, xprerr.ExpectColon,
			"expected ':' in conditional expression")
	}
	colon := p.cur.Position
	if err := p.advance(); err != nil {
		return nil, err
	}
	f, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	return &ast.Conditional{Q: q, T: t, F: f, QMarkPos: qmark, ColonPos: colon}, nil
}

// --- Binary (precedence climbing) --------------------------------------

func (p *Parser) parseBinary(minPrec int) (ast.Node, error) {
	left, err := p.parseSubscriptChain()
	if err != nil {
		return nil, err
	}
	for {
		sym, prec, pos, ok, err := p.getBinaryOp()
		if err != nil {
			return nil, err
		}
		if !ok || prec < minPrec {
			break
		}
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Symbol: sym, LHS: left, RHS: right, Position: pos}
	}
	return left, nil
}

// getBinaryOp peeks at the current token and, if it denotes a registered
// binary operator, consumes it (possibly splitting a multi-character
// symbolic token into a binary prefix plus an unexpected suffix, per
// spec.md §4.2) and returns its symbol, precedence and position.
func (p *Parser) getBinaryOp() (symbol string, prec int, pos int, ok bool, err error) {
	switch p.cur.Kind {
	case token.AlphaBinOp:
		symbol = p.cur.Text
		prec, ok = p.table.BinaryPrecedence[symbol]
		if !ok {
			return "", 0, 0, false, xprerr.New(xprerr.UnknownBinaryOperatorSymbol, p.cur.Position,
				"alphabetic alias resolved to unregistered binary operator "+symbol)
		}
		pos = p.cur.Position
		return symbol, prec, pos, true, p.advance()

	case token.SymbolicOp:
		text := p.cur.Text
		for n := len(text); n >= 1; n-- {
			candidate := text[:n]
			if candidate == "?" || candidate == ":" {
				// Reserved for the ternary special form.
				continue
			}
			sym := candidate
			pr, found := p.table.BinaryPrecedence[candidate]
			if !found {
				// A symbolic alias such as "=" -> "==" (AliasEqualsWithAssign).
				if target, aliased := p.table.AlphaBinaryAliases[candidate]; aliased {
					sym = target
					pr, found = p.table.BinaryPrecedence[target]
				}
			}
			if !found {
				continue
			}
			pos = p.cur.Position
			remainder := text[n:]
			origPos := p.cur.Position
			if remainder != "" {
				p.pushBack(token.Token{Kind: token.SymbolicOp, Position: origPos + n, Length: len(remainder), Text: remainder})
			}
			if err := p.advance(); err != nil {
				return "", 0, 0, false, err
			}
			return sym, pr, pos, true, nil
		}
		return "", 0, 0, false, nil

	default:
		return "", 0, 0, false, nil
	}
}

// getUnaryOp peeks at the current token and, if it denotes a registered
// unary operator, consumes the shortest matching prefix (so "!!x" parses
// as "!(!x)") and returns its symbol and position.
func (p *Parser) getUnaryOp() (symbol string, pos int, ok bool, err error) {
	switch p.cur.Kind {
	case token.AlphaUnOp:
		symbol = p.cur.Text
		pos = p.cur.Position
		return symbol, pos, true, p.advance()

	case token.SymbolicOp:
		text := p.cur.Text
		for n := 1; n <= len(text); n++ {
			candidate := text[:n]
			if !p.isUnaryOp(candidate) {
				continue
			}
			pos = p.cur.Position
			remainder := text[n:]
			origPos := p.cur.Position
			if remainder != "" {
				p.pushBack(token.Token{Kind: token.SymbolicOp, Position: origPos + n, Length: len(remainder), Text: remainder})
			}
			if err := p.advance(); err != nil {
				return "", 0, false, err
			}
			return candidate, pos, true, nil
		}
		return "", 0, false, nil

	default:
		return "", 0, false, nil
	}
}

func (p *Parser) isUnaryOp(sym string) bool {
	for _, op := range p.table.UnaryOps {
		if op == sym {
			return true
		}
	}
	return false
}

// --- Simple + Subscript --------------------------------------------------

func (p *Parser) parseSubscriptChain() (ast.Node, error) {
	node, err := p.parseSimple()
	if err != nil {
		return nil, err
	}
	for p.table.AllowSubscript && p.cur.Kind == token.LBracket {
		pos := p.cur.Position
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseConditional()
		if err != nil {
			return nil, err
		}
		if p.cur.Kind != token.RBracket {
			return nil, xprerr.NewSyntaxErrorExpectation(p.cur.Position, xprerr.ExpectClosingBracket,
				"expected closing ']'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		node = &ast.BinaryOp{Symbol: "[]", LHS: node, RHS: inner, Position: pos}
	}
	return node, nil
}

func (p *Parser) parseSimple() (ast.Node, error) {
	if sym, pos, ok, err := p.getUnaryOp(); err != nil {
		return nil, err
	} else if ok {
		operand, err := p.parseSimple()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Symbol: sym, Operand: operand, Position: pos}, nil
	}

	switch p.cur.Kind {
	case token.LParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseConditional()
		if err != nil {
			return nil, err
		}
		if p.cur.Kind != token.RParen {
			return nil, xprerr.NewSyntaxErrorExpectation(p.cur.Position, xprerr.ExpectClosingParen,
				"expected closing ')'")
		}
		return inner, p.advance()

	case token.LitInteger:
		n := &ast.Literal{Value: value.OfInt(p.cur.IntValue), Position: p.cur.Position, Hint: ast.NumberFormat(p.cur.NumFormat)}
		return n, p.advance()

	case token.LitFloat:
		n := &ast.Literal{Value: value.OfFloat(p.cur.FloatValue), Position: p.cur.Position, Hint: ast.NumberFormat(p.cur.NumFormat)}
		return n, p.advance()

	case token.LitString:
		n := &ast.Literal{Value: value.OfString(p.cur.StringValue), Position: p.cur.Position}
		return n, p.advance()

	case token.Identifier:
		name := p.cur.Text
		pos := p.cur.Position
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != token.LParen {
			return &ast.Identifier{Name: name, Position: pos}, nil
		}
		return p.parseFunctionArgs(name, pos)

	case token.EOT:
		return nil, xprerr.NewSyntaxErrorExpectation(p.cur.Position, xprerr.ExpectOperand,
			"unexpected end of input, expected an operand")

	default:
		return nil, xprerr.NewSyntaxErrorExpectation(p.cur.Position, xprerr.ExpectExpression,
			"expected an expression")
	}
}

func (p *Parser) parseFunctionArgs(name string, pos int) (ast.Node, error) {
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	var args []ast.Node
	if p.cur.Kind != token.RParen {
		for {
			if p.cur.Kind == token.Comma || p.cur.Kind == token.RParen || p.cur.Kind == token.EOT {
				return nil, xprerr.NewSyntaxErrorExpectation(p.cur.Position, xprerr.ExpectExpression,
					"expected an expression in argument list")
			}
			arg, err := p.parseConditional()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.cur.Kind == token.Comma {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if p.cur.Kind != token.RParen {
		return nil, xprerr.NewSyntaxErrorExpectation(p.cur.Position, xprerr.ExpectClosingParen,
			"expected closing ')' of function call")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ast.Function{Name: name, Args: args, Position: pos}, nil
}

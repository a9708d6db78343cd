package ir

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// ErrParse is the sentinel wrapped by all surface-syntax errors.
var ErrParse = errors.New("parse error")

func parseErrorf(line, col int, format string, args ...interface{}) error {
	return errors.WithMessagef(errors.WithMessagef(ErrParse, format, args...), "%d:%d", line, col)
}

// parser is a single-token-lookahead recursive descent parser for the
// statement grammar:
//
//	block     := statement*
//	statement := ("let" ident ("," ident)* "=")? expression ";"
//	expression := "const" number | ident ident*
type parser struct {
	lex *lexer
	cur token
}

// Parse parses source text into a block over string-named variables.
// Parsing halts at the first error.
func Parse(src string) (Block[string], error) {
	p := &parser{lex: newLexer(src)}
	if err := p.bump(); err != nil {
		return Block[string]{}, err
	}
	var b Block[string]
	for p.cur.kind != tokenEOF {
		s, err := p.statement()
		if err != nil {
			return Block[string]{}, err
		}
		b.Statements = append(b.Statements, s)
	}
	return b, nil
}

func (p *parser) bump() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

// expect consumes the current token if it has the given kind.
func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.cur
	if tok.kind != kind {
		return token{}, parseErrorf(tok.line, tok.col, "expected %s, found %s", kind, tok)
	}
	return tok, p.bump()
}

func (p *parser) statement() (Statement[string], error) {
	var s Statement[string]

	if p.cur.kind == tokenLet {
		if err := p.bump(); err != nil {
			return s, err
		}
		for {
			id, err := p.expect(tokenIdent)
			if err != nil {
				return s, err
			}
			s.Results = append(s.Results, id.text)
			if p.cur.kind != tokenComma {
				break
			}
			if err := p.bump(); err != nil {
				return s, err
			}
		}
		if _, err := p.expect(tokenEq); err != nil {
			return s, err
		}
	}

	e, err := p.expression()
	if err != nil {
		return s, err
	}
	s.Expr = e

	_, err = p.expect(tokenSemi)
	return s, err
}

func (p *parser) expression() (Expression[string], error) {
	switch p.cur.kind {
	case tokenConst:
		if err := p.bump(); err != nil {
			return Expression[string]{}, err
		}
		lit, err := p.expect(tokenNumber)
		if err != nil {
			return Expression[string]{}, err
		}
		value, err := uint256.FromDecimal(lit.text)
		if err != nil {
			return Expression[string]{}, parseErrorf(lit.line, lit.col, "bad literal %q", lit.text)
		}
		return ConstExpr[string](value), nil

	case tokenIdent:
		op := p.cur.text
		if err := p.bump(); err != nil {
			return Expression[string]{}, err
		}
		e := Expression[string]{Op: op}
		for p.cur.kind == tokenIdent {
			e.Args = append(e.Args, p.cur.text)
			if err := p.bump(); err != nil {
				return Expression[string]{}, err
			}
		}
		return e, nil

	default:
		return Expression[string]{}, parseErrorf(p.cur.line, p.cur.col, "expected expression, found %s", p.cur)
	}
}

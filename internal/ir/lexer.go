package ir

import "fmt"

type tokenKind byte

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenLet
	tokenConst
	tokenEq
	tokenComma
	tokenSemi
)

// String implements fmt.Stringer.
func (t tokenKind) String() string {
	switch t {
	case tokenEOF:
		return "end of input"
	case tokenIdent:
		return "identifier"
	case tokenNumber:
		return "number"
	case tokenLet:
		return "let"
	case tokenConst:
		return "const"
	case tokenEq:
		return "="
	case tokenComma:
		return ","
	case tokenSemi:
		return ";"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	line, col int
}

func (t token) String() string {
	switch t.kind {
	case tokenIdent, tokenNumber:
		return fmt.Sprintf("%s %q", t.kind, t.text)
	default:
		return t.kind.String()
	}
}

// lexer produces tokens from source text one at a time. Positions are
// 1-based line/column pairs used only for error messages.
type lexer struct {
	src       string
	pos       int
	line, col int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func isLetter(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isAlnum(c byte) bool {
	return isLetter(c) || isDigit(c)
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\r', '\n':
			l.advance()
		default:
			return
		}
	}
}

// next returns the next token, or an ErrParse-wrapped error on an input byte
// that cannot begin any token.
func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokenEOF, line: l.line, col: l.col}, nil
	}

	tok := token{line: l.line, col: l.col}
	start := l.pos
	c := l.src[l.pos]

	switch {
	case isLetter(c):
		for l.pos < len(l.src) && isAlnum(l.src[l.pos]) {
			l.advance()
		}
		tok.text = l.src[start:l.pos]
		switch tok.text {
		case "let":
			tok.kind = tokenLet
		case "const":
			tok.kind = tokenConst
		default:
			tok.kind = tokenIdent
		}
	case isDigit(c):
		// Like identifiers, literals consume a full alphanumeric run; "0x" or
		// "12ab" is rejected when the literal is parsed, not silently split.
		for l.pos < len(l.src) && isAlnum(l.src[l.pos]) {
			l.advance()
		}
		tok.kind = tokenNumber
		tok.text = l.src[start:l.pos]
	case c == '=':
		l.advance()
		tok.kind = tokenEq
	case c == ',':
		l.advance()
		tok.kind = tokenComma
	case c == ';':
		l.advance()
		tok.kind = tokenSemi
	default:
		return token{}, parseErrorf(tok.line, tok.col, "unexpected character %q", c)
	}
	return tok, nil
}

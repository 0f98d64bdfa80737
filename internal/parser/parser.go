// Package parser compiles the surface set-algebra expression language
// (spec §4.1) into the ir package's Compiled Query.
package parser

import (
	"strconv"

	"github.com/milkydeferwm/pagelist-bot/internal/ir"
)

// Parse compiles a surface expression string into a validated,
// register-allocated ir.Query. It never returns partial IR: any syntax or
// semantic violation fails the whole compile.
func Parse(src string) (*ir.Query, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parserState{toks: toks}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, &ParseError{Pos: p.cur().pos, Msg: "trailing input after expression"}
	}
	return toIR(expr)
}

func tokenize(src string) ([]token, error) {
	l := newLexer(src)
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

type parserState struct {
	toks []token
	pos  int
}

func (p *parserState) cur() token { return p.toks[p.pos] }

func (p *parserState) atEOF() bool { return p.cur().kind == tokEOF }

func (p *parserState) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parserState) expect(k tokenKind, what string) (token, error) {
	if p.cur().kind != k {
		return token{}, &ParseError{Pos: p.cur().pos, Msg: "expected " + what}
	}
	return p.advance(), nil
}

// parseExpr := postfix (binOp postfix)*, left associative, uniform
// precedence: `&`, `|`, `-`, `^` bind equally and evaluate left to right.
func (p *parserState) parseExpr() (Expr, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch p.cur().kind {
		case tokAmp:
			op = OpAnd
		case tokPipe:
			op = OpOr
		case tokMinus:
			op = OpExclude
		case tokCaret:
			op = OpXor
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
}

// parsePostfix := primary ('.' constraintCall)*
func (p *parserState) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	var frags []constraintFragment
	for p.cur().kind == tokDot {
		p.advance()
		frag, err := p.parseConstraintCall()
		if err != nil {
			return nil, err
		}
		frags = append(frags, frag)
	}
	if len(frags) == 0 {
		return e, nil
	}
	return &ConstrainedExpr{Expr: e, Constraints: frags}, nil
}

func (p *parserState) parsePrimary() (Expr, error) {
	tok := p.cur()
	if tok.kind == tokLParen {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	}
	if tok.kind != tokIdent {
		return nil, &ParseError{Pos: tok.pos, Msg: "expected expression"}
	}

	switch tok.text {
	case "page":
		return p.parsePageLit()
	case "link":
		return p.parseUnaryCall(OpLink)
	case "linkto":
		return p.parseUnaryCall(OpLinkTo)
	case "embeddedin":
		return p.parseUnaryCall(OpEmbeddedIn)
	case "incat":
		return p.parseUnaryCall(OpInCategory)
	case "toggle":
		return p.parseUnaryCall(OpToggle)
	case "prefix":
		return p.parseUnaryCall(OpPrefix)
	default:
		return nil, &ParseError{Pos: tok.pos, Msg: "unknown operator " + tok.text}
	}
}

func (p *parserState) parsePageLit() (Expr, error) {
	p.advance() // "page"
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	var titles []string
	for {
		str, err := p.expect(tokString, "page title string")
		if err != nil {
			return nil, err
		}
		titles = append(titles, str.text)
		if p.cur().kind == tokComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return &PageExpr{Titles: titles}, nil
}

func (p *parserState) parseUnaryCall(op UnaryOp) (Expr, error) {
	p.advance() // operator name
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	inner, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return &UnaryExpr{Op: op, Expr: inner}, nil
}

func (p *parserState) parseConstraintCall() (constraintFragment, error) {
	name, err := p.expect(tokIdent, "constraint name")
	if err != nil {
		return constraintFragment{}, err
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return constraintFragment{}, err
	}
	var frag constraintFragment
	frag.kind = name.text

	switch name.text {
	case "ns":
		for {
			n, err := p.parseSignedInt()
			if err != nil {
				return constraintFragment{}, err
			}
			frag.ns = append(frag.ns, ir.NamespaceID(n))
			if p.cur().kind == tokComma {
				p.advance()
				continue
			}
			break
		}
	case "depth", "limit":
		n, err := p.parseSignedInt()
		if err != nil {
			return constraintFragment{}, err
		}
		frag.num = n
	case "redir":
		ident, err := p.expect(tokIdent, "redirect strategy")
		if err != nil {
			return constraintFragment{}, err
		}
		switch ident.text {
		case "all":
			frag.redir = ir.RedirectAll
		case "noredirect":
			frag.redir = ir.RedirectNoRedirect
		case "onlyredirect":
			frag.redir = ir.RedirectOnlyRedirect
		default:
			return constraintFragment{}, &ParseError{Pos: ident.pos, Msg: "unknown redirect strategy " + ident.text}
		}
	case "directlink", "resolveredir":
		ident, err := p.expect(tokIdent, "boolean literal")
		if err != nil {
			return constraintFragment{}, err
		}
		switch ident.text {
		case "true":
			frag.flag = true
		case "false":
			frag.flag = false
		default:
			return constraintFragment{}, &ParseError{Pos: ident.pos, Msg: "expected true or false"}
		}
	default:
		return constraintFragment{}, &ParseError{Pos: name.pos, Msg: "unknown constraint " + name.text}
	}

	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return constraintFragment{}, err
	}
	return frag, nil
}

func (p *parserState) parseSignedInt() (int, error) {
	neg := false
	if p.cur().kind == tokMinus {
		neg = true
		p.advance()
	}
	tok, err := p.expect(tokNumber, "number")
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(tok.text)
	if convErr != nil {
		return 0, &ParseError{Pos: tok.pos, Msg: "malformed number " + tok.text}
	}
	if neg {
		n = -n
	}
	return n, nil
}

package kpi

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Formula grammar:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = "-" unary | factor
//	factor = number | ident | "(" expr ")"
//
// Identifiers are matched case-insensitively against the variables passed to
// eval. Nothing else is callable.

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrNonFinite      = errors.New("result is not a finite number")
)

// UnknownIdentifierError is returned for identifiers outside the variable set.
type UnknownIdentifierError struct {
	Name string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown identifier %q", e.Name)
}

// FormulaVariables lists the identifiers a formula may reference.
var FormulaVariables = []string{"total_findings", "unique_hosts", "high_severity"}

type expr interface {
	eval(vars map[string]float64) (float64, error)
}

type numberExpr float64

func (n numberExpr) eval(map[string]float64) (float64, error) { return float64(n), nil }

type identExpr string

func (id identExpr) eval(vars map[string]float64) (float64, error) {
	v, ok := vars[string(id)]
	if !ok {
		return 0, &UnknownIdentifierError{Name: string(id)}
	}
	return v, nil
}

type negExpr struct{ x expr }

func (n negExpr) eval(vars map[string]float64) (float64, error) {
	v, err := n.x.eval(vars)
	return -v, err
}

type binaryExpr struct {
	op   byte
	l, r expr
}

func (b binaryExpr) eval(vars map[string]float64) (float64, error) {
	l, err := b.l.eval(vars)
	if err != nil {
		return 0, err
	}
	r, err := b.r.eval(vars)
	if err != nil {
		return 0, err
	}

	var v float64
	switch b.op {
	case '+':
		v = l + r
	case '-':
		v = l - r
	case '*':
		v = l * r
	case '/':
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		v = l / r
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNonFinite
	}
	return v, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case strings.ContainsRune("+-*/", c):
			toks = append(toks, token{tokOp, string(c), i})
			i++
		case unicode.IsDigit(c) || c == '.':
			start := i
			for i < len(src) && (unicode.IsDigit(rune(src[i])) || src[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, src[start:i], start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(src) && (unicode.IsLetter(rune(src[i])) || unicode.IsDigit(rune(src[i])) || src[i] == '_') {
				i++
			}
			toks = append(toks, token{tokIdent, strings.ToLower(src[start:i]), start})
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

type formulaParser struct {
	toks []token
	pos  int
}

// parseFormula compiles src. Identifiers are checked against FormulaVariables
// here so that a bad name fails once, at compile time.
func parseFormula(src string) (expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.New("empty formula")
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &formulaParser{toks: toks}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
	return e, nil
}

func (p *formulaParser) peek() token { return p.toks[p.pos] }

func (p *formulaParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *formulaParser) expr() (expr, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.kind == tokOp && (t.text == "+" || t.text == "-"); t = p.peek() {
		p.next()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: t.text[0], l: left, r: right}
	}
	return left, nil
}

func (p *formulaParser) term() (expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.kind == tokOp && (t.text == "*" || t.text == "/"); t = p.peek() {
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: t.text[0], l: left, r: right}
	}
	return left, nil
}

func (p *formulaParser) unary() (expr, error) {
	if t := p.peek(); t.kind == tokOp && t.text == "-" {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return negExpr{x}, nil
	}
	return p.factor()
}

func (p *formulaParser) factor() (expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at offset %d", t.text, t.pos)
		}
		return numberExpr(v), nil
	case tokIdent:
		for _, name := range FormulaVariables {
			if t.text == name {
				return identExpr(t.text), nil
			}
		}
		return nil, &UnknownIdentifierError{Name: t.text}
	case tokLParen:
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis at offset %d", closing.pos)
		}
		return e, nil
	case tokEOF:
		return nil, errors.New("unexpected end of formula")
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

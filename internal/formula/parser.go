package formula

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type resolver func(name string) (*decimal.Decimal, error)

type node interface {
	eval(resolve resolver) (*decimal.Decimal, error)
	collect(visit func(name string))
}

type literal struct{ value decimal.Decimal }

func (l literal) eval(resolver) (*decimal.Decimal, error) { return &l.value, nil }
func (l literal) collect(func(string))                    {}

type reference struct{ name string }

func (r reference) eval(resolve resolver) (*decimal.Decimal, error) { return resolve(r.name) }
func (r reference) collect(visit func(string))                      { visit(r.name) }

type unary struct{ operand node }

func (u unary) eval(resolve resolver) (*decimal.Decimal, error) {
	val, err := u.operand.eval(resolve)
	if err != nil || val == nil {
		return nil, err
	}
	neg := val.Neg()
	return &neg, nil
}
func (u unary) collect(visit func(string)) { u.operand.collect(visit) }

type binary struct {
	op          byte
	left, right node
}

func (b binary) eval(resolve resolver) (*decimal.Decimal, error) {
	left, err := b.left.eval(resolve)
	if err != nil || left == nil {
		return nil, err
	}
	right, err := b.right.eval(resolve)
	if err != nil || right == nil {
		return nil, err
	}

	var result decimal.Decimal
	switch b.op {
	case '+':
		result = left.Add(*right)
	case '-':
		result = left.Sub(*right)
	case '*':
		result = left.Mul(*right)
	case '/':
		if right.IsZero() {
			return nil, nil
		}
		result = left.Div(*right)
	}
	return &result, nil
}
func (b binary) collect(visit func(string)) {
	b.left.collect(visit)
	b.right.collect(visit)
}

type parser struct {
	input string
	pos   int
}

// parse builds an expression tree. Grammar:
//
//	expr   = term  (("+" | "-") term)*
//	term   = factor (("*" | "/") factor)*
//	factor = number | identifier | "(" expr ")" | "-" factor
func parse(expression string) (node, error) {
	p := &parser{input: expression}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.input[p.pos], p.pos)
	}
	return root, nil
}

func (p *parser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("+-")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

func (p *parser) term() (node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("*/")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

func (p *parser) factor() (node, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	c := p.input[p.pos]
	switch {
	case c == '(':
		p.pos++
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	case c == '-':
		p.pos++
		operand, err := p.factor()
		if err != nil {
			return nil, err
		}
		return unary{operand: operand}, nil
	case c >= '0' && c <= '9' || c == '.':
		return p.number()
	case isIdentStart(c):
		return p.identifier(), nil
	default:
		return nil, fmt.Errorf("unexpected %q at offset %d", c, p.pos)
	}
}

func (p *parser) number() (node, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	value, err := decimal.NewFromString(p.input[start:p.pos])
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return literal{value: value}, nil
}

func (p *parser) identifier() node {
	start := p.pos
	for p.pos < len(p.input) && isIdentPart(p.input[p.pos]) {
		p.pos++
	}
	return reference{name: p.input[start:p.pos]}
}

func (p *parser) peekOp(ops string) (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, false
	}
	c := p.input[p.pos]
	if strings.IndexByte(ops, c) < 0 {
		return 0, false
	}
	return c, true
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

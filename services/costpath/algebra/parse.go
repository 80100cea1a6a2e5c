// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algebra

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/scanner"
)

// tokPow is the synthetic token for "**".
const tokPow = -100

// Parse reads an expression such as "3*X0^2 + log(X0) - T_12".
//
// Grammar, lowest precedence first:
//
//	expr  = term { ("+" | "-") term }
//	term  = unary { ("*" | "/") unary }
//	unary = ("+" | "-") unary | power
//	power = atom [ ("^" | "**") unary ]
//	atom  = number | ident | ident "(" expr ")" | "(" expr ")"
//
// Supported functions are log (alias ln) and sqrt. Exponents must be integer
// constants, or 0.5 which is read as sqrt.
func Parse(s string) (Expr, error) {
	p := &parser{}
	p.s.Init(strings.NewReader(s))
	p.s.Mode = scanner.ScanIdents | scanner.ScanFloats | scanner.ScanInts
	p.s.Error = func(_ *scanner.Scanner, msg string) {
		if p.err == nil {
			p.err = fmt.Errorf("%w: %s", ErrSyntax, msg)
		}
	}
	p.next()

	e := p.expr()
	if p.err == nil && p.tok != scanner.EOF {
		p.fail("unexpected %q", p.text)
	}
	if p.err != nil {
		return Expr{}, p.err
	}
	return e, nil
}

// MustParse is like Parse but panics on error. Intended for constants and
// tests.
func MustParse(s string) Expr {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	s    scanner.Scanner
	tok  rune
	text string
	err  error
}

func (p *parser) next() {
	p.tok = p.s.Scan()
	p.text = p.s.TokenText()
	if p.tok == '*' && p.s.Peek() == '*' {
		p.s.Next()
		p.tok = tokPow
		p.text = "**"
	}
}

func (p *parser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
	}
}

func (p *parser) expect(tok rune) {
	if p.tok != tok {
		p.fail("expected %q, found %q", string(tok), p.text)
		return
	}
	p.next()
}

func (p *parser) expr() Expr {
	e := p.term()
	for p.err == nil && (p.tok == '+' || p.tok == '-') {
		op := p.tok
		p.next()
		rhs := p.term()
		if op == '+' {
			e = Add(e, rhs)
		} else {
			e = Sub(e, rhs)
		}
	}
	return e
}

func (p *parser) term() Expr {
	e := p.unary()
	for p.err == nil && (p.tok == '*' || p.tok == '/') {
		op := p.tok
		p.next()
		rhs := p.unary()
		if op == '*' {
			e = Mul(e, rhs)
			continue
		}
		q, err := Div(e, rhs)
		if err != nil && p.err == nil {
			p.err = err
		}
		e = q
	}
	return e
}

func (p *parser) unary() Expr {
	switch p.tok {
	case '-':
		p.next()
		return Neg(p.unary())
	case '+':
		p.next()
		return p.unary()
	}
	return p.power()
}

func (p *parser) power() Expr {
	base := p.atom()
	if p.err != nil || (p.tok != '^' && p.tok != tokPow) {
		return base
	}
	p.next()
	exp := p.unary()
	if p.err != nil {
		return Expr{}
	}
	c, ok := exp.Const()
	switch {
	case !ok:
		p.err = fmt.Errorf("%w: non-constant exponent %s", ErrUnsupported, exp)
		return Expr{}
	case c == 0.5:
		return Sqrt(base)
	case c != math.Trunc(c):
		p.err = fmt.Errorf("%w: non-integer exponent %s", ErrUnsupported, exp)
		return Expr{}
	}
	out, err := Pow(base, int(c))
	if err != nil {
		p.err = err
	}
	return out
}

func (p *parser) atom() Expr {
	switch p.tok {
	case scanner.Int, scanner.Float:
		v, err := strconv.ParseFloat(p.text, 64)
		if err != nil {
			p.fail("bad number %q", p.text)
			return Expr{}
		}
		p.next()
		return Num(v)

	case scanner.Ident:
		name := p.text
		p.next()
		if p.tok != '(' {
			return Sym(name)
		}
		p.next()
		arg := p.expr()
		p.expect(')')
		switch name {
		case "log", "ln":
			return Log(arg)
		case "sqrt":
			return Sqrt(arg)
		}
		p.fail("unknown function %q", name)
		return Expr{}

	case '(':
		p.next()
		e := p.expr()
		p.expect(')')
		return e

	case scanner.EOF:
		p.fail("unexpected end of input")
		return Expr{}
	}
	p.fail("unexpected %q", p.text)
	return Expr{}
}

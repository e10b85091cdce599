//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of trendetl.
//
// trendetl is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// trendetl is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with trendetl. If not, see https://www.gnu.org/licenses/.

package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(expr string) ([]token, error) {
	var toks []token
	rs := []rune(expr)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case r == '\'':
			start := i
			var sb strings.Builder
			i++
			for {
				if i >= len(rs) {
					return nil, &PredicateError{Expr: expr, Pos: start, Msg: "unterminated string"}
				}
				if rs[i] == '\'' {
					// '' is an escaped quote
					if i+1 < len(rs) && rs[i+1] == '\'' {
						sb.WriteRune('\'')
						i += 2
						continue
					}
					i++
					break
				}
				sb.WriteRune(rs[i])
				i++
			}
			toks = append(toks, token{tokString, sb.String(), start})
		case r == '=' || r == '<' || r == '>' || r == '!':
			start := i
			op := string(r)
			if i+1 < len(rs) && (rs[i+1] == '=' || (r == '<' && rs[i+1] == '>')) {
				op += string(rs[i+1])
			}
			i += len([]rune(op))
			switch op {
			case "!":
				return nil, &PredicateError{Expr: expr, Pos: start, Msg: "unexpected '!'"}
			case "==":
				op = "="
			case "<>":
				op = "!="
			}
			toks = append(toks, token{tokOp, op, start})
		case r == '-' || unicode.IsDigit(r):
			start := i
			i++
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, string(rs[start:i]), start})
		case r == '_' || r == '"' || unicode.IsLetter(r):
			start := i
			if r == '"' {
				// quoted identifier
				i++
				for i < len(rs) && rs[i] != '"' {
					i++
				}
				if i >= len(rs) {
					return nil, &PredicateError{Expr: expr, Pos: start, Msg: "unterminated identifier"}
				}
				toks = append(toks, token{tokIdent, string(rs[start+1 : i]), start})
				i++
				continue
			}
			for i < len(rs) && (rs[i] == '_' || unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])) {
				i++
			}
			toks = append(toks, token{tokIdent, string(rs[start:i]), start})
		default:
			return nil, &PredicateError{Expr: expr, Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(rs)})
	return toks, nil
}

type parser struct {
	expr string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(pos int, format string, args ...interface{}) error {
	return &PredicateError{Expr: p.expr, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// keyword reports whether the next token is the given case-insensitive keyword.
func (p *parser) keyword(kw string) bool {
	t := p.peek()
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []node{left}
	for p.keyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &orNode{children: children}, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []node{left}
	for p.keyword("and") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &andNode{children: children}, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.keyword("not") {
		p.next()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{child: child}, nil
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, p.errorf(t.pos, "expected ')'")
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	col := p.next()
	if col.kind != tokIdent || isKeyword(col.text) {
		return nil, p.errorf(col.pos, "expected column name")
	}

	negate := false
	if p.keyword("not") {
		p.next()
		negate = true
		if !p.keyword("in") {
			return nil, p.errorf(p.peek().pos, "expected 'in' after 'not'")
		}
	}
	if p.keyword("in") {
		p.next()
		values, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &inNode{column: col.text, values: values, negate: negate}, nil
	}

	op := p.next()
	if op.kind != tokOp {
		return nil, p.errorf(op.pos, "expected comparison operator")
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	switch op.text {
	case "<", "<=", ">", ">=":
		if _, ok := lit.(string); ok {
			return nil, p.errorf(op.pos, "operator %s needs a numeric literal", op.text)
		}
		if _, ok := lit.(bool); ok {
			return nil, p.errorf(op.pos, "operator %s needs a numeric literal", op.text)
		}
	}
	return &compareNode{column: col.text, op: op.text, value: lit}, nil
}

func (p *parser) parseList() ([]interface{}, error) {
	if t := p.next(); t.kind != tokLParen {
		return nil, p.errorf(t.pos, "expected '(' after 'in'")
	}
	var values []interface{}
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, lit)
		t := p.next()
		if t.kind == tokRParen {
			return values, nil
		}
		if t.kind != tokComma {
			return nil, p.errorf(t.pos, "expected ',' or ')'")
		}
	}
}

func (p *parser) parseLiteral() (interface{}, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		if n, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t.pos, "invalid number %q", t.text)
		}
		return f, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, p.errorf(t.pos, "expected literal")
}

func isKeyword(s string) bool {
	switch strings.ToLower(s) {
	case "and", "or", "not", "in", "true", "false":
		return true
	}
	return false
}

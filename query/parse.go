/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Parse converts an OData filter string into a Predicate. It supports the subset Render
// produces: comparisons (eq, ne, gt, ge, lt, le) between a property and a string, number,
// boolean, datetime'...' or guid'...' literal, combined with and, or, not and parentheses.
// An empty filter parses to the zero Predicate.
func Parse(filter string) (Predicate, error) {
	toks, err := tokenize(filter)
	if err != nil {
		return Predicate{}, err
	}
	if len(toks) == 0 {
		return Predicate{}, nil
	}
	p := &parser{toks: toks}
	pred, err := p.parseOr()
	if err != nil {
		return Predicate{}, err
	}
	if !p.done() {
		return Predicate{}, fmt.Errorf("query: unexpected %q at position %d", p.peek().text, p.peek().pos)
	}
	return pred, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokLiteral
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	text  string
	value any
	pos   int
}

func tokenize(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '\'':
			str, next, err := readQuoted(s, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokLiteral, text: s[i:next], value: str, pos: i})
			i = next
		case c == '-' || unicode.IsDigit(c):
			start := i
			i++
			for i < len(s) && (unicode.IsDigit(rune(s[i])) || strings.ContainsRune(".eE+-", rune(s[i]))) {
				i++
			}
			text := s[start:i]
			long := false
			if i < len(s) && (s[i] == 'L' || s[i] == 'l') {
				long = true
				i++
			}
			v, err := parseNumber(text, long)
			if err != nil {
				return nil, fmt.Errorf("query: invalid number %q at position %d", text, start)
			}
			toks = append(toks, token{kind: tokLiteral, text: s[start:i], value: v, pos: start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(s) && (unicode.IsLetter(rune(s[i])) || unicode.IsDigit(rune(s[i])) || s[i] == '_') {
				i++
			}
			word := s[start:i]
			if i < len(s) && s[i] == '\'' {
				str, next, err := readQuoted(s, i)
				if err != nil {
					return nil, err
				}
				v, err := typedLiteral(word, str)
				if err != nil {
					return nil, fmt.Errorf("query: %w at position %d", err, start)
				}
				toks = append(toks, token{kind: tokLiteral, text: s[start:next], value: v, pos: start})
				i = next
				continue
			}
			switch word {
			case "true", "false":
				toks = append(toks, token{kind: tokLiteral, text: word, value: word == "true", pos: start})
			default:
				toks = append(toks, token{kind: tokIdent, text: word, pos: start})
			}
		default:
			return nil, fmt.Errorf("query: unexpected character %q at position %d", c, i)
		}
	}
	return toks, nil
}

// readQuoted reads a single-quoted string starting at s[start] where '' escapes a quote.
func readQuoted(s string, start int) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(s) {
		if s[i] == '\'' {
			if i+1 < len(s) && s[i+1] == '\'' {
				sb.WriteByte('\'')
				i += 2
				continue
			}
			return sb.String(), i + 1, nil
		}
		sb.WriteByte(s[i])
		i++
	}
	return "", 0, fmt.Errorf("query: unterminated string at position %d", start)
}

func parseNumber(text string, long bool) (any, error) {
	if !strings.ContainsAny(text, ".eE") {
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, err
		}
		if long {
			return n, nil
		}
		return normalize(int(n)), nil
	}
	return strconv.ParseFloat(text, 64)
}

func typedLiteral(prefix, body string) (any, error) {
	switch strings.ToLower(prefix) {
	case "datetime":
		t, err := time.Parse(time.RFC3339Nano, body)
		if err != nil {
			return nil, fmt.Errorf("invalid datetime literal %q", body)
		}
		return t, nil
	case "guid":
		id, err := uuid.Parse(body)
		if err != nil {
			return nil, fmt.Errorf("invalid guid literal %q", body)
		}
		return id, nil
	}
	return nil, fmt.Errorf("unknown literal type %q", prefix)
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.done() {
		return token{text: "<end>", pos: -1}
	}
	return p.toks[p.pos]
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) && !p.done() {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return Predicate{}, err
	}
	operands := []Predicate{left}
	for p.keyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return Predicate{}, err
		}
		operands = append(operands, right)
	}
	return Or(operands...), nil
}

func (p *parser) parseAnd() (Predicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return Predicate{}, err
	}
	operands := []Predicate{left}
	for p.keyword("and") {
		right, err := p.parseUnary()
		if err != nil {
			return Predicate{}, err
		}
		operands = append(operands, right)
	}
	return And(operands...), nil
}

func (p *parser) parseUnary() (Predicate, error) {
	if p.keyword("not") {
		inner, err := p.parseUnary()
		if err != nil {
			return Predicate{}, err
		}
		return Not(inner), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Predicate, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		if p.done() {
			break
		}
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return Predicate{}, err
		}
		if p.peek().kind != tokRParen || p.done() {
			return Predicate{}, fmt.Errorf("query: expected ')' at position %d", p.peek().pos)
		}
		p.pos++
		return inner, nil
	case tokIdent:
		if p.done() {
			break
		}
		p.pos++
		opTok := p.peek()
		op, ok := comparisonOp(opTok)
		if !ok {
			return Predicate{}, fmt.Errorf("query: expected comparison operator after %q", t.text)
		}
		p.pos++
		lit := p.peek()
		if lit.kind != tokLiteral || p.done() {
			return Predicate{}, fmt.Errorf("query: expected literal after %s %s", t.text, opTok.text)
		}
		p.pos++
		return Predicate{op: op, property: t.text, value: lit.value}, nil
	}
	return Predicate{}, fmt.Errorf("query: unexpected %q at position %d", t.text, t.pos)
}

func comparisonOp(t token) (Op, bool) {
	if t.kind != tokIdent {
		return OpNone, false
	}
	for op, kw := range opKeywords {
		if op.IsComparison() && strings.EqualFold(t.text, kw) {
			return op, true
		}
	}
	return OpNone, false
}

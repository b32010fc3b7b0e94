// Package expr parses boolean filter expressions with named placeholders and translates
// them into MongoDB query filters.
//
//	name LIKE :pattern AND (age < :max OR vip = true)
//
// Keywords are case-insensitive. Placeholders are resolved only when a filter is built,
// so an expression can be parsed once and executed with different bindings.
package expr

import (
	"slices"
	"strconv"
	"strings"

	"github.com/percona/percona-docshell/errors"
)

// Expr is a parsed filter expression. The zero value matches every document.
type Expr struct {
	src    string
	root   node
	params []string
}

// Parse parses src. An empty or blank src yields an expression matching all documents.
func Parse(src string) (*Expr, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	e := &Expr{src: src}

	if p.peek().kind == tokEOF {
		return e, nil
	}

	e.root, err = p.parseOr()
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, errors.Wrapf(errors.ErrParse, "unexpected %s at position %d", t.describe(), t.pos)
	}

	e.params = p.params

	return e, nil
}

// String returns the source text.
func (e *Expr) String() string {
	return e.src
}

// Placeholders returns placeholder names in order of first occurrence.
func (e *Expr) Placeholders() []string {
	return slices.Clone(e.params)
}

// HasPlaceholder reports whether name occurs in the expression.
func (e *Expr) HasPlaceholder(name string) bool {
	return slices.Contains(e.params, name)
}

type node interface {
	isNode()
}

type logicalNode struct {
	or    bool
	terms []node
}

type notNode struct {
	term node
}

type compareNode struct {
	op          string
	left, right operand
}

type likeNode struct {
	negate  bool
	field   string
	pattern operand
}

func (*logicalNode) isNode() {}
func (*notNode) isNode()     {}
func (*compareNode) isNode() {}
func (*likeNode) isNode()    {}

type operandKind int

const (
	fieldOperand operandKind = iota
	literalOperand
	paramOperand
)

type operand struct {
	kind  operandKind
	field string
	value any
	param string
}

type parser struct {
	tokens []token
	pos    int
	params []string
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}

	return t
}

func (p *parser) parseOr() (node, error) {
	return p.parseLogical(true)
}

func (p *parser) parseAnd() (node, error) {
	return p.parseLogical(false)
}

func (p *parser) parseLogical(or bool) (node, error) {
	keyword := "AND"
	sub := p.parseNot
	if or {
		keyword = "OR"
		sub = p.parseAnd
	}

	first, err := sub()
	if err != nil {
		return nil, err
	}

	terms := []node{first}
	for p.peek().keyword(keyword) {
		p.next()

		term, err := sub()
		if err != nil {
			return nil, err
		}

		terms = append(terms, term)
	}

	if len(terms) == 1 {
		return first, nil
	}

	return &logicalNode{or: or, terms: terms}, nil
}

func (p *parser) parseNot() (node, error) {
	if p.peek().keyword("NOT") {
		p.next()

		term, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return &notNode{term: term}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.peek().kind == tokLParen {
		open := p.next()

		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if t := p.next(); t.kind != tokRParen {
			return nil, errors.Wrapf(errors.ErrParse,
				"missing ')' for '(' at position %d, got %s", open.pos, t.describe())
		}

		return n, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	start := p.peek()

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	negate := false
	if p.peek().keyword("NOT") {
		p.next()

		negate = true
		if !p.peek().keyword("LIKE") {
			t := p.peek()

			return nil, errors.Wrapf(errors.ErrParse, "expected LIKE after NOT at position %d, got %s",
				t.pos, t.describe())
		}
	}

	if p.peek().keyword("LIKE") {
		p.next()

		pattern, err := p.parseOperand()
		if err != nil {
			return nil, err
		}

		if left.kind != fieldOperand {
			return nil, errors.Wrapf(errors.ErrParse, "LIKE requires a field on the left at position %d",
				start.pos)
		}

		if pattern.kind == fieldOperand {
			return nil, errors.Wrapf(errors.ErrParse, "LIKE requires a pattern value at position %d",
				start.pos)
		}

		if pattern.kind == literalOperand {
			if _, ok := pattern.value.(string); !ok {
				return nil, errors.Wrapf(errors.ErrParse, "LIKE pattern must be a string at position %d",
					start.pos)
			}
		}

		return &likeNode{negate: negate, field: left.field, pattern: pattern}, nil
	}

	op := p.next()
	if op.kind != tokOp {
		return nil, errors.Wrapf(errors.ErrParse, "expected comparison operator at position %d, got %s",
			op.pos, op.describe())
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if left.kind != fieldOperand && right.kind != fieldOperand {
		return nil, errors.Wrapf(errors.ErrParse, "comparison at position %d does not reference a field",
			start.pos)
	}

	return &compareNode{op: op.text, left: left, right: right}, nil
}

func (p *parser) parseOperand() (operand, error) {
	t := p.next()

	switch t.kind {
	case tokParam:
		if !slices.Contains(p.params, t.text) {
			p.params = append(p.params, t.text)
		}

		return operand{kind: paramOperand, param: t.text}, nil

	case tokString:
		return operand{kind: literalOperand, value: t.text}, nil

	case tokNumber:
		v, err := parseNumber(t.text)
		if err != nil {
			return operand{}, errors.Wrapf(errors.ErrParse, "invalid number '%s' at position %d", t.text, t.pos)
		}

		return operand{kind: literalOperand, value: v}, nil

	case tokIdent:
		switch strings.ToUpper(t.text) {
		case "TRUE":
			return operand{kind: literalOperand, value: true}, nil
		case "FALSE":
			return operand{kind: literalOperand, value: false}, nil
		case "NULL":
			return operand{kind: literalOperand, value: nil}, nil
		case "AND", "OR", "NOT", "LIKE":
			return operand{}, errors.Wrapf(errors.ErrParse, "unexpected keyword '%s' at position %d",
				t.text, t.pos)
		}

		if strings.HasPrefix(t.text, ".") || strings.HasSuffix(t.text, ".") || strings.Contains(t.text, "..") {
			return operand{}, errors.Wrapf(errors.ErrParse, "invalid field path '%s' at position %d",
				t.text, t.pos)
		}

		return operand{kind: fieldOperand, field: t.text}, nil
	}

	return operand{}, errors.Wrapf(errors.ErrParse, "operand expected at position %d, got %s",
		t.pos, t.describe())
}

func parseNumber(text string) (any, error) {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, nil
	}

	return strconv.ParseFloat(text, 64)
}

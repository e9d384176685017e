package predicate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/scalar"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokComma
	tokLParen
	tokRParen
	tokError
)

type token struct {
	typ tokenType
	val string
	pos int
}

// lexer tokenizes filter text
type lexer struct {
	input []rune
	pos   int
}

func (l *lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *lexer) next() token {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
	start := l.pos
	ch := l.peek()
	switch {
	case ch == 0:
		return token{typ: tokEOF, pos: start}
	case ch == ',':
		l.pos++
		return token{typ: tokComma, val: ",", pos: start}
	case ch == '(':
		l.pos++
		return token{typ: tokLParen, val: "(", pos: start}
	case ch == ')':
		l.pos++
		return token{typ: tokRParen, val: ")", pos: start}
	case ch == '\'' || ch == '"':
		return l.readString(ch)
	case ch == '`':
		return l.readQuotedIdent()
	case strings.ContainsRune("=!<>", ch):
		l.pos++
		if n := l.peek(); n == '=' || (ch == '<' && n == '>') {
			l.pos++
		}
		return token{typ: tokOp, val: string(l.input[start:l.pos]), pos: start}
	case unicode.IsDigit(ch) || ch == '-' || ch == '+' || ch == '.':
		l.pos++
		for l.pos < len(l.input) {
			c := l.input[l.pos]
			if !(unicode.IsDigit(c) || c == '.' || c == 'e' || c == 'E' ||
				((c == '-' || c == '+') && (l.input[l.pos-1] == 'e' || l.input[l.pos-1] == 'E'))) {
				break
			}
			l.pos++
		}
		return token{typ: tokNumber, val: string(l.input[start:l.pos]), pos: start}
	case unicode.IsLetter(ch) || ch == '_':
		for l.pos < len(l.input) {
			c := l.input[l.pos]
			if !(unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '.') {
				break
			}
			l.pos++
		}
		return token{typ: tokIdent, val: string(l.input[start:l.pos]), pos: start}
	default:
		l.pos++
		return token{typ: tokError, val: string(ch), pos: start}
	}
}

func (l *lexer) readString(quote rune) token {
	start := l.pos
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == '\\' && l.pos+1 < len(l.input):
			l.pos++
			b.WriteRune(l.input[l.pos])
		case c == quote:
			l.pos++
			return token{typ: tokString, val: b.String(), pos: start}
		default:
			b.WriteRune(c)
		}
		l.pos++
	}
	return token{typ: tokError, val: "unterminated string", pos: start}
}

func (l *lexer) readQuotedIdent() token {
	start := l.pos
	l.pos++
	for i := l.pos; i < len(l.input); i++ {
		if l.input[i] == '`' {
			name := string(l.input[l.pos:i])
			l.pos = i + 1
			return token{typ: tokIdent, val: name, pos: start}
		}
	}
	return token{typ: tokError, val: "unterminated identifier", pos: start}
}

func tokenize(text string) []token {
	l := &lexer{input: []rune(text)}
	var toks []token
	for {
		t := l.next()
		toks = append(toks, t)
		if t.typ == tokEOF || t.typ == tokError {
			return toks
		}
	}
}

// parser builds a Filter from tokens
type parser struct {
	toks []token
	pos  int
}

func (p *parser) current() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.current()
	return t.typ == tokIdent && strings.EqualFold(t.val, word)
}

// Parse reads the text form of a filter: predicates separated by commas or
// "and", for example
//
//	val > 5, lat in (1, 2) and name != 'x'
//
// The empty string is the empty filter.
func Parse(text string) (Filter, error) {
	p := &parser{toks: tokenize(text)}
	var f Filter
	if p.current().typ == tokEOF {
		return f, nil
	}
	for {
		pred, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		f = append(f, pred)

		switch {
		case p.current().typ == tokEOF:
			return f, nil
		case p.current().typ == tokComma || p.keyword("and"):
			p.advance()
		default:
			return nil, p.errorf("expected ',' or 'and', got %q", p.current().val)
		}
	}
}

func (p *parser) parsePredicate() (Predicate, error) {
	col := p.advance()
	if col.typ != tokIdent {
		return Predicate{}, p.errorAt(col, "expected column name, got %q", col.val)
	}

	var op Operator
	switch {
	case p.current().typ == tokOp:
		parsed, err := ParseOperator(p.advance().val)
		if err != nil {
			return Predicate{}, err
		}
		op = parsed
	case p.keyword("in"):
		p.advance()
		op = In
	case p.keyword("not"):
		p.advance()
		if !p.keyword("in") {
			return Predicate{}, p.errorf("expected 'in' after 'not'")
		}
		p.advance()
		op = NotIn
	default:
		return Predicate{}, p.errorf("expected operator after %q, got %q", col.val, p.current().val)
	}

	var values []scalar.Value
	if op.isSet() {
		set, err := p.parseSet()
		if err != nil {
			return Predicate{}, err
		}
		values = set
	} else {
		v, err := p.parseLiteral()
		if err != nil {
			return Predicate{}, err
		}
		values = []scalar.Value{v}
	}
	return New(col.val, op, values...)
}

func (p *parser) parseSet() ([]scalar.Value, error) {
	if p.current().typ != tokLParen {
		return nil, p.errorf("expected '(' to open value set")
	}
	p.advance()
	var values []scalar.Value
	if p.current().typ == tokRParen {
		p.advance()
		return values, nil
	}
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		switch p.current().typ {
		case tokComma:
			p.advance()
		case tokRParen:
			p.advance()
			return values, nil
		default:
			return nil, p.errorf("expected ',' or ')' in value set, got %q", p.current().val)
		}
	}
}

func (p *parser) parseLiteral() (scalar.Value, error) {
	t := p.advance()
	switch t.typ {
	case tokString:
		return scalar.String(t.val), nil
	case tokNumber:
		if i, err := strconv.ParseInt(t.val, 10, 64); err == nil {
			return scalar.Int(i), nil
		}
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return scalar.Null(), p.errorAt(t, "invalid number %q", t.val)
		}
		return scalar.Float(f), nil
	case tokIdent:
		switch strings.ToLower(t.val) {
		case "true":
			return scalar.Bool(true), nil
		case "false":
			return scalar.Bool(false), nil
		case "nan":
			return scalar.Float(math.NaN()), nil
		case "null":
			return scalar.Null(), p.errorAt(t, "null literal never matches; nulls fail every predicate")
		}
	}
	return scalar.Null(), p.errorAt(t, "expected literal, got %q", t.val)
}

func (p *parser) errorf(format string, args ...any) error {
	return p.errorAt(p.current(), format, args...)
}

func (p *parser) errorAt(t token, format string, args ...any) error {
	return lserrors.NewInvalidQueryError("Parse", fmt.Sprintf("at offset %d: ", t.pos)+fmt.Sprintf(format, args...))
}

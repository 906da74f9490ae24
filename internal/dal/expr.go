package dal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kommetio/kommet-core/internal/types"
)

// Expression is a parsed boolean condition over record fields, evaluated
// in memory. It shares the DAL lexer and condition grammar with the query
// parser but never touches the database.
type Expression struct {
	root   exprNode
	fields []string
}

// ParseExpression parses a boolean condition such as
// "amount > 100 AND status <> 'closed'".
func ParseExpression(text string) (*Expression, error) {
	tokens, err := NewLexer(text).ScanTokens()
	if err != nil {
		return nil, err
	}
	p := &exprParser{parser: parser{tokens: tokens}}
	root, err := p.parseExprOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TOKEN_EOF {
		return nil, &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf("unexpected %s after end of condition", tok.Type)}
	}

	seen := map[string]bool{}
	var fields []string
	root.collectFields(func(path string) {
		if !seen[path] {
			seen[path] = true
			fields = append(fields, path)
		}
	})
	sort.Strings(fields)
	return &Expression{root: root, fields: fields}, nil
}

// Fields returns the distinct field paths referenced by the condition.
func (e *Expression) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Eval evaluates the condition against a record. Unset fields compare as
// null: only ISNULL and "= null" match them.
func (e *Expression) Eval(rec *types.Record) (bool, error) {
	return e.root.eval(rec)
}

type exprNode interface {
	eval(rec *types.Record) (bool, error)
	collectFields(fn func(path string))
}

type logicalNode struct {
	or    bool
	parts []exprNode
}

func (n *logicalNode) eval(rec *types.Record) (bool, error) {
	for _, part := range n.parts {
		v, err := part.eval(rec)
		if err != nil {
			return false, err
		}
		if v == n.or {
			return n.or, nil
		}
	}
	return !n.or, nil
}

func (n *logicalNode) collectFields(fn func(string)) {
	for _, part := range n.parts {
		part.collectFields(fn)
	}
}

type notNode struct {
	inner exprNode
}

func (n *notNode) eval(rec *types.Record) (bool, error) {
	v, err := n.inner.eval(rec)
	return !v, err
}

func (n *notNode) collectFields(fn func(string)) {
	n.inner.collectFields(fn)
}

type comparisonNode struct {
	path   string
	op     TokenType
	value  any
	isNull bool
}

func (n *comparisonNode) collectFields(fn func(string)) {
	fn(n.path)
}

func (n *comparisonNode) eval(rec *types.Record) (bool, error) {
	fieldVal, err := rec.GetField(n.path)
	if errors.Is(err, types.ErrFieldNotSet) {
		fieldVal, err = nil, nil
	}
	if err != nil {
		return false, err
	}

	if n.isNull || n.value == nil {
		isNull := fieldVal == nil
		if n.op == TOKEN_NOT_EQUAL {
			return !isNull, nil
		}
		return isNull, nil
	}
	if fieldVal == nil {
		// Null never satisfies a value comparison, including <>.
		return false, nil
	}

	switch n.op {
	case TOKEN_EQUAL:
		return compareValues(fieldVal, n.value, func(c int) bool { return c == 0 })
	case TOKEN_NOT_EQUAL:
		eq, err := compareValues(fieldVal, n.value, func(c int) bool { return c == 0 })
		return !eq, err
	case TOKEN_GREATER:
		return compareValues(fieldVal, n.value, func(c int) bool { return c > 0 })
	case TOKEN_GREATER_EQUAL:
		return compareValues(fieldVal, n.value, func(c int) bool { return c >= 0 })
	case TOKEN_LESS:
		return compareValues(fieldVal, n.value, func(c int) bool { return c < 0 })
	case TOKEN_LESS_EQUAL:
		return compareValues(fieldVal, n.value, func(c int) bool { return c <= 0 })
	case TOKEN_LIKE:
		s, ok := fieldVal.(string)
		if !ok {
			return false, fmt.Errorf("LIKE applied to non-text field %s", n.path)
		}
		return likeMatch(s, n.value.(string)), nil
	default:
		return false, fmt.Errorf("unsupported operator %s", n.op)
	}
}

// compareValues orders two scalars of compatible kinds and applies the
// predicate to the comparison result.
func compareValues(a, b any, pred func(int) bool) (bool, error) {
	if ad, aok := toDecimalValue(a); aok {
		bd, bok := toDecimalValue(b)
		if !bok {
			return false, fmt.Errorf("cannot compare number with %T", b)
		}
		return pred(ad.Cmp(bd)), nil
	}
	switch av := a.(type) {
	case string:
		bs, ok := b.(string)
		if !ok {
			return false, fmt.Errorf("cannot compare text with %T", b)
		}
		return pred(strings.Compare(av, bs)), nil
	case bool:
		bb, ok := b.(bool)
		if !ok {
			return false, fmt.Errorf("cannot compare boolean with %T", b)
		}
		switch {
		case av == bb:
			return pred(0), nil
		case av:
			return pred(1), nil
		default:
			return pred(-1), nil
		}
	case time.Time:
		bt, ok := b.(time.Time)
		if !ok {
			return false, fmt.Errorf("cannot compare date with %T", b)
		}
		return pred(av.Compare(bt)), nil
	case types.KID:
		bs := ""
		switch bv := b.(type) {
		case types.KID:
			bs = bv.String()
		case string:
			bs = bv
		default:
			return false, fmt.Errorf("cannot compare identifier with %T", b)
		}
		return pred(strings.Compare(av.String(), bs)), nil
	case *types.Record:
		return compareValues(av.ID(), b, pred)
	default:
		return false, fmt.Errorf("cannot compare values of type %T", a)
	}
}

func toDecimalValue(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	default:
		return decimal.Decimal{}, false
	}
}

// likeMatch implements SQL LIKE with % and _ wildcards.
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatchRunes(s[i:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		return len(s) > 0 && likeMatchRunes(s[1:], p[1:])
	default:
		return len(s) > 0 && s[0] == p[0] && likeMatchRunes(s[1:], p[1:])
	}
}

// exprParser reuses the query parser's token plumbing but builds evaluable
// nodes instead of SQL restrictions.
type exprParser struct {
	parser
}

func (p *exprParser) parseExprOr() (exprNode, error) {
	left, err := p.parseExprAnd()
	if err != nil {
		return nil, err
	}
	parts := []exprNode{left}
	for p.match(TOKEN_OR) {
		right, err := p.parseExprAnd()
		if err != nil {
			return nil, err
		}
		parts = append(parts, right)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return &logicalNode{or: true, parts: parts}, nil
}

func (p *exprParser) parseExprAnd() (exprNode, error) {
	left, err := p.parseExprUnary()
	if err != nil {
		return nil, err
	}
	parts := []exprNode{left}
	for p.match(TOKEN_AND) {
		right, err := p.parseExprUnary()
		if err != nil {
			return nil, err
		}
		parts = append(parts, right)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return &logicalNode{parts: parts}, nil
}

func (p *exprParser) parseExprUnary() (exprNode, error) {
	if p.match(TOKEN_NOT) {
		if _, err := p.expect(TOKEN_LEFT_PAREN); err != nil {
			return nil, err
		}
		inner, err := p.parseExprOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TOKEN_RIGHT_PAREN); err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	if p.match(TOKEN_LEFT_PAREN) {
		inner, err := p.parseExprOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TOKEN_RIGHT_PAREN); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseExprPredicate()
}

func (p *exprParser) parseExprPredicate() (exprNode, error) {
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	tok := p.advance()
	switch tok.Type {
	case TOKEN_ISNULL:
		return &comparisonNode{path: path, op: TOKEN_EQUAL, isNull: true}, nil
	case TOKEN_EQUAL, TOKEN_NOT_EQUAL, TOKEN_GREATER, TOKEN_GREATER_EQUAL, TOKEN_LESS, TOKEN_LESS_EQUAL:
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &comparisonNode{path: path, op: tok.Type, value: v, isNull: v == nil}, nil
	case TOKEN_LIKE:
		v, err := p.expect(TOKEN_STRING_LITERAL)
		if err != nil {
			return nil, err
		}
		return &comparisonNode{path: path, op: TOKEN_LIKE, value: v.Lexeme}, nil
	default:
		return nil, &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf("expected a comparison operator, got %s", tok.Type)}
	}
}

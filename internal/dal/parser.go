package dal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kommetio/kommet-core/internal/query"
	"github.com/kommetio/kommet-core/internal/types"
)

// SyntaxError is a DAL parse or validation error. It is produced before any
// database interaction.
type SyntaxError struct {
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("DAL syntax error at position %d: %s", e.Pos, e.Message)
}

// IsSyntaxError reports whether the error is a DAL syntax error.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

// TypeSource resolves qualified type names for the parser. Implemented by the
// environment.
type TypeSource interface {
	types.TypeResolver
	TypeByQualifiedName(name string) (*types.Type, bool)
}

// ParseQuery parses DAL text into a criteria for the queried type.
func ParseQuery(text string, source TypeSource) (*query.Criteria, error) {
	tokens, err := NewLexer(text).ScanTokens()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, source: source}
	return p.parseQuery()
}

// selectItem is a parsed element of the SELECT list.
type selectItem struct {
	path         string
	aggregate    query.AggregateFunc
	defaultField bool
	pos          int
}

type parser struct {
	tokens  []Token
	current int
	source  TypeSource
	typ     *types.Type
}

func (p *parser) parseQuery() (*query.Criteria, error) {
	if _, err := p.expect(TOKEN_SELECT); err != nil {
		return nil, err
	}

	var items []selectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	if _, err := p.expect(TOKEN_FROM); err != nil {
		return nil, err
	}
	typeNameTok := p.peek()
	typeName, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	typ, ok := p.source.TypeByQualifiedName(typeName)
	if !ok {
		return nil, &SyntaxError{Pos: typeNameTok.Pos, Message: fmt.Sprintf("type %s not found", typeName)}
	}
	p.typ = typ

	c := query.NewCriteria(typ, p.source)
	for _, item := range items {
		path := item.path
		if item.defaultField {
			path = typ.DefaultField
		}
		if err := p.checkProperty(path, item.pos, item.aggregate == ""); err != nil {
			return nil, err
		}
		if item.aggregate != "" {
			c.AddAggregateFunction(item.aggregate, path)
		} else {
			c.AddProperty(path)
		}
	}

	if p.match(TOKEN_WHERE) {
		restriction, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		c.Add(restriction)
	}

	if p.match(TOKEN_GROUP) {
		if _, err := p.expect(TOKEN_BY); err != nil {
			return nil, err
		}
		for {
			pos := p.peek().Pos
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			if err := p.checkProperty(path, pos, true); err != nil {
				return nil, err
			}
			c.AddGroupByProperty(path)
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
	}

	if p.match(TOKEN_ORDER) {
		if _, err := p.expect(TOKEN_BY); err != nil {
			return nil, err
		}
		for {
			path, err := p.parseOrderTarget()
			if err != nil {
				return nil, err
			}
			dir := query.Asc
			if p.match(TOKEN_DESC) {
				dir = query.Desc
			} else {
				p.match(TOKEN_ASC)
			}
			c.AddOrderBy(dir, path)
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
	}

	if p.match(TOKEN_LIMIT) {
		n, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		c.SetLimit(n)
	}
	if p.match(TOKEN_OFFSET) {
		n, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		c.SetOffset(n)
	}

	if tok := p.peek(); tok.Type != TOKEN_EOF {
		return nil, &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf("unexpected %s after end of query", tok.Type)}
	}
	return c, nil
}

// checkProperty validates a property path against the queried type so that
// unknown-property errors are reported as DAL errors, never as SQL failures.
func (p *parser) checkProperty(path string, pos int, plain bool) error {
	chain, err := p.typ.GetField(path, p.source)
	if err != nil {
		return &SyntaxError{Pos: pos, Message: fmt.Sprintf("property %s not found on type %s", path, p.typ.QualifiedName())}
	}
	if plain && chain.Terminal.DataType.Kind == types.KindTypeReference && len(chain.Refs) == 0 {
		return &SyntaxError{Pos: pos, Message: fmt.Sprintf("cannot reference whole relationship %q; use a subfield such as %q", path, path+".id")}
	}
	return nil
}

func (p *parser) parseSelectItem() (selectItem, error) {
	tok := p.peek()
	if tok.Type == TOKEN_DEFAULT_FIELD {
		p.advance()
		return selectItem{defaultField: true, pos: tok.Pos}, nil
	}
	if tok.Type == TOKEN_IDENTIFIER {
		if fn, isAgg := query.ParseAggregateFunc(tok.Lexeme); isAgg && p.peekAt(1).Type == TOKEN_LEFT_PAREN {
			p.advance()
			p.advance()
			path, err := p.parsePath()
			if err != nil {
				return selectItem{}, err
			}
			if _, err := p.expect(TOKEN_RIGHT_PAREN); err != nil {
				return selectItem{}, err
			}
			return selectItem{path: path, aggregate: fn, pos: tok.Pos}, nil
		}
	}
	path, err := p.parsePath()
	if err != nil {
		return selectItem{}, err
	}
	return selectItem{path: path, pos: tok.Pos}, nil
}

// parseOrderTarget accepts either a plain path or an aggregate label.
func (p *parser) parseOrderTarget() (string, error) {
	tok := p.peek()
	if tok.Type == TOKEN_IDENTIFIER {
		if fn, isAgg := query.ParseAggregateFunc(tok.Lexeme); isAgg && p.peekAt(1).Type == TOKEN_LEFT_PAREN {
			p.advance()
			p.advance()
			path, err := p.parsePath()
			if err != nil {
				return "", err
			}
			if _, err := p.expect(TOKEN_RIGHT_PAREN); err != nil {
				return "", err
			}
			return string(fn) + "(" + path + ")", nil
		}
	}
	return p.parsePath()
}

func (p *parser) parseOr() (query.Restriction, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	parts := []query.Restriction{left}
	for p.match(TOKEN_OR) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		parts = append(parts, right)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return query.Or(parts...), nil
}

func (p *parser) parseAnd() (query.Restriction, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	parts := []query.Restriction{left}
	for p.match(TOKEN_AND) {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		parts = append(parts, right)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return query.And(parts...), nil
}

func (p *parser) parseUnary() (query.Restriction, error) {
	if p.match(TOKEN_NOT) {
		if _, err := p.expect(TOKEN_LEFT_PAREN); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TOKEN_RIGHT_PAREN); err != nil {
			return nil, err
		}
		return query.Not(inner), nil
	}
	if p.match(TOKEN_LEFT_PAREN) {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TOKEN_RIGHT_PAREN); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parsePredicate()
}

func (p *parser) parsePredicate() (query.Restriction, error) {
	pos := p.peek().Pos
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if _, ferr := p.typ.GetField(path, p.source); ferr != nil {
		return nil, &SyntaxError{Pos: pos, Message: fmt.Sprintf("property %s not found on type %s", path, p.typ.QualifiedName())}
	}

	tok := p.advance()
	switch tok.Type {
	case TOKEN_ISNULL:
		return query.IsNull(path), nil
	case TOKEN_EQUAL:
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if v == nil {
			return query.IsNull(path), nil
		}
		return query.Eq(path, v), nil
	case TOKEN_NOT_EQUAL:
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		if v == nil {
			return query.Not(query.IsNull(path)), nil
		}
		return query.Ne(path, v), nil
	case TOKEN_GREATER:
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return query.Gt(path, v), nil
	case TOKEN_GREATER_EQUAL:
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return query.Ge(path, v), nil
	case TOKEN_LESS:
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return query.Lt(path, v), nil
	case TOKEN_LESS_EQUAL:
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return query.Le(path, v), nil
	case TOKEN_LIKE:
		v, err := p.expect(TOKEN_STRING_LITERAL)
		if err != nil {
			return nil, err
		}
		return query.Like(path, v.Lexeme), nil
	default:
		return nil, &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf("expected a comparison operator, got %s", tok.Type)}
	}
}

func (p *parser) parseLiteral() (any, error) {
	tok := p.advance()
	switch tok.Type {
	case TOKEN_STRING_LITERAL:
		return tok.Lexeme, nil
	case TOKEN_NUMBER_LITERAL:
		if !strings.ContainsRune(tok.Lexeme, '.') {
			n, err := strconv.ParseInt(tok.Lexeme, 10, 64)
			if err == nil {
				return n, nil
			}
		}
		d, err := decimal.NewFromString(tok.Lexeme)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf("invalid number literal %q", tok.Lexeme)}
		}
		return d, nil
	case TOKEN_TRUE:
		return true, nil
	case TOKEN_FALSE:
		return false, nil
	case TOKEN_NULL:
		return nil, nil
	default:
		return nil, &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf("expected a literal value, got %s", tok.Type)}
	}
}

func (p *parser) parsePath() (string, error) {
	tok, err := p.expect(TOKEN_IDENTIFIER)
	if err != nil {
		return "", err
	}
	path := tok.Lexeme
	for p.match(TOKEN_DOT) {
		next, err := p.expect(TOKEN_IDENTIFIER)
		if err != nil {
			return "", err
		}
		path += "." + next.Lexeme
	}
	return path, nil
}

func (p *parser) parseInt() (int, error) {
	tok, err := p.expect(TOKEN_NUMBER_LITERAL)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(tok.Lexeme)
	if convErr != nil {
		return 0, &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf("invalid integer %q", tok.Lexeme)}
	}
	return n, nil
}

func (p *parser) expect(t TokenType) (Token, error) {
	tok := p.peek()
	if tok.Type != t {
		return Token{}, &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf("expected %s, got %s", t, tok.Type)}
	}
	p.advance()
	return tok, nil
}

func (p *parser) match(t TokenType) bool {
	if p.peek().Type != t {
		return false
	}
	p.advance()
	return true
}

func (p *parser) peek() Token {
	return p.tokens[p.current]
}

func (p *parser) peekAt(offset int) Token {
	idx := p.current + offset
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *parser) advance() Token {
	tok := p.tokens[p.current]
	if p.current < len(p.tokens)-1 {
		p.current++
	}
	return tok
}

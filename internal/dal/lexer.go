package dal

import (
	"fmt"
	"strings"
	"unicode"
)

// Lexer tokenizes DAL query text.
type Lexer struct {
	source  []rune
	start   int
	current int
	tokens  []Token
}

// NewLexer creates a lexer for the given query text.
func NewLexer(source string) *Lexer {
	return &Lexer{source: []rune(source)}
}

// ScanTokens scans the whole input, returning the token stream or a syntax
// error for unterminated strings and illegal characters.
func (l *Lexer) ScanTokens() ([]Token, error) {
	for !l.isAtEnd() {
		l.start = l.current
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
	l.tokens = append(l.tokens, Token{Type: TOKEN_EOF, Pos: l.current})
	return l.tokens, nil
}

func (l *Lexer) scanToken() error {
	c := l.advance()
	switch c {
	case ' ', '\t', '\r', '\n':
		return nil
	case '(':
		l.add(TOKEN_LEFT_PAREN)
	case ')':
		l.add(TOKEN_RIGHT_PAREN)
	case ',':
		l.add(TOKEN_COMMA)
	case '.':
		l.add(TOKEN_DOT)
	case '=':
		l.add(TOKEN_EQUAL)
	case '>':
		if l.match('=') {
			l.add(TOKEN_GREATER_EQUAL)
		} else {
			l.add(TOKEN_GREATER)
		}
	case '<':
		if l.match('=') {
			l.add(TOKEN_LESS_EQUAL)
		} else if l.match('>') {
			l.add(TOKEN_NOT_EQUAL)
		} else {
			l.add(TOKEN_LESS)
		}
	case '\'':
		return l.scanString()
	case '{':
		return l.scanDefaultFieldToken()
	default:
		if unicode.IsDigit(c) {
			l.scanNumber()
			return nil
		}
		if unicode.IsLetter(c) || c == '_' {
			l.scanIdentifier()
			return nil
		}
		return &SyntaxError{Pos: l.start, Message: fmt.Sprintf("unexpected character %q", c)}
	}
	return nil
}

// scanString consumes a single-quoted string literal. Both backslash-quote
// and doubled-quote escapes denote a literal single quote.
func (l *Lexer) scanString() error {
	var b strings.Builder
	for !l.isAtEnd() {
		c := l.advance()
		switch c {
		case '\\':
			if l.isAtEnd() {
				return &SyntaxError{Pos: l.start, Message: "unterminated string literal"}
			}
			b.WriteRune(l.advance())
		case '\'':
			if l.peek() == '\'' {
				l.advance()
				b.WriteRune('\'')
				continue
			}
			l.tokens = append(l.tokens, Token{Type: TOKEN_STRING_LITERAL, Lexeme: b.String(), Pos: l.start})
			return nil
		default:
			b.WriteRune(c)
		}
	}
	return &SyntaxError{Pos: l.start, Message: "unterminated string literal"}
}

func (l *Lexer) scanDefaultFieldToken() error {
	for !l.isAtEnd() && l.peek() != '}' {
		l.advance()
	}
	if l.isAtEnd() {
		return &SyntaxError{Pos: l.start, Message: "unterminated { token"}
	}
	l.advance() // consume '}'
	name := strings.TrimSpace(string(l.source[l.start+1 : l.current-1]))
	if !strings.EqualFold(name, "defaultField") {
		return &SyntaxError{Pos: l.start, Message: fmt.Sprintf("unknown token {%s}", name)}
	}
	l.add(TOKEN_DEFAULT_FIELD)
	return nil
}

func (l *Lexer) scanNumber() {
	for unicode.IsDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && unicode.IsDigit(l.peekNext()) {
		l.advance()
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	l.add(TOKEN_NUMBER_LITERAL)
}

func (l *Lexer) scanIdentifier() {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	lexeme := string(l.source[l.start:l.current])
	if t, isKeyword := keywords[strings.ToLower(lexeme)]; isKeyword {
		l.tokens = append(l.tokens, Token{Type: t, Lexeme: lexeme, Pos: l.start})
		return
	}
	l.tokens = append(l.tokens, Token{Type: TOKEN_IDENTIFIER, Lexeme: lexeme, Pos: l.start})
}

func (l *Lexer) add(t TokenType) {
	l.tokens = append(l.tokens, Token{Type: t, Lexeme: string(l.source[l.start:l.current]), Pos: l.start})
}

func (l *Lexer) advance() rune {
	c := l.source[l.current]
	l.current++
	return c
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.current] != expected {
		return false
	}
	l.current++
	return true
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.current]
}

func (l *Lexer) peekNext() rune {
	if l.current+1 >= len(l.source) {
		return 0
	}
	return l.source[l.current+1]
}

func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

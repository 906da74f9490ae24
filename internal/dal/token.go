// Package dal implements the textual query language: a hand-written lexer and
// recursive-descent parser producing criteria that the query package compiles
// to SQL. Parse errors surface before anything touches the database.
package dal

import "fmt"

// TokenType represents the type of a DAL token.
type TokenType int

const (
	TOKEN_EOF TokenType = iota
	TOKEN_ERROR

	// Keywords
	TOKEN_SELECT
	TOKEN_FROM
	TOKEN_WHERE
	TOKEN_GROUP
	TOKEN_ORDER
	TOKEN_BY
	TOKEN_ASC
	TOKEN_DESC
	TOKEN_LIMIT
	TOKEN_OFFSET
	TOKEN_AND
	TOKEN_OR
	TOKEN_NOT
	TOKEN_ISNULL
	TOKEN_LIKE
	TOKEN_TRUE
	TOKEN_FALSE
	TOKEN_NULL

	// Literals
	TOKEN_IDENTIFIER
	TOKEN_STRING_LITERAL
	TOKEN_NUMBER_LITERAL
	TOKEN_DEFAULT_FIELD // {defaultField}

	// Operators and punctuation
	TOKEN_EQUAL         // =
	TOKEN_NOT_EQUAL     // <>
	TOKEN_GREATER       // >
	TOKEN_GREATER_EQUAL // >=
	TOKEN_LESS          // <
	TOKEN_LESS_EQUAL    // <=
	TOKEN_LEFT_PAREN    // (
	TOKEN_RIGHT_PAREN   // )
	TOKEN_COMMA         // ,
	TOKEN_DOT           // .
)

// String returns a human-readable name of the token type.
func (t TokenType) String() string {
	switch t {
	case TOKEN_EOF:
		return "end of query"
	case TOKEN_SELECT:
		return "SELECT"
	case TOKEN_FROM:
		return "FROM"
	case TOKEN_WHERE:
		return "WHERE"
	case TOKEN_GROUP:
		return "GROUP"
	case TOKEN_ORDER:
		return "ORDER"
	case TOKEN_BY:
		return "BY"
	case TOKEN_ASC:
		return "ASC"
	case TOKEN_DESC:
		return "DESC"
	case TOKEN_LIMIT:
		return "LIMIT"
	case TOKEN_OFFSET:
		return "OFFSET"
	case TOKEN_AND:
		return "AND"
	case TOKEN_OR:
		return "OR"
	case TOKEN_NOT:
		return "NOT"
	case TOKEN_ISNULL:
		return "ISNULL"
	case TOKEN_LIKE:
		return "LIKE"
	case TOKEN_IDENTIFIER:
		return "identifier"
	case TOKEN_STRING_LITERAL:
		return "string literal"
	case TOKEN_NUMBER_LITERAL:
		return "number literal"
	case TOKEN_DEFAULT_FIELD:
		return "{defaultField}"
	default:
		return fmt.Sprintf("token(%d)", int(t))
	}
}

// Token is one lexical element of a DAL query.
type Token struct {
	Type   TokenType
	Lexeme string
	Pos    int
}

var keywords = map[string]TokenType{
	"select": TOKEN_SELECT,
	"from":   TOKEN_FROM,
	"where":  TOKEN_WHERE,
	"group":  TOKEN_GROUP,
	"order":  TOKEN_ORDER,
	"by":     TOKEN_BY,
	"asc":    TOKEN_ASC,
	"desc":   TOKEN_DESC,
	"limit":  TOKEN_LIMIT,
	"offset": TOKEN_OFFSET,
	"and":    TOKEN_AND,
	"or":     TOKEN_OR,
	"not":    TOKEN_NOT,
	"isnull": TOKEN_ISNULL,
	"like":   TOKEN_LIKE,
	"true":   TOKEN_TRUE,
	"false":  TOKEN_FALSE,
	"null":   TOKEN_NULL,
}

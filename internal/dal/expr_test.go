package dal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kommetio/kommet-core/internal/types"
)

func newPigeonRecord(t *testing.T, fields map[string]any) *types.Record {
	t.Helper()
	src := newFixtureSource(t)
	typ, _ := src.TypeByQualifiedName("app.Pigeon")
	rec := types.NewRecord(typ)
	for path, v := range fields {
		require.NoError(t, rec.SetField(path, v, src))
	}
	return rec
}

func TestExpressionFields(t *testing.T) {
	expr, err := ParseExpression("age > 10 AND (name = 'Zenek' OR father.name ISNULL) AND age < 100")
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "father.name", "name"}, expr.Fields())
}

func TestExpressionEval(t *testing.T) {
	rec := newPigeonRecord(t, map[string]any{
		"name": "Zenek",
		"age":  decimal.NewFromInt(7),
	})

	tests := []struct {
		expr string
		want bool
	}{
		{"age > 5", true},
		{"age > 7", false},
		{"age >= 7", true},
		{"age = 7", true},
		{"age <> 7", false},
		{"name = 'Zenek'", true},
		{"name <> 'Zenek'", false},
		{"name LIKE 'Zen%'", true},
		{"name LIKE 'Z_nek'", true},
		{"name LIKE 'zen%'", false},
		{"age > 5 AND name = 'Zenek'", true},
		{"age > 100 OR name = 'Zenek'", true},
		{"NOT(age > 5)", false},
		{"(age > 100 AND name = 'x') OR age = 7", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := ParseExpression(tt.expr)
			require.NoError(t, err)
			got, err := expr.Eval(rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpressionEvalNullSemantics(t *testing.T) {
	// age is never set, father is explicitly null.
	rec := newPigeonRecord(t, map[string]any{
		"name":   "Zenek",
		"father": nil,
	})

	tests := []struct {
		expr string
		want bool
	}{
		{"father ISNULL", true},
		{"father = null", true},
		{"father <> null", false},
		{"age ISNULL", true},
		{"age = 5", false},
		{"age <> 5", false},
		{"name ISNULL", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := ParseExpression(tt.expr)
			require.NoError(t, err)
			got, err := expr.Eval(rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpressionEvalReferenceByID(t *testing.T) {
	src := newFixtureSource(t)
	typ, _ := src.TypeByQualifiedName("app.Pigeon")
	dad := types.NewRecord(typ)
	dad.SetID(types.KID("0020000000002"))

	rec := newPigeonRecord(t, nil)
	require.NoError(t, rec.SetField("father", dad, src))

	expr, err := ParseExpression("father = '0020000000002'")
	require.NoError(t, err)
	got, err := expr.Eval(rec)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestExpressionEvalTypeMismatch(t *testing.T) {
	rec := newPigeonRecord(t, map[string]any{"name": "Zenek"})
	expr, err := ParseExpression("name > 5")
	require.NoError(t, err)
	_, err = expr.Eval(rec)
	assert.Error(t, err)
}

func TestParseExpressionSyntaxErrors(t *testing.T) {
	for _, text := range []string{"", "age >", "age 5", "AND age = 5", "age = 5 extra"} {
		t.Run(text, func(t *testing.T) {
			_, err := ParseExpression(text)
			assert.True(t, IsSyntaxError(err), "expected syntax error for %q, got %v", text, err)
		})
	}
}

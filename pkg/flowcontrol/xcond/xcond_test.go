package xcond

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
		err  bool
	}{
		{"int lt", Int(1), Int(2), -1, false},
		{"int float eq", Int(2), Float(2.0), 0, false},
		{"float int gt", Float(2.5), Int(2), 1, false},
		{"string lex", String("abc"), String("abd"), -1, false},
		{"string vs int numeric", String("10"), Int(9), 1, false},
		{"int vs string numeric", Int(3), String(" 3.0 "), 0, false},
		{"string not numeric", String("x"), Int(1), 0, true},
		{"bool", Bool(false), Bool(true), -1, false},
		{"bool vs int", Bool(true), Int(1), 0, true},
		{"bool vs string", Bool(true), String("true"), 0, true},
		{"invalid", Value{}, Int(1), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			if tt.err {
				assert.ErrorIs(t, err, ErrIncomparable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionEvaluate(t *testing.T) {
	attrs := map[string]Value{
		"method": String("GET"),
		"size":   Int(100),
	}

	ok, err := Condition{Field: "method", Op: OpEq, Value: String("GET")}.Evaluate(attrs)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Condition{Field: "size", Op: OpGe, Value: Float(100)}.Evaluate(attrs)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Condition{Field: "size", Op: OpLt, Value: Int(50)}.Evaluate(attrs)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Condition{Field: "missing", Op: OpEq, Value: Int(1)}.Evaluate(attrs)
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = Condition{Field: "size", Op: "like", Value: Int(1)}.Evaluate(attrs)
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestAll(t *testing.T) {
	attrs := map[string]Value{"method": String("OPTIONS"), "internal": Bool(true)}
	conds := []Condition{
		{Field: "method", Op: OpEq, Value: String("OPTIONS")},
		{Field: "internal", Op: OpEq, Value: Bool(true)},
	}
	assert.True(t, All(conds, attrs))
	assert.False(t, All(nil, attrs))

	conds = append(conds, Condition{Field: "internal", Op: OpGt, Value: Int(0)})
	assert.False(t, All(conds, attrs), "evaluation error counts as false")
}

func TestConfigCondition(t *testing.T) {
	c, err := Config{Field: "size", Op: ">=", Value: "10", Kind: "int"}.Condition()
	require.NoError(t, err)
	assert.Equal(t, OpGe, c.Op)
	assert.Equal(t, KindInt, c.Value.Kind())
	assert.Equal(t, "size ge int(10)", c.String())

	c, err = Config{Field: "path", Op: "eq", Value: "/health"}.Condition()
	require.NoError(t, err)
	assert.Equal(t, KindString, c.Value.Kind())

	_, err = Config{Field: "x", Op: "eq", Value: "abc", Kind: "int"}.Condition()
	assert.Error(t, err)
	_, err = Config{Field: "x", Op: "eq", Value: "1", Kind: "decimal"}.Condition()
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = Config{Op: "eq"}.Condition()
	assert.ErrorIs(t, err, ErrMissingField)
}

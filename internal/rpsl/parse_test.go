package rpsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleAsSet(t *testing.T) {
	expr, err := Parse("AS-FOO")
	require.NoError(t, err)
	unit, ok := expr.(Unit)
	require.True(t, ok)
	lit, ok := unit.Term.(LiteralTerm)
	require.True(t, ok)
	named, ok := lit.Set.(PrefixSetNamed)
	require.True(t, ok)
	assert.Equal(t, AsSet, named.Kind)
	assert.Equal(t, "AS-FOO", named.Name)
	assert.Equal(t, OpNone, lit.Op.Kind)
}

func TestParseAndOfTwoSets(t *testing.T) {
	expr, err := Parse("AS-FOO AND {0.0.0.0/0^8-24}")
	require.NoError(t, err)
	and, ok := expr.(And)
	require.True(t, ok)
	_, ok = and.Left.(LiteralTerm)
	require.True(t, ok)
	rightLit := and.Right.(LiteralTerm)
	plit, ok := rightLit.Set.(PrefixLiteral)
	require.True(t, ok)
	require.Len(t, plit.Entries, 1)
	assert.Equal(t, "0.0.0.0/0", plit.Entries[0].Prefix)
	assert.Equal(t, OpRange, plit.Entries[0].Op.Kind)
	assert.Equal(t, uint8(8), plit.Entries[0].Op.Lo)
	assert.Equal(t, uint8(24), plit.Entries[0].Op.Hi)
}

func TestParseNot(t *testing.T) {
	expr, err := Parse("NOT AS65000")
	require.NoError(t, err)
	not, ok := expr.(Not)
	require.True(t, ok)
	lit := not.Term.(LiteralTerm)
	named := lit.Set.(PrefixSetNamed)
	assert.Equal(t, AutNum, named.Kind)
	assert.Equal(t, "AS65000", named.Name)
}

func TestParseParenthesised(t *testing.T) {
	expr, err := Parse("(AS-FOO OR AS-BAR)")
	require.NoError(t, err)
	unit := expr.(Unit)
	paren, ok := unit.Term.(Parenthesised)
	require.True(t, ok)
	_, ok = paren.Expr.(Or)
	require.True(t, ok)
}

func TestParseNamedFilterSet(t *testing.T) {
	expr, err := Parse("fltr-foo")
	require.NoError(t, err)
	unit := expr.(Unit)
	named, ok := unit.Term.(Named)
	require.True(t, ok)
	assert.Equal(t, "fltr-foo", named.FilterSetName)
}

func TestParseMalformedIsError(t *testing.T) {
	_, err := Parse("error!")
	assert.Error(t, err)
}

func TestParseMultiplePrefixLiteralEntries(t *testing.T) {
	expr, err := Parse("{192.0.2.0/24, 198.51.100.0/23^+}")
	require.NoError(t, err)
	unit := expr.(Unit)
	lit := unit.Term.(LiteralTerm)
	plit := lit.Set.(PrefixLiteral)
	require.Len(t, plit.Entries, 2)
	assert.Equal(t, OpNone, plit.Entries[0].Op.Kind)
	assert.Equal(t, OpLessIncl, plit.Entries[1].Op.Kind)
}

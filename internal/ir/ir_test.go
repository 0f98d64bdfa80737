package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeNamespaceIntersects(t *testing.T) {
	nsA := NewNSSet(0, 1, 2)
	nsB := NewNSSet(1, 2, 3)
	a := SetConstraint{NS: &nsA}
	b := SetConstraint{NS: &nsB}

	merged, err := Merge(a, b)
	require.NoError(t, err)
	require.NotNil(t, merged.NS)
	assert.True(t, merged.NS.Contains(1))
	assert.True(t, merged.NS.Contains(2))
	assert.False(t, merged.NS.Contains(0))
	assert.False(t, merged.NS.Contains(3))
}

func TestMergeDepthConflict(t *testing.T) {
	a := SetConstraint{Depth: intPtr(1)}
	b := SetConstraint{Depth: intPtr(2)}
	_, err := Merge(a, b)
	assert.Error(t, err)
}

func TestMergeDepthBothNegativeNoConflict(t *testing.T) {
	a := SetConstraint{Depth: intPtr(-1)}
	b := SetConstraint{Depth: intPtr(-5)}
	merged, err := Merge(a, b)
	require.NoError(t, err)
	require.NotNil(t, merged.Depth)
	assert.Equal(t, -1, *merged.Depth)
}

func TestMergeLimitTakesMinimumTreatingNegativeAsInfinite(t *testing.T) {
	a := SetConstraint{Limit: intPtr(10)}
	b := SetConstraint{Limit: intPtr(-1)}
	merged, err := Merge(a, b)
	require.NoError(t, err)
	assert.Equal(t, 10, *merged.Limit)
}

func TestMergeRedirConflict(t *testing.T) {
	all := RedirectAll
	no := RedirectNoRedirect
	_, err := Merge(SetConstraint{Redir: &all}, SetConstraint{Redir: &no})
	assert.Error(t, err)
}

func TestQueryFindBinarySearch(t *testing.T) {
	q := &Query{Instructions: []Instruction{
		NewSet(0, []string{"A"}, SetConstraint{}),
		NewSet(1, []string{"B"}, SetConstraint{}),
		NewBinary(KindAnd, 2, 0, 1),
	}, Result: 2}

	assert.True(t, q.Sorted())
	assert.True(t, q.NoNop())
	assert.Equal(t, 2, q.Find(2))
	assert.Equal(t, -1, q.Find(99))
}

func TestNSEmptyDetection(t *testing.T) {
	empty := NewNSSet()
	inst := NewUnary(KindInCat, 1, 0, SetConstraint{NS: &empty})
	assert.True(t, inst.NSEmpty())

	inst2 := NewUnary(KindInCat, 1, 0, SetConstraint{})
	assert.False(t, inst2.NSEmpty())
}

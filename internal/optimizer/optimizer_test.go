package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milkydeferwm/pagelist-bot/internal/ir"
)

func TestRemoveRedundantToggleCollapsesDoubleToggle(t *testing.T) {
	q := &ir.Query{Instructions: []ir.Instruction{
		ir.NewSet(0, []string{"A"}, ir.SetConstraint{}),
		ir.NewToggle(1, 0),
		ir.NewToggle(2, 1),
	}, Result: 2}

	Optimize(q)

	assert.True(t, q.NoNop())
	// Both toggles cancel out: register 2 (and 1) disappear entirely, and
	// Result resolves straight through to the untouched Set at register 0.
	require.Len(t, q.Instructions, 1)
	assert.Equal(t, ir.RegID(0), q.Result)
}

func TestRemoveEmptyNSCollapsesToEmptySet(t *testing.T) {
	empty := ir.NewNSSet()
	q := &ir.Query{Instructions: []ir.Instruction{
		ir.NewSet(0, []string{"A"}, ir.SetConstraint{}),
		ir.NewUnary(ir.KindInCat, 1, 0, ir.SetConstraint{NS: &empty}),
	}, Result: 1}

	Optimize(q)

	idx := q.Find(1)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, ir.KindSet, q.Instructions[idx].Kind)
	assert.Empty(t, q.Instructions[idx].Titles)
}

func TestRemoveNopRedirectsConsumersAndResult(t *testing.T) {
	q := &ir.Query{Instructions: []ir.Instruction{
		ir.NewSet(0, []string{"A"}, ir.SetConstraint{}),
		ir.NewNop(1, 0),
		ir.NewBinary(ir.KindAnd, 2, 1, 0),
	}, Result: 1}

	Optimize(q)

	assert.True(t, q.NoNop())
	assert.Equal(t, ir.RegID(0), q.Result)
	idx := q.Find(2)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, ir.RegID(0), q.Instructions[idx].Op)
}

func TestRemoveNopFollowsChainOfNops(t *testing.T) {
	q := &ir.Query{Instructions: []ir.Instruction{
		ir.NewSet(0, []string{"A"}, ir.SetConstraint{}),
		ir.NewNop(1, 0),
		ir.NewNop(2, 1),
	}, Result: 2}

	Optimize(q)

	assert.True(t, q.NoNop())
	assert.Equal(t, ir.RegID(0), q.Result)
	assert.Len(t, q.Instructions, 1)
}

func TestOptimizeIsIdempotent(t *testing.T) {
	empty := ir.NewNSSet()
	q := &ir.Query{Instructions: []ir.Instruction{
		ir.NewSet(0, []string{"A"}, ir.SetConstraint{}),
		ir.NewToggle(1, 0),
		ir.NewToggle(2, 1),
		ir.NewUnary(ir.KindLink, 3, 2, ir.SetConstraint{NS: &empty}),
	}, Result: 3}

	Optimize(q)
	first := len(q.Instructions)
	Optimize(q)
	assert.Equal(t, first, len(q.Instructions))
	assert.True(t, q.NoNop())
	assert.True(t, q.Sorted())
}

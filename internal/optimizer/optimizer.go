// Package optimizer rewrites a compiled ir.Query into an equivalent, leaner
// program: redundant double-negations collapse, namespace filters known at
// compile time to match nothing collapse to an empty set, and Nop
// instructions left behind by the other two passes are elided by
// redirecting their consumers to the Nop's operand.
//
// Grounded on original_source/parser/src/optim.rs. Each pass is idempotent
// on its own; Optimize runs all three to a fixpoint so that a pass
// collapsing one instruction to Nop can expose further work for an earlier
// pass (e.g. a toggle(toggle(x)) chain revealed only once an intervening
// Nop has been elided).
package optimizer

import "github.com/milkydeferwm/pagelist-bot/internal/ir"

const maxPasses = 8

// Optimize rewrites q in place. The result satisfies invariant I3 (no Nop
// instruction survives) and remains sorted by Dest (invariant I2).
func Optimize(q *ir.Query) {
	for i := 0; i < maxPasses; i++ {
		changed := removeRedundantToggle(q)
		changed = removeEmptyNS(q) || changed
		changed = removeNop(q) || changed
		if !changed {
			return
		}
	}
}

// removeRedundantToggle finds toggle(toggle(x)) chains and turns both
// instructions into Nop, since toggling a namespace twice is the identity.
// Each Nop keeps its own original dest/op; removeNop's chain-following
// resolve() is what walks the resulting two-hop chain through to x.
func removeRedundantToggle(q *ir.Query) bool {
	changed := false
	for i := range q.Instructions {
		inst := &q.Instructions[i]
		if inst.Kind != ir.KindToggle {
			continue
		}
		innerIdx := q.Find(inst.Op)
		if innerIdx < 0 {
			continue
		}
		inner := &q.Instructions[innerIdx]
		if inner.Kind != ir.KindToggle {
			continue
		}
		*inst = ir.NewNop(inst.Dest, inst.Op)
		*inner = ir.NewNop(inner.Dest, inner.Op)
		changed = true
	}
	return changed
}

// removeEmptyNS collapses any instruction whose constraint has an
// explicitly empty namespace filter (ir.SetConstraint.NSEmpty) into an
// empty Set leaf at the same register: no remote query can ever return a
// page outside an empty namespace filter, so the whole instruction is
// known statically to produce nothing.
func removeEmptyNS(q *ir.Query) bool {
	changed := false
	for i := range q.Instructions {
		inst := &q.Instructions[i]
		if inst.IsPrimitive() {
			if inst.NSEmpty() {
				*inst = ir.NewSet(inst.Dest, nil, inst.Constraint)
				changed = true
			}
			continue
		}
		if inst.NSEmpty() {
			empty := ir.NewNSSet()
			*inst = ir.NewSet(inst.Dest, nil, ir.SetConstraint{NS: &empty})
			changed = true
		}
	}
	return changed
}

// removeNop resolves every Nop instruction's operand transitively (a Nop
// may itself point at another Nop), redirects all operand references and
// the Query's Result register to the resolved target, and then drops every
// Nop instruction from the sequence.
func removeNop(q *ir.Query) bool {
	nopTarget := make(map[ir.RegID]ir.RegID)
	for _, inst := range q.Instructions {
		if inst.IsNop() {
			nopTarget[inst.Dest] = inst.Op
		}
	}
	if len(nopTarget) == 0 {
		return false
	}

	resolve := func(r ir.RegID) ir.RegID {
		seen := make(map[ir.RegID]bool)
		for {
			t, ok := nopTarget[r]
			if !ok || seen[r] {
				return r
			}
			seen[r] = true
			r = t
		}
	}

	for i := range q.Instructions {
		inst := &q.Instructions[i]
		switch {
		case inst.IsBinary():
			inst.Op = resolve(inst.Op)
			inst.Op2 = resolve(inst.Op2)
		case inst.IsUnary():
			inst.Op = resolve(inst.Op)
		}
	}
	q.Result = resolve(q.Result)

	filtered := q.Instructions[:0]
	for _, inst := range q.Instructions {
		if !inst.IsNop() {
			filtered = append(filtered, inst)
		}
	}
	q.Instructions = filtered
	return true
}

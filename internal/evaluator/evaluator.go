// Package evaluator executes a compiled, optimized ir.Query against a
// MediaWiki site via a Gateway, implementing component C5. It is a linear
// register-file interpreter: each instruction's result is computed once,
// left to right, and stored in a register map keyed by ir.RegID, relying
// on invariant I1 (operand registers are always less than the consuming
// instruction's own Dest) to guarantee every operand is already resolved
// by the time it is needed.
//
// Grounded on original_source/src/solver/mod.rs (dispatch and short-circuit
// rules) and original_source/src/solver/apisolver.rs (per-operator remote
// query shape, BFS category traversal).
package evaluator

import (
	"context"

	"github.com/milkydeferwm/pagelist-bot/internal/ir"
	"github.com/milkydeferwm/pagelist-bot/internal/title"
)

// Gateway is the subset of the gateway.Client surface the evaluator needs,
// kept as an interface so tests can supply a stub instead of a live
// session.
type Gateway interface {
	ParseTitle(raw string) title.Title
	Links(ctx context.Context, titles []title.Title, cs ir.SetConstraint) (title.Set, error)
	LinksTo(ctx context.Context, titles []title.Title, cs ir.SetConstraint) (title.Set, error)
	EmbeddedIn(ctx context.Context, titles []title.Title, cs ir.SetConstraint) (title.Set, error)
	CategoryMembersOnce(ctx context.Context, category title.Title, cs ir.SetConstraint) (title.Set, error)
	PrefixIndex(ctx context.Context, prefix title.Title, cs ir.SetConstraint) (title.Set, error)
}

// Evaluate runs q against gw and returns the title set held by q's Result
// register on completion.
func Evaluate(ctx context.Context, q *ir.Query, gw Gateway) (title.Set, error) {
	values := make(map[ir.RegID]title.Set, len(q.Instructions))

	for _, inst := range q.Instructions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := evalOne(ctx, gw, inst, values)
		if err != nil {
			return nil, err
		}
		values[inst.Dest] = result
	}

	return values[q.Result], nil
}

func evalOne(ctx context.Context, gw Gateway, inst ir.Instruction, values map[ir.RegID]title.Set) (title.Set, error) {
	switch inst.Kind {
	case ir.KindSet:
		return evalSet(gw, inst), nil

	case ir.KindAnd:
		return title.Intersect(values[inst.Op], values[inst.Op2]), nil
	case ir.KindOr:
		return title.Union(values[inst.Op], values[inst.Op2]), nil
	case ir.KindExclude:
		return title.Difference(values[inst.Op], values[inst.Op2]), nil
	case ir.KindXor:
		return title.SymmetricDifference(values[inst.Op], values[inst.Op2]), nil

	case ir.KindToggle:
		return evalToggle(values[inst.Op]), nil

	case ir.KindLink:
		return evalRemote(ctx, values[inst.Op], inst.Constraint, gw.Links)
	case ir.KindLinkTo:
		return evalRemote(ctx, values[inst.Op], inst.Constraint, gw.LinksTo)
	case ir.KindEmbeddedIn:
		return evalRemote(ctx, values[inst.Op], inst.Constraint, gw.EmbeddedIn)

	case ir.KindInCat:
		return evalInCat(ctx, gw, values[inst.Op], inst.Constraint)

	case ir.KindPrefix:
		return evalPrefix(ctx, gw, values[inst.Op], inst.Constraint)

	case ir.KindNop:
		// Should not survive optimization (invariant I3); pass through
		// defensively rather than fail an otherwise-evaluable query.
		return values[inst.Op], nil

	default:
		return nil, &UnsupportedInstructionError{Kind: inst.Kind}
	}
}

func evalSet(gw Gateway, inst ir.Instruction) title.Set {
	out := title.NewSet()
	for _, raw := range inst.Titles {
		t := gw.ParseTitle(raw)
		if inst.Constraint.NS != nil && !inst.Constraint.NS.Contains(ir.NamespaceID(t.NS)) {
			continue
		}
		out.Add(t)
	}
	return applyLimit(out, inst.Constraint.Limit)
}

func evalToggle(operand title.Set) title.Set {
	out := title.NewSet()
	for t := range operand {
		out.Add(t.ToggleTalk())
	}
	return out
}

type remoteFetch func(ctx context.Context, titles []title.Title, cs ir.SetConstraint) (title.Set, error)

// evalRemote short-circuits an empty operand to the empty set without
// issuing a request, per the data model's empty-operand short-circuit.
func evalRemote(ctx context.Context, operand title.Set, cs ir.SetConstraint, fetch remoteFetch) (title.Set, error) {
	if len(operand) == 0 {
		return title.NewSet(), nil
	}
	return fetch(ctx, operand.Slice(), cs)
}

// evalPrefix enforces the singleton precondition: a prefix query names
// exactly one root page whose base name is the literal prefix, so an
// operand resolving to more than one title cannot be honored by a single
// apprefix request.
func evalPrefix(ctx context.Context, gw Gateway, operand title.Set, cs ir.SetConstraint) (title.Set, error) {
	if len(operand) == 0 {
		return title.NewSet(), nil
	}
	if len(operand) > 1 {
		return nil, &QueryForMultiplePagesError{Op: "prefix"}
	}
	root := operand.Slice()[0]
	return gw.PrefixIndex(ctx, root, cs)
}

// evalInCat performs a breadth-first traversal of the category tree
// rooted at operand, bounded by cs.Depth (negative meaning unbounded, the
// same convention ir.Merge uses for Limit), tracking visited titles to
// avoid infinite loops on category cycles and only re-expanding members
// that are themselves categories.
func evalInCat(ctx context.Context, gw Gateway, operand title.Set, cs ir.SetConstraint) (title.Set, error) {
	if len(operand) == 0 {
		return title.NewSet(), nil
	}

	depth := -1
	if cs.Depth != nil {
		depth = *cs.Depth
	}

	visited := title.NewSet()
	result := title.NewSet()
	frontier := operand.Slice()
	for _, t := range frontier {
		visited.Add(t)
	}

	for level := 0; len(frontier) > 0 && (depth < 0 || level <= depth); level++ {
		var next []title.Title
		for _, cat := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			members, err := gw.CategoryMembersOnce(ctx, cat, cs)
			if err != nil {
				return nil, err
			}
			for _, m := range members.Slice() {
				if visited.Contains(m) {
					continue
				}
				visited.Add(m)
				result.Add(m)
				if m.NS == int32(ir.NSCategory) {
					next = append(next, m)
				}
			}
		}
		frontier = next
	}

	return applyLimit(result, cs.Limit), nil
}

func applyLimit(s title.Set, limit *int) title.Set {
	if limit == nil || *limit < 0 || len(s) <= *limit {
		return s
	}
	titles := s.Slice()
	title.SortTitles(titles)
	return title.NewSet(titles[:*limit]...)
}

package parser

import (
	"fmt"

	"github.com/milkydeferwm/pagelist-bot/internal/ir"
)

// builder accumulates instructions in postorder emission order. Because a
// node's operand registers are always converted (and thus allocated) before
// the node's own destination register, the resulting sequence is sorted by
// Dest by construction (invariant I2) and every operand register is less
// than its instruction's Dest (invariant I1).
type builder struct {
	insts []ir.Instruction
	next  ir.RegID
}

func (b *builder) alloc() ir.RegID {
	id := b.next
	b.next++
	return id
}

func (b *builder) emit(inst ir.Instruction) ir.RegID {
	b.insts = append(b.insts, inst)
	return inst.Dest
}

// toIR lowers a parsed Expr tree into a compiled ir.Query, attaching and
// validating postfix constraint chains along the way. This mirrors
// original_source/parser/src/convert.rs's postorder walk plus its
// constraint-attachment fixup.
func toIR(e Expr) (*ir.Query, error) {
	b := &builder{}
	result, err := b.convert(e, ir.SetConstraint{})
	if err != nil {
		return nil, err
	}
	return &ir.Query{Instructions: b.insts, Result: result}, nil
}

// convert lowers e, threading down any constraint accumulated from
// enclosing .constraint(...) chains that have not yet been attached to a
// concrete instruction. Binary operators and Toggle distribute pending
// unchanged (Toggle transposes the namespace filter); every other node
// either folds pending into its own ConstrainedExpr fragments and keeps
// threading down, or attaches pending to the instruction it emits and
// validates it is legal there.
func (b *builder) convert(e Expr, pending ir.SetConstraint) (ir.RegID, error) {
	switch n := e.(type) {
	case *PageExpr:
		if err := validateConstraint(ir.KindSet, pending); err != nil {
			return 0, err
		}
		dest := b.alloc()
		return b.emit(ir.NewSet(dest, n.Titles, pending)), nil

	case *ConstrainedExpr:
		folded, err := foldFragments(n.Constraints)
		if err != nil {
			return 0, err
		}
		merged, err := ir.Merge(pending, folded)
		if err != nil {
			return 0, toSemanticErr(err)
		}
		return b.convert(n.Expr, merged)

	case *UnaryExpr:
		if n.Op == OpToggle {
			inner, err := b.convert(n.Expr, flipNS(pending))
			if err != nil {
				return 0, err
			}
			dest := b.alloc()
			return b.emit(ir.NewToggle(dest, inner)), nil
		}
		kind := unaryKind(n.Op)
		if err := validateConstraint(kind, pending); err != nil {
			return 0, err
		}
		inner, err := b.convert(n.Expr, ir.SetConstraint{})
		if err != nil {
			return 0, err
		}
		dest := b.alloc()
		return b.emit(ir.NewUnary(kind, dest, inner, pending)), nil

	case *BinaryExpr:
		left, err := b.convert(n.Left, pending)
		if err != nil {
			return 0, err
		}
		right, err := b.convert(n.Right, pending)
		if err != nil {
			return 0, err
		}
		dest := b.alloc()
		return b.emit(ir.NewBinary(binaryKind(n.Op), dest, left, right)), nil

	default:
		return 0, &SemanticError{Msg: fmt.Sprintf("unhandled expression node %T", e)}
	}
}

func unaryKind(op UnaryOp) ir.Kind {
	switch op {
	case OpLink:
		return ir.KindLink
	case OpLinkTo:
		return ir.KindLinkTo
	case OpEmbeddedIn:
		return ir.KindEmbeddedIn
	case OpInCategory:
		return ir.KindInCat
	case OpPrefix:
		return ir.KindPrefix
	default:
		panic("unreachable unary op")
	}
}

func binaryKind(op BinaryOp) ir.Kind {
	switch op {
	case OpAnd:
		return ir.KindAnd
	case OpOr:
		return ir.KindOr
	case OpExclude:
		return ir.KindExclude
	case OpXor:
		return ir.KindXor
	default:
		panic("unreachable binary op")
	}
}

// flipNS returns a copy of cs with the namespace filter's ids XORed with 1
// (the talk/subject namespace pairing toggle rule), leaving every other
// field untouched.
func flipNS(cs ir.SetConstraint) ir.SetConstraint {
	if cs.NS == nil {
		return cs
	}
	flipped := make(ir.NSSet, len(*cs.NS))
	for id := range *cs.NS {
		flipped[id^1] = struct{}{}
	}
	out := cs
	out.NS = &flipped
	return out
}

// foldFragments merges the fragments of one postfix constraint chain into a
// single SetConstraint, left to right, using the same merge rule Merge
// applies across chains (so `.ns(0).ns(1)` intersects and `.depth(1).depth(2)`
// conflicts, exactly as attaching them via two separate chains would).
func foldFragments(frags []constraintFragment) (ir.SetConstraint, error) {
	acc := ir.SetConstraint{}
	for _, f := range frags {
		merged, err := ir.Merge(acc, fragmentConstraint(f))
		if err != nil {
			return ir.SetConstraint{}, toSemanticErr(err)
		}
		acc = merged
	}
	return acc, nil
}

func fragmentConstraint(f constraintFragment) ir.SetConstraint {
	switch f.kind {
	case "ns":
		s := ir.NewNSSet(f.ns...)
		return ir.SetConstraint{NS: &s}
	case "depth":
		n := f.num
		return ir.SetConstraint{Depth: &n}
	case "limit":
		n := f.num
		return ir.SetConstraint{Limit: &n}
	case "redir":
		r := f.redir
		return ir.SetConstraint{Redir: &r}
	case "directlink":
		v := f.flag
		return ir.SetConstraint{DirectLink: &v}
	case "resolveredir":
		v := f.flag
		return ir.SetConstraint{ResolveRedir: &v}
	default:
		return ir.SetConstraint{}
	}
}

func toSemanticErr(err error) error {
	var conflict ir.ErrConflict
	if ok := asErrConflict(err, &conflict); ok {
		return &SemanticError{Msg: "conflicting constraint field: " + conflict.Field}
	}
	return err
}

func asErrConflict(err error, target *ir.ErrConflict) bool {
	c, ok := err.(ir.ErrConflict)
	if ok {
		*target = c
	}
	return ok
}

// validateConstraint enforces the per-operator allowed-field table:
// each operator's remote query shape determines which modifiers it can
// honor, grounded on original_source/src/parser/convert.rs.
func validateConstraint(kind ir.Kind, cs ir.SetConstraint) error {
	reject := func(cond bool, field string) error {
		if cond {
			return &SemanticError{Msg: fmt.Sprintf("%s does not accept .%s(...)", kind, field)}
		}
		return nil
	}

	switch kind {
	case ir.KindLink:
		if err := reject(cs.Depth != nil, "depth"); err != nil {
			return err
		}
		if err := reject(cs.DirectLink != nil, "directlink"); err != nil {
			return err
		}
		if cs.Redir != nil && *cs.Redir != ir.RedirectAll {
			return &SemanticError{Msg: "link does not accept .redir(...) other than all"}
		}
	case ir.KindLinkTo:
		if err := reject(cs.Depth != nil, "depth"); err != nil {
			return err
		}
	case ir.KindEmbeddedIn:
		if err := reject(cs.Depth != nil, "depth"); err != nil {
			return err
		}
		if err := reject(cs.DirectLink != nil, "directlink"); err != nil {
			return err
		}
	case ir.KindInCat:
		if err := reject(cs.DirectLink != nil, "directlink"); err != nil {
			return err
		}
		if cs.Redir != nil && *cs.Redir != ir.RedirectAll {
			return &SemanticError{Msg: "incat does not accept .redir(...) other than all"}
		}
	case ir.KindPrefix:
		if err := reject(cs.Depth != nil, "depth"); err != nil {
			return err
		}
		if err := reject(cs.DirectLink != nil, "directlink"); err != nil {
			return err
		}
		if err := reject(cs.ResolveRedir != nil, "resolveredir"); err != nil {
			return err
		}
	case ir.KindSet:
		if err := reject(cs.Depth != nil, "depth"); err != nil {
			return err
		}
		if err := reject(cs.Redir != nil, "redir"); err != nil {
			return err
		}
		if err := reject(cs.DirectLink != nil, "directlink"); err != nil {
			return err
		}
		if err := reject(cs.ResolveRedir != nil, "resolveredir"); err != nil {
			return err
		}
	}
	return nil
}

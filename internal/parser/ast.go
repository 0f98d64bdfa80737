package parser

import "github.com/milkydeferwm/pagelist-bot/internal/ir"

// UnaryOp enumerates the surface unary operators of spec §4.1.
type UnaryOp int

const (
	OpLink UnaryOp = iota
	OpLinkTo
	OpEmbeddedIn
	OpInCategory
	OpToggle
	OpPrefix
)

// BinaryOp enumerates the surface infix set operators.
type BinaryOp int

const (
	OpAnd BinaryOp = iota
	OpOr
	OpExclude
	OpXor
)

// constraintFragment is one piece of a postfix `.constraint(...)` chain,
// e.g. `.ns(0,1)` or `.depth(-1)`, before the fragments of one chain are
// folded into a single ir.SetConstraint.
type constraintFragment struct {
	kind  string // "ns", "depth", "redir", "directlink", "resolveredir", "limit"
	ns    []ir.NamespaceID
	num   int
	redir ir.RedirectFilter
	flag  bool
}

// Expr is the AST produced by the parser, mirroring
// original_source/parser/src/ast.rs: a page literal, a unary operator
// application, a binary operator application, or a constrained
// sub-expression.
type Expr interface {
	isExpr()
}

type PageExpr struct {
	Titles []string
}

type UnaryExpr struct {
	Op   UnaryOp
	Expr Expr
}

type BinaryExpr struct {
	Left  Expr
	Op    BinaryOp
	Right Expr
}

type ConstrainedExpr struct {
	Expr        Expr
	Constraints []constraintFragment
}

func (*PageExpr) isExpr()        {}
func (*UnaryExpr) isExpr()       {}
func (*BinaryExpr) isExpr()      {}
func (*ConstrainedExpr) isExpr() {}

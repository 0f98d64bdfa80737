package parser

import "fmt"

// ParseError signals ill-formed surface syntax (spec §7's "Parse" class).
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

// SemanticError signals a well-formed expression that violates a
// constraint rule: a merge conflict, or a modifier illegal for the
// operator it attaches to (spec §7's "Semantic" class).
type SemanticError struct {
	Msg string
}

func (e *SemanticError) Error() string { return "semantic error: " + e.Msg }

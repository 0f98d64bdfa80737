package evaluator

import (
	"fmt"

	"github.com/milkydeferwm/pagelist-bot/internal/ir"
)

// QueryForMultiplePagesError is raised when an operator that can only
// root its remote query at a single page (currently Prefix) is given an
// operand set that resolved to more than one title.
type QueryForMultiplePagesError struct {
	Op string
}

func (e *QueryForMultiplePagesError) Error() string {
	return fmt.Sprintf("evaluator: %s cannot be evaluated against more than one page at once", e.Op)
}

// UnsupportedInstructionError signals an ir.Instruction.Kind the evaluator
// has no dispatch case for; this should be unreachable for any Query
// produced by the parser, and indicates an IR-construction bug rather
// than a user-facing condition.
type UnsupportedInstructionError struct {
	Kind ir.Kind
}

func (e *UnsupportedInstructionError) Error() string {
	return fmt.Sprintf("evaluator: unsupported instruction kind %s", e.Kind)
}

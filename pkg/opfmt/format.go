// Package opfmt holds the handful of value/compare helpers (D2/P0):
// formatting a Value for a textual target (used by the CLI's dump table),
// and normalising the six comparison opcodes down to the smaller set the
// Piet lowerer implements directly. The Desmos lowerer renders its
// comparisons itself and does not use this package.
package opfmt

import (
	"fmt"

	"github.com/pogorzelski/elvmgo/pkg/ir"
)

// FormatValue renders a Value the way a textual target (Desmos LaTeX,
// diagnostic dumps) names it: a register by its symbol, an immediate as a
// decimal literal.
func FormatValue(v ir.Value) string {
	switch v.Kind {
	case ir.REG:
		return v.Reg.String()
	case ir.IMM:
		return fmt.Sprintf("%d", v.Imm)
	}
	return "?"
}

// Normalized is a comparison reduced to one of the three shapes both
// backends implement directly: equal, not-equal, or greater-than — with
// Swapped indicating the operands must be pushed/read in reverse order
// to realise the original comparison via GT.
//
// Grounded on original_source/target/piet.c's piet_cmp/normalize_cond:
// JLT normalises to "GT with operands swapped", JGE to "LE (itself GT,NOT)
// with operands swapped", matching spec.md §4.6.
type Normalized struct {
	Base    ir.Op // EQ, NE, or GT
	Negate  bool  // true for LE (GT,NOT) — see below
	Swapped bool  // true when lhs/rhs must be swapped before comparing
}

// NormalizeCond reduces one of EQ/NE/LT/GT/LE/GE (or its jump-family
// counterpart) to a Normalized form expressed purely in terms of EQ, NE,
// and GT, per §4.6: "<" becomes reversed ">", "≥" becomes reversed "≤",
// and "≤" itself is "GT, NOT".
func NormalizeCond(op ir.Op) Normalized {
	switch ir.CondBase(op) {
	case ir.EQ:
		return Normalized{Base: ir.EQ}
	case ir.NE:
		return Normalized{Base: ir.NE}
	case ir.GT:
		return Normalized{Base: ir.GT}
	case ir.LT:
		return Normalized{Base: ir.GT, Swapped: true}
	case ir.LE:
		return Normalized{Base: ir.GT, Negate: true}
	case ir.GE:
		return Normalized{Base: ir.GT, Negate: true, Swapped: true}
	}
	return Normalized{Base: ir.EQ}
}

// Package cnf holds the literal and clause types shared between the
// solving session, the engine adapters, and the DIMACS codecs.
package cnf

import "fmt"

// Var is a 0-based Boolean variable index.  The variable universe of a
// session grows monotonically; variables are never removed.
type Var uint32

func (v Var) String() string {
	return fmt.Sprintf("v%d", v)
}

// Pos returns the literal asserting v.
func (v Var) Pos() Lit {
	return Lit(v << 1)
}

// Neg returns the literal negating v.
func (v Var) Neg() Lit {
	return Lit(v<<1 | 1)
}

// Lit is a literal: a variable together with a polarity.  The variable
// index sits in the high bits and the polarity in the low bit, with 0
// meaning asserted and 1 meaning negated, so v.Pos() == Lit(2*v).
type Lit uint32

// LitNull is the zero literal.  It never denotes a variable and marks
// end-of-clause in the DIMACS wire format.
const LitNull Lit = 0

// MkLit builds a literal from a variable and a polarity.
func MkLit(v Var, pos bool) Lit {
	if pos {
		return v.Pos()
	}
	return v.Neg()
}

// Var returns the variable of m.
func (m Lit) Var() Var {
	return Var(m >> 1)
}

// IsPos reports whether m asserts its variable.
func (m Lit) IsPos() bool {
	return m&1 == 0
}

// Not returns the negation of m.
func (m Lit) Not() Lit {
	return m ^ 1
}

// Dimacs returns the signed external representation of m: magnitude is
// the variable index plus one, sign is the polarity.
func (m Lit) Dimacs() int {
	d := int(m.Var()) + 1
	if m.IsPos() {
		return d
	}
	return -d
}

func (m Lit) String() string {
	return fmt.Sprintf("%d", m.Dimacs())
}

// InvalidLiteralError reports a malformed external literal.  The value
// is the rejected signed representation.
type InvalidLiteralError int

func (e InvalidLiteralError) Error() string {
	return fmt.Sprintf("invalid literal %d: zero is reserved as the clause terminator", int(e))
}

// Dimacs2Lit converts the signed external representation to a Lit.  Zero
// is reserved and yields an InvalidLiteralError.
func Dimacs2Lit(d int) (Lit, error) {
	if d == 0 {
		return LitNull, InvalidLiteralError(d)
	}
	if d > 0 {
		return Var(d - 1).Pos(), nil
	}
	return Var(-d - 1).Neg(), nil
}

package cnf

import (
	"strconv"
	"strings"
)

// Clause is a disjunction of literals.  Order is irrelevant to the
// formula but preserved as staged.
type Clause []Lit

// Dimacs returns the signed external representation of the clause,
// without the trailing terminator.
func (c Clause) Dimacs() []int {
	ds := make([]int, len(c))
	for i, m := range c {
		ds[i] = m.Dimacs()
	}
	return ds
}

func (c Clause) String() string {
	parts := make([]string, 0, len(c)+1)
	for _, m := range c {
		parts = append(parts, strconv.Itoa(m.Dimacs()))
	}
	parts = append(parts, "0")
	return strings.Join(parts, " ")
}

package session

import "github.com/satctl/satctl/pkg/cnf"

// stagingBuffer accumulates the literals of one clause under
// construction.  A commit consumes the buffer exactly once; reset
// discards a malformed in-progress clause without touching the engine.
type stagingBuffer struct {
	lits  []cnf.Lit
	dirty bool
}

func (b *stagingBuffer) push(m cnf.Lit) {
	b.lits = append(b.lits, m)
	b.dirty = true
}

func (b *stagingBuffer) reset() {
	b.lits = b.lits[:0]
	b.dirty = false
}

// take consumes and empties the buffer.  The returned clause aliases
// fresh storage so later pushes cannot mutate a committed clause.
func (b *stagingBuffer) take() cnf.Clause {
	c := make(cnf.Clause, len(b.lits))
	copy(c, b.lits)
	b.reset()
	return c
}

// assumptionStack holds the one-shot literal assumptions for the next
// solve call.  Append only between solves; cleared unconditionally when
// a solve returns.
type assumptionStack struct {
	lits []cnf.Lit
}

func (a *assumptionStack) push(m cnf.Lit) {
	a.lits = append(a.lits, m)
}

// clear is idempotent.
func (a *assumptionStack) clear() {
	a.lits = a.lits[:0]
}

func (a *assumptionStack) slice() []cnf.Lit {
	return a.lits
}

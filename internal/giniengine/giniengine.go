// Package giniengine adapts github.com/go-air/gini to the engine
// boundary.  gini is the default CDCL engine of the control plane.
package giniengine

import (
	"sync/atomic"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"

	"github.com/satctl/satctl/pkg/cnf"
	"github.com/satctl/satctl/pkg/engine"
)

// pollInterval bounds the latency between a cancellation request and
// the engine observing it.
const pollInterval = 20 * time.Millisecond

type Engine struct {
	g       *gini.Gini
	nVars   int
	unsat   bool
	lastRes engine.Result

	// counters are read by stat samplers while Solve runs.
	variables uint64
	clauses   uint64
	literals  uint64
	learnts   uint64
	solves    uint64
}

var _ engine.Engine = (*Engine)(nil)

// New returns an Engine over a fresh gini solver.
func New() *Engine {
	return &Engine{g: gini.New()}
}

func (e *Engine) NewVariable() cnf.Var {
	v := cnf.Var(e.nVars)
	e.nVars++
	atomic.StoreUint64(&e.variables, uint64(e.nVars))
	return v
}

func (e *Engine) NumVariables() int {
	return e.nVars
}

// grow extends the universe so that every literal of c is in range.
// gini grows its own tables lazily on Add, so only the count is kept
// here.
func (e *Engine) grow(c cnf.Clause) {
	for _, m := range c {
		if int(m.Var()) >= e.nVars {
			e.nVars = int(m.Var()) + 1
		}
	}
	atomic.StoreUint64(&e.variables, uint64(e.nVars))
}

func (e *Engine) AddClause(c cnf.Clause) bool {
	e.grow(c)
	atomic.AddUint64(&e.clauses, 1)
	atomic.AddUint64(&e.literals, uint64(len(c)))
	if len(c) == 0 {
		// The empty clause is a contradiction on its own; it never
		// reaches gini, the verdict is latched here instead.
		e.unsat = true
		return true
	}
	if e.unsat {
		return true
	}
	for _, m := range c {
		e.g.Add(z.Dimacs2Lit(m.Dimacs()))
	}
	e.g.Add(z.LitNull)
	return false
}

// AddLearnt adds a redundant clause.  gini has no separate learnt-clause
// channel, and since learnt clauses are implied by the original set,
// teaching them as ordinary clauses leaves the formula equivalent.
func (e *Engine) AddLearnt(c cnf.Clause) bool {
	e.grow(c)
	atomic.AddUint64(&e.learnts, 1)
	if len(c) == 0 {
		e.unsat = true
		return true
	}
	if e.unsat {
		return true
	}
	for _, m := range c {
		e.g.Add(z.Dimacs2Lit(m.Dimacs()))
	}
	e.g.Add(z.LitNull)
	return false
}

func (e *Engine) Solve(assumptions []cnf.Lit, cancel <-chan struct{}) engine.Result {
	defer atomic.AddUint64(&e.solves, 1)
	if e.unsat {
		e.lastRes = engine.Unsatisfiable
		return engine.Unsatisfiable
	}
	// Assumptions are queued on gini only once search is certain to
	// run: gini consumes untested assumptions on its next Solve, so an
	// early return here would leak them into a later call.
	select {
	case <-cancel:
		e.lastRes = engine.Unknown
		return engine.Unknown
	default:
	}
	for _, m := range assumptions {
		e.g.Assume(z.Dimacs2Lit(m.Dimacs()))
	}
	if cancel == nil {
		e.lastRes = engine.Result(e.g.Solve())
		return e.lastRes
	}
	h := e.g.GoSolve()
	for {
		select {
		case <-cancel:
			e.lastRes = engine.Result(h.Stop())
			return e.lastRes
		default:
		}
		if res, done := h.Test(); done {
			e.lastRes = engine.Result(res)
			return e.lastRes
		}
		select {
		case <-cancel:
			e.lastRes = engine.Result(h.Stop())
			return e.lastRes
		case <-time.After(pollInterval):
		}
	}
}

func (e *Engine) Value(m cnf.Lit) engine.Value {
	if e.lastRes != engine.Satisfiable || int(m.Var()) >= e.nVars {
		return engine.Undefined
	}
	if e.g.Value(z.Dimacs2Lit(m.Dimacs())) {
		return engine.True
	}
	return engine.False
}

// Eliminate runs a unit-propagation consistency pass over the original
// clauses.  gini exposes no clause elimination, so the pass is a
// Test/Untest probe; it still catches formulas refutable without
// search.  preserveModel is accepted for interface compatibility.
func (e *Engine) Eliminate(_ bool) bool {
	if e.unsat {
		return true
	}
	res, _ := e.g.Test(nil)
	e.g.Untest()
	if res == int(engine.Unsatisfiable) {
		e.unsat = true
		return true
	}
	return false
}

// Stats is safe to call while Solve runs.  gini does not export its
// search-internal counters (decisions, conflicts, restarts), so those
// fields stay zero for this engine.
func (e *Engine) Stats() engine.Stats {
	return engine.Stats{
		Variables: atomic.LoadUint64(&e.variables),
		Clauses:   atomic.LoadUint64(&e.clauses),
		Literals:  atomic.LoadUint64(&e.literals),
		Learnts:   atomic.LoadUint64(&e.learnts),
		Solves:    atomic.LoadUint64(&e.solves),
	}
}

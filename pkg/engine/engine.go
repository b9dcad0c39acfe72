// Package engine defines the boundary to the wrapped CDCL solving
// engine.  The control plane never reaches past this interface: engines
// are supplied by dependency injection at session construction.
package engine

import "github.com/satctl/satctl/pkg/cnf"

// Result is a solve verdict.  The numeric values follow the usual SAT
// solver convention (1 sat, 0 unknown, -1 unsat).
type Result int8

const (
	Unsatisfiable Result = -1
	Unknown       Result = 0
	Satisfiable   Result = 1
)

func (r Result) String() string {
	switch r {
	case Satisfiable:
		return "SATISFIABLE"
	case Unsatisfiable:
		return "UNSATISFIABLE"
	default:
		return "INDETERMINATE"
	}
}

// Value is the truth value of a literal in a model.
type Value int8

const (
	Undefined Value = iota
	True
	False
)

func (v Value) String() string {
	switch v {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "undefined"
	}
}

// Engine is the solving-engine collaborator.  Implementations are not
// required to be safe for concurrent use except for Stats, which must
// be readable while Solve runs.
type Engine interface {
	// NewVariable grows the engine's variable universe by one and
	// returns the new variable.
	NewVariable() cnf.Var

	// NumVariables returns the current size of the variable universe.
	NumVariables() int

	// AddClause adds one original clause.  It returns true when the
	// engine detects an immediate contradiction, after which the
	// formula is permanently unsatisfiable.  An empty clause is legal
	// and is such a contradiction.
	AddClause(c cnf.Clause) (unsat bool)

	// AddLearnt adds one redundant clause assumed to be implied by the
	// original formula.
	AddLearnt(c cnf.Clause) (unsat bool)

	// Solve searches under the given assumptions.  When cancel is
	// closed before a verdict is reached the engine stops at its next
	// safe point and returns Unknown.
	Solve(assumptions []cnf.Lit, cancel <-chan struct{}) Result

	// Value reports the truth value of m in the model of the most
	// recent Satisfiable result.  Undefined otherwise.
	Value(m cnf.Lit) Value

	// Eliminate runs the engine's one-time simplification pass over
	// the original clauses.  It returns true when simplification alone
	// proves the formula unsatisfiable.
	Eliminate(preserveModel bool) (unsat bool)

	// Stats returns a snapshot of the engine's monotonic counters.
	Stats() Stats
}

// Stats are monotonic search counters since engine creation.  Engines
// report the counters they expose; the rest stay zero.
type Stats struct {
	Variables    uint64
	Clauses      uint64
	Literals     uint64
	Learnts      uint64
	Decisions    uint64
	Conflicts    uint64
	Propagations uint64
	Restarts     uint64
	Reductions   uint64
	Solves       uint64
}

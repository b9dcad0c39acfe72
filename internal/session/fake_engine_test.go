package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satctl/satctl/internal/proof"
	"github.com/satctl/satctl/pkg/cnf"
	"github.com/satctl/satctl/pkg/engine"
)

// fakeEngine scripts verdicts and search counters, standing in for
// engines that expose the counters gini keeps private.
type fakeEngine struct {
	nVars   int
	verdict engine.Result
	stats   engine.Stats
	// perSolve is added to the counters on every solve
	perSolve engine.Stats
}

func (f *fakeEngine) NewVariable() cnf.Var {
	v := cnf.Var(f.nVars)
	f.nVars++
	f.stats.Variables = uint64(f.nVars)
	return v
}

func (f *fakeEngine) NumVariables() int { return f.nVars }

func (f *fakeEngine) AddClause(c cnf.Clause) bool {
	f.stats.Clauses++
	f.stats.Literals += uint64(len(c))
	return len(c) == 0
}

func (f *fakeEngine) AddLearnt(c cnf.Clause) bool {
	f.stats.Learnts++
	return len(c) == 0
}

func (f *fakeEngine) Solve(_ []cnf.Lit, _ <-chan struct{}) engine.Result {
	f.stats.Solves++
	f.stats.Decisions += f.perSolve.Decisions
	f.stats.Conflicts += f.perSolve.Conflicts
	f.stats.Propagations += f.perSolve.Propagations
	f.stats.Restarts += f.perSolve.Restarts
	f.stats.Reductions += f.perSolve.Reductions
	return f.verdict
}

func (f *fakeEngine) Value(cnf.Lit) engine.Value { return engine.Undefined }

func (f *fakeEngine) Eliminate(bool) bool { return false }

func (f *fakeEngine) Stats() engine.Stats { return f.stats }

func TestStatsMonotonicAcrossSolves(t *testing.T) {
	fake := &fakeEngine{
		verdict:  engine.Satisfiable,
		perSolve: engine.Stats{Decisions: 7, Conflicts: 3, Propagations: 19, Restarts: 1, Reductions: 1},
	}
	s := newSession(t, WithEngine(fake))

	prev := s.Stats().Engine
	for i := 0; i < 4; i++ {
		s.Solve()
		cur := s.Stats().Engine
		assert.GreaterOrEqual(t, cur.Decisions, prev.Decisions)
		assert.GreaterOrEqual(t, cur.Conflicts, prev.Conflicts)
		assert.GreaterOrEqual(t, cur.Propagations, prev.Propagations)
		assert.GreaterOrEqual(t, cur.Restarts, prev.Restarts)
		assert.GreaterOrEqual(t, cur.Solves, prev.Solves)
		prev = cur
	}
}

func TestSeriesCarriesEngineDeltas(t *testing.T) {
	fake := &fakeEngine{
		verdict:  engine.Satisfiable,
		perSolve: engine.Stats{Decisions: 7, Conflicts: 3, Restarts: 1},
	}
	s := newSession(t, WithEngine(fake))
	s.Solve()
	s.Solve()

	series := s.Series()
	assert.Equal(t, []uint64{7, 7}, series["decisions"])
	assert.Equal(t, []uint64{3, 3}, series["conflicts"])
	assert.Equal(t, []uint64{1, 1}, series["restarts"])
}

func TestCloseSurfacesProofFailure(t *testing.T) {
	emitter, err := proof.New(filepath.Join(t.TempDir(), "proof.drup"))
	require.NoError(t, err)
	// a target closed underneath the session makes the terminator
	// unwritable, which must not pass silently
	require.NoError(t, emitter.Close())

	fake := &fakeEngine{verdict: engine.Unsatisfiable}
	s := newSession(t, WithEngine(fake), WithProof(emitter))
	assert.Equal(t, engine.Unsatisfiable, s.Solve())
	assert.Error(t, s.Close())
}

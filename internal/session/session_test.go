package session

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satctl/satctl/internal/proof"
	"github.com/satctl/satctl/pkg/cnf"
	"github.com/satctl/satctl/pkg/engine"
)

func newSession(t *testing.T, options ...Option) *Session {
	t.Helper()
	s, err := New(options...)
	require.NoError(t, err)
	return s
}

func commit(t *testing.T, s *Session, ds ...int) bool {
	t.Helper()
	for _, d := range ds {
		require.NoError(t, s.StageClauseLiteral(d))
	}
	return s.CommitClause()
}

func TestLazyUniverseGrowth(t *testing.T) {
	s := newSession(t)
	assert.Equal(t, 0, s.NumVariables())
	require.NoError(t, s.StageClauseLiteral(5))
	assert.Equal(t, 5, s.NumVariables())
	require.NoError(t, s.StageClauseLiteral(-2))
	assert.Equal(t, 5, s.NumVariables())
	s.CommitClause()

	// explicit growth composes with the implicit kind
	assert.Equal(t, cnf.Var(5), s.AddVariable())
	assert.Equal(t, 6, s.NumVariables())
}

func TestStagingResetIsAtomic(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.StageClauseLiteral(1))
	require.NoError(t, s.StageClauseLiteral(2))
	s.ResetClause()
	assert.False(t, s.CommitClause())
	assert.Equal(t, 0, s.Stats().Clauses)

	// a discarded clause must not constrain the search
	commit(t, s, -1)
	commit(t, s, -2)
	assert.Equal(t, engine.Satisfiable, s.Solve())
}

func TestCommitOnCleanBufferIsNoOp(t *testing.T) {
	s := newSession(t)
	assert.False(t, s.CommitClause())
	assert.False(t, s.CommitLearnt())
	assert.Equal(t, 0, s.Stats().Clauses)
}

func TestSolveForcedLiteral(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, 2)
	commit(t, s, -1, 2)
	require.Equal(t, engine.Satisfiable, s.Solve())

	// 2 false would demand both 1 and not 1, so 2 holds in every model
	v, err := s.Value(2)
	require.NoError(t, err)
	assert.Equal(t, engine.True, v)

	// every original clause is satisfied by the model
	for _, c := range [][]int{{1, 2}, {-1, 2}} {
		sat := false
		for _, d := range c {
			v, err := s.Value(d)
			require.NoError(t, err)
			if v == engine.True {
				sat = true
			}
		}
		assert.True(t, sat, "clause %v not satisfied by model", c)
	}
}

func TestSolveUnsat(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, 2)
	commit(t, s, -1, 2)
	commit(t, s, -2)
	assert.Equal(t, engine.Unsatisfiable, s.Solve())
	_, err := s.Value(1)
	var noModel NoModelAvailableError
	assert.ErrorAs(t, err, &noModel)
}

func TestAssumptionIsolation(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, 2)
	require.NoError(t, s.Assume(-1))
	require.NoError(t, s.Assume(-2))
	assert.Equal(t, engine.Unsatisfiable, s.Solve())

	// assumptions were one-shot; the formula alone is satisfiable
	assert.Equal(t, engine.Satisfiable, s.Solve())
}

func TestAssumptionsClearedEvenOnManualClear(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1)
	require.NoError(t, s.Assume(-1))
	s.ClearAssumptions()
	s.ClearAssumptions()
	assert.Equal(t, engine.Satisfiable, s.Solve())
}

func TestAssumptionNeverGrowsUniverse(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1)
	err := s.Assume(7)
	var unknown UnknownVariableError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, UnknownVariableError(7), unknown)
	assert.Contains(t, err.Error(), "outside the universe")
	assert.Equal(t, 1, s.NumVariables())
}

func TestZeroLiteralRejected(t *testing.T) {
	s := newSession(t)
	var invalid cnf.InvalidLiteralError

	require.ErrorAs(t, s.StageClauseLiteral(0), &invalid)
	require.ErrorAs(t, s.StageLearntLiteral(0), &invalid)
	commit(t, s, 1)
	require.ErrorAs(t, s.Assume(0), &invalid)

	// the rejected pushes left no trace
	assert.Equal(t, 1, s.Stats().Clauses)
	assert.Equal(t, engine.Satisfiable, s.Solve())
}

func TestValueBeforeAnySolve(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1)
	_, err := s.Value(1)
	var noModel NoModelAvailableError
	require.ErrorAs(t, err, &noModel)
	assert.Equal(t, engine.Unknown, noModel.LastResult)
}

func TestPreprocessDetectsUnsat(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1)
	commit(t, s, -1)
	unsat, err := s.Preprocess()
	require.NoError(t, err)
	assert.True(t, unsat)

	// sticky: search is never invoked again
	assert.Equal(t, engine.Unsatisfiable, s.Solve())
	assert.Equal(t, engine.Unsatisfiable, s.Solve())
}

func TestPreprocessAtMostOnce(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, 2)
	_, err := s.Preprocess()
	require.NoError(t, err)
	_, err = s.Preprocess()
	assert.Error(t, err)
}

func TestPreprocessRejectedAfterAssume(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, 2)
	require.NoError(t, s.Assume(1))
	_, err := s.Preprocess()
	assert.Error(t, err)
}

func TestAssumptionUnsatIsNotSticky(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, 2)
	require.NoError(t, s.Assume(-1))
	require.NoError(t, s.Assume(-2))
	require.Equal(t, engine.Unsatisfiable, s.Solve())

	// the session keeps accepting clauses and solving
	commit(t, s, 3)
	require.Equal(t, engine.Satisfiable, s.Solve())
	v, err := s.Value(3)
	require.NoError(t, err)
	assert.Equal(t, engine.True, v)
}

func TestInterruptYieldsUnknown(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, 2)
	s.Interrupt()
	assert.Equal(t, engine.Unknown, s.Solve())

	// interruption is one solve deep
	assert.Equal(t, engine.Satisfiable, s.Solve())
}

func TestCertifiedUnsatTerminatesProof(t *testing.T) {
	target := filepath.Join(t.TempDir(), "proof.drup")
	emitter, err := proof.New(target)
	require.NoError(t, err)
	s := newSession(t, WithProof(emitter))

	commit(t, s, 1)
	commit(t, s, -1)
	assert.Equal(t, engine.Unsatisfiable, s.Solve())
	require.NoError(t, s.Close())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "o proof DRUP", lines[0])
	assert.Equal(t, "0", lines[len(lines)-1])
}

func TestCertifiedPreprocessUnsatTerminatesProof(t *testing.T) {
	target := filepath.Join(t.TempDir(), "proof.drup")
	emitter, err := proof.New(target)
	require.NoError(t, err)
	s := newSession(t, WithProof(emitter))

	commit(t, s, 1)
	commit(t, s, -1)
	unsat, err := s.Preprocess()
	require.NoError(t, err)
	require.True(t, unsat)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "0", lines[len(lines)-1])
}

func TestLearntClauseRecordedAsDerived(t *testing.T) {
	target := filepath.Join(t.TempDir(), "proof.drup")
	emitter, err := proof.New(target)
	require.NoError(t, err)
	s := newSession(t, WithProof(emitter))

	commit(t, s, 1, 2)
	commit(t, s, -1, 2)
	// 2 is implied by the two clauses above
	require.NoError(t, s.StageLearntLiteral(2))
	assert.False(t, s.CommitLearnt())
	require.Equal(t, engine.Satisfiable, s.Solve())
	require.NoError(t, s.Close())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "o proof DRUP", lines[0])
	assert.Equal(t, "2 0", lines[1])
}

func TestLearntClausesNotExported(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, 2)
	require.NoError(t, s.StageLearntLiteral(1))
	require.NoError(t, s.StageLearntLiteral(2))
	s.CommitLearnt()

	var buf bytes.Buffer
	require.NoError(t, s.ExportDimacs(&buf))
	assert.Equal(t, "p cnf 2 1\n1 2 0\n", buf.String())
}

func TestExportDimacsFile(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, -3)
	commit(t, s, 2)
	path := filepath.Join(t.TempDir(), "out.cnf")
	require.NoError(t, s.ExportDimacsFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "p cnf 3 2\n1 -3 0\n2 0\n", string(data))
}

func TestStatsSnapshot(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, 2, 3)
	commit(t, s, -1)
	require.NoError(t, s.StageLearntLiteral(2))
	require.NoError(t, s.StageLearntLiteral(3))
	s.CommitLearnt()

	snap := s.Stats()
	assert.Equal(t, 3, snap.Variables)
	assert.Equal(t, 2, snap.Clauses)
	assert.Equal(t, 3, snap.LongestClause)
	assert.Equal(t, 2, snap.LongestLearnt)
	assert.Equal(t, uint64(1), snap.Engine.Learnts)
}

func TestStatsConcurrentWithSolve(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, 2)
	commit(t, s, -1, 2)

	// mirrors the batch runner's monitor goroutine, which samples the
	// snapshot while the owning goroutine solves
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_ = s.Stats()
			_ = s.Series()
		}
	}()
	for i := 0; i < 200; i++ {
		require.Equal(t, engine.Satisfiable, s.Solve())
	}
	<-done

	snap := s.Stats()
	assert.Equal(t, engine.Satisfiable, snap.LastResult)
	assert.Equal(t, 2, snap.Clauses)
	assert.Len(t, s.Series()["conflicts"], 200)
}

func TestSeriesSampledPerSolve(t *testing.T) {
	s := newSession(t)
	commit(t, s, 1, 2)
	s.Solve()
	s.Solve()

	series := s.Series()
	for _, name := range []string{"restarts", "conflicts", "decisions", "literals", "reductions", "propagations"} {
		assert.Len(t, series[name], 2, "series %s", name)
	}
}

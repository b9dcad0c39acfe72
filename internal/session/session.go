// Package session implements the incremental solving session: staged
// clause construction, one-shot assumptions, repeated bounded solves
// over one engine handle, and certificate emission on unsat verdicts.
package session

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/satctl/satctl/internal/dimacs"
	"github.com/satctl/satctl/internal/giniengine"
	"github.com/satctl/satctl/internal/proof"
	"github.com/satctl/satctl/pkg/cnf"
	"github.com/satctl/satctl/pkg/engine"
)

// NoModelAvailableError reports a model query without a preceding
// satisfiable verdict.  The session remains usable.
type NoModelAvailableError struct {
	LastResult engine.Result
}

func (e NoModelAvailableError) Error() string {
	return fmt.Sprintf("no model available: last verdict was %s", e.LastResult)
}

// UnknownVariableError reports a literal over a variable the session's
// universe does not contain.
type UnknownVariableError int

func (e UnknownVariableError) Error() string {
	return fmt.Sprintf("literal %d references a variable outside the universe", int(e))
}

// Series names the per-solve statistic samples kept for reporting.
var seriesNames = []string{
	"restarts", "conflicts", "decisions", "literals", "reductions", "propagations",
}

// Session owns one engine handle exclusively, together with all staged
// state layered on top of it.  Methods are not safe for concurrent
// use, with three exceptions: Interrupt, Stats and Series may be
// called from other goroutines while Solve runs.
type Session struct {
	eng    engine.Engine
	log    logrus.FieldLogger
	emit   *proof.Emitter
	clause stagingBuffer
	learnt stagingBuffer
	assume assumptionStack

	preprocessed bool
	assumedEver  bool
	solvedEver   bool
	proofErr     error

	// statMu guards the fields below it, which monitoring goroutines
	// read through Stats and Series while the owning goroutine commits
	// clauses or finishes a solve.
	statMu sync.Mutex

	// Original clauses as committed, for export and telemetry.  The
	// engine may simplify its own copy; this ledger is the caller's
	// view of the formula.
	ledger []cnf.Clause

	longestClause int
	longestLearnt int
	formulaUnsat  bool
	lastResult    engine.Result
	haveModel     bool
	series        map[string][]uint64
	lastStats     engine.Stats

	intr struct {
		mu      sync.Mutex
		ch      chan struct{}
		flagged bool
		pending bool
	}
}

// Option configures a Session.
type Option func(s *Session) error

// WithEngine injects the solving engine.  The session takes exclusive
// ownership of the handle.
func WithEngine(e engine.Engine) Option {
	return func(s *Session) error {
		s.eng = e
		return nil
	}
}

// WithProof attaches a certificate emitter.  The session owns it and
// closes it when the session ends.
func WithProof(e *proof.Emitter) Option {
	return func(s *Session) error {
		s.emit = e
		return nil
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Session) error {
		s.log = log
		return nil
	}
}

var defaults = []Option{
	func(s *Session) error {
		if s.eng == nil {
			s.eng = giniengine.New()
		}
		return nil
	},
	func(s *Session) error {
		if s.log == nil {
			l := logrus.New()
			l.SetOutput(io.Discard)
			s.log = l
		}
		return nil
	},
}

// New creates an empty session.
func New(options ...Option) (*Session, error) {
	s := &Session{series: make(map[string][]uint64, len(seriesNames))}
	for _, option := range append(options, defaults...) {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddVariable grows the variable universe by one and returns the new
// variable.  Equivalent to the implicit growth performed by staging a
// literal over an unseen variable.
func (s *Session) AddVariable() cnf.Var {
	return s.eng.NewVariable()
}

// NumVariables returns the current size of the variable universe.
func (s *Session) NumVariables() int {
	return s.eng.NumVariables()
}

// stage converts an external literal, growing the universe so the
// literal's variable exists before it is accepted.
func (s *Session) stage(b *stagingBuffer, d int) error {
	m, err := cnf.Dimacs2Lit(d)
	if err != nil {
		return err
	}
	for s.eng.NumVariables() <= int(m.Var()) {
		s.eng.NewVariable()
	}
	b.push(m)
	return nil
}

// StageClauseLiteral appends one literal to the original clause under
// construction.  Rejecting a malformed literal leaves the buffer as it
// was; the caller resets the buffer before reuse.
func (s *Session) StageClauseLiteral(d int) error {
	return s.stage(&s.clause, d)
}

// StageLearntLiteral appends one literal to the learnt clause under
// construction.
func (s *Session) StageLearntLiteral(d int) error {
	return s.stage(&s.learnt, d)
}

// ResetClause discards the in-progress original clause.
func (s *Session) ResetClause() {
	s.clause.reset()
}

// ResetLearnt discards the in-progress learnt clause.
func (s *Session) ResetLearnt() {
	s.learnt.reset()
}

// CommitClause hands the staged literals to the engine as one original
// clause and empties the buffer.  It returns true when the engine
// detected an immediate contradiction, after which the formula is
// permanently unsatisfiable.  Committing an untouched buffer is a
// no-op.
func (s *Session) CommitClause() bool {
	if !s.clause.dirty {
		return s.formulaUnsat
	}
	c := s.clause.take()
	s.statMu.Lock()
	s.ledger = append(s.ledger, c)
	if len(c) > s.longestClause {
		s.longestClause = len(c)
	}
	s.statMu.Unlock()
	if s.eng.AddClause(c) {
		s.markFormulaUnsat()
	}
	return s.formulaUnsat
}

// CommitLearnt hands the staged literals to the engine as one redundant
// clause.  In certified mode the clause is recorded as a derived fact,
// never as original input.
func (s *Session) CommitLearnt() bool {
	if !s.learnt.dirty {
		return s.formulaUnsat
	}
	c := s.learnt.take()
	s.statMu.Lock()
	if len(c) > s.longestLearnt {
		s.longestLearnt = len(c)
	}
	s.statMu.Unlock()
	if s.emit != nil && !s.emit.Terminated() {
		if err := s.emit.AppendClause(c); err != nil {
			s.log.WithError(err).Warn("recording derived clause")
			s.proofErr = err
		}
	}
	if s.eng.AddLearnt(c) {
		s.markFormulaUnsat()
	}
	return s.formulaUnsat
}

// Assume pushes a one-shot assumption for the next solve call.  The
// literal must reference a variable already in the universe; an
// assumption never grows it.
func (s *Session) Assume(d int) error {
	m, err := cnf.Dimacs2Lit(d)
	if err != nil {
		return err
	}
	if int(m.Var()) >= s.eng.NumVariables() {
		return UnknownVariableError(d)
	}
	s.assume.push(m)
	s.assumedEver = true
	return nil
}

// ClearAssumptions discards pending assumptions.  Solve does this
// automatically on return; the manual form is idempotent.
func (s *Session) ClearAssumptions() {
	s.assume.clear()
}

// Preprocess runs the engine's one-time simplification pass.  Must be
// called at most once, before any assumption and before the first
// solve.  A true result means the formula is unsatisfiable without
// search, and every later Solve short-circuits.
func (s *Session) Preprocess() (bool, error) {
	if s.preprocessed {
		return s.formulaUnsat, fmt.Errorf("preprocess: already run")
	}
	if s.assumedEver || s.solvedEver {
		return s.formulaUnsat, fmt.Errorf("preprocess: only valid before assumptions and solving")
	}
	s.preprocessed = true
	if s.eng.Eliminate(true) {
		s.markFormulaUnsat()
	}
	return s.formulaUnsat, nil
}

// Solve searches under the pending assumptions and unconditionally
// clears them on return.  Unknown is returned only when the search was
// interrupted before a verdict.  The learnt-clause database of the
// engine persists across calls.
func (s *Session) Solve() engine.Result {
	defer s.assume.clear()
	s.solvedEver = true
	if s.formulaUnsat {
		s.finish(engine.Unsatisfiable)
		return engine.Unsatisfiable
	}
	cancel := s.armInterrupt()
	res := s.eng.Solve(s.assume.slice(), cancel)
	s.disarmInterrupt()
	s.finish(res)
	return res
}

func (s *Session) finish(res engine.Result) {
	s.statMu.Lock()
	s.lastResult = res
	s.haveModel = res == engine.Satisfiable
	s.sampleSeries()
	s.statMu.Unlock()
	if res == engine.Unsatisfiable {
		s.terminateProof()
	}
}

func (s *Session) markFormulaUnsat() {
	s.statMu.Lock()
	s.formulaUnsat = true
	s.statMu.Unlock()
	s.terminateProof()
}

func (s *Session) terminateProof() {
	if s.emit == nil {
		return
	}
	if err := s.emit.Terminate(); err != nil {
		s.log.WithError(err).Error("completing unsat certificate")
		s.proofErr = err
	}
}

// Value reports the truth value of the external literal d in the model
// of the most recent solve.  Querying without a satisfiable verdict is
// an error, not a silent Undefined.
func (s *Session) Value(d int) (engine.Value, error) {
	if !s.haveModel {
		return engine.Undefined, NoModelAvailableError{LastResult: s.lastResult}
	}
	m, err := cnf.Dimacs2Lit(d)
	if err != nil {
		return engine.Undefined, err
	}
	return s.eng.Value(m), nil
}

// Interrupt flags the session for cooperative interruption.  The
// engine observes the flag at its next safe point and the running
// Solve returns Unknown.  Safe to call from another goroutine.
func (s *Session) Interrupt() {
	s.intr.mu.Lock()
	defer s.intr.mu.Unlock()
	if s.intr.ch != nil {
		if !s.intr.flagged {
			close(s.intr.ch)
			s.intr.flagged = true
		}
		return
	}
	s.intr.pending = true
}

func (s *Session) armInterrupt() <-chan struct{} {
	s.intr.mu.Lock()
	defer s.intr.mu.Unlock()
	s.intr.ch = make(chan struct{})
	s.intr.flagged = false
	if s.intr.pending {
		close(s.intr.ch)
		s.intr.flagged = true
		s.intr.pending = false
	}
	return s.intr.ch
}

func (s *Session) disarmInterrupt() {
	s.intr.mu.Lock()
	defer s.intr.mu.Unlock()
	s.intr.ch = nil
	s.intr.flagged = false
}

// sampleSeries appends one delta sample per named series, the
// per-solve telemetry consumed by the batch reporter.  The caller
// holds statMu.
func (s *Session) sampleSeries() {
	st := s.eng.Stats()
	deltas := map[string]uint64{
		"restarts":     st.Restarts - s.lastStats.Restarts,
		"conflicts":    st.Conflicts - s.lastStats.Conflicts,
		"decisions":    st.Decisions - s.lastStats.Decisions,
		"literals":     st.Literals - s.lastStats.Literals,
		"reductions":   st.Reductions - s.lastStats.Reductions,
		"propagations": st.Propagations - s.lastStats.Propagations,
	}
	for _, name := range seriesNames {
		s.series[name] = append(s.series[name], deltas[name])
	}
	s.lastStats = st
}

// Snapshot is the read-only statistics view of a session.  All counts
// are non-decreasing over the session lifetime.
type Snapshot struct {
	Variables     int
	Clauses       int
	LongestClause int
	LongestLearnt int
	Engine        engine.Stats
	LastResult    engine.Result
	FormulaUnsat  bool
}

// Stats returns a statistics snapshot.  Safe to call at any time,
// from any goroutine.
func (s *Session) Stats() Snapshot {
	st := s.eng.Stats()
	s.statMu.Lock()
	defer s.statMu.Unlock()
	return Snapshot{
		Variables:     int(st.Variables),
		Clauses:       len(s.ledger),
		LongestClause: s.longestClause,
		LongestLearnt: s.longestLearnt,
		Engine:        st,
		LastResult:    s.lastResult,
		FormulaUnsat:  s.formulaUnsat,
	}
}

// Series returns a copy of the per-solve statistic series.
func (s *Session) Series() map[string][]uint64 {
	s.statMu.Lock()
	defer s.statMu.Unlock()
	out := make(map[string][]uint64, len(s.series))
	for name, samples := range s.series {
		out[name] = append([]uint64(nil), samples...)
	}
	return out
}

// ExportDimacs writes the current original clause set in DIMACS form.
// Learnt clauses are never exported.
func (s *Session) ExportDimacs(w io.Writer) error {
	return dimacs.Write(w, s.eng.NumVariables(), s.ledger)
}

// ExportDimacsFile writes the original clause set to path.  A terminal
// operation in this design: the session is expected to end shortly
// after.
func (s *Session) ExportDimacsFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exporting formula to %q: %w", path, err)
	}
	defer f.Close()
	if err := s.ExportDimacs(f); err != nil {
		return fmt.Errorf("exporting formula to %q: %w", path, err)
	}
	return nil
}

// Close ends the session, closing the certificate emitter if one is
// attached.  An unsatisfiable verdict left without a terminated proof
// is a protocol violation.
func (s *Session) Close() error {
	if s.emit == nil {
		return nil
	}
	defer s.emit.Close()
	if s.proofErr != nil {
		return s.proofErr
	}
	unsat := s.formulaUnsat || s.lastResult == engine.Unsatisfiable
	if unsat && !s.emit.Terminated() {
		return proof.ProtocolError{Target: s.emit.Target()}
	}
	return nil
}

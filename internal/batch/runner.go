// Package batch drives a sequence of problem instances through fresh
// solving sessions and aggregates their telemetry for reporting.
package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satctl/satctl/internal/dimacs"
	"github.com/satctl/satctl/internal/governor"
	"github.com/satctl/satctl/internal/proof"
	"github.com/satctl/satctl/internal/session"
	"github.com/satctl/satctl/pkg/engine"
)

// Instance identifies one problem of the batch.  The sequence is
// supplied by the caller; the runner never invents instances.
type Instance struct {
	Name string
	Path string
}

// Config is the batch configuration, read once at run start.
type Config struct {
	Preprocess      bool
	Certified       bool
	CertifiedOutput string
	ExportPath      string
	ShowModel       bool
	Verbosity       int
	ReportInterval  time.Duration
}

// Runner processes instances strictly sequentially: one fresh session
// per instance, one solve with no assumptions, one RunRecord.  A
// single instance's failure does not abort the batch.
type Runner struct {
	cfg      Config
	log      logrus.FieldLogger
	gov      *governor.Governor
	reporter Reporter
	factory  func() engine.Engine

	records     []RunRecord
	completions []Completion
	lastResult  engine.Result

	// the session in flight, read by the governor's hard-exit hook
	// from the signal goroutine
	activeMu sync.Mutex
	active   *session.Session
}

// Option configures a Runner.
type Option func(r *Runner) error

// WithEngineFactory sets the engine constructor used for each fresh
// session.
func WithEngineFactory(factory func() engine.Engine) Option {
	return func(r *Runner) error {
		r.factory = factory
		return nil
	}
}

// WithGovernor attaches the process's resource governor.
func WithGovernor(g *governor.Governor) Option {
	return func(r *Runner) error {
		r.gov = g
		return nil
	}
}

// WithReporter sets the reporting collaborator receiving the run
// aggregate.
func WithReporter(rep Reporter) Option {
	return func(r *Runner) error {
		r.reporter = rep
		return nil
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Runner) error {
		r.log = log
		return nil
	}
}

// New returns a Runner for the given configuration.
func New(cfg Config, options ...Option) (*Runner, error) {
	r := &Runner{cfg: cfg}
	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}
	if r.factory == nil {
		return nil, fmt.Errorf("batch runner needs an engine factory")
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	return r, nil
}

// LastResult returns the verdict of the most recently completed
// instance, for the caller's exit-code contract.
func (r *Runner) LastResult() engine.Result {
	return r.lastResult
}

// Run processes the instances in order and hands the aggregate to the
// reporter exactly once.  Only an engine-level allocation failure
// abandons the remaining instances; the aggregate collected so far is
// still reported.
func (r *Runner) Run(instances []Instance) error {
	if r.gov != nil && r.cfg.Verbosity > 0 {
		r.gov.SetHardExitHook(r.printInterruptStats)
	}
	start := time.Now()
	for i, inst := range instances {
		rec, fatal := r.runOne(inst)
		r.lastResult = resultOf(rec.Outcome)
		r.records = append(r.records, rec)
		r.completions = append(r.completions, Completion{
			Position:    i + 1,
			WallSeconds: time.Since(start).Seconds(),
		})
		fmt.Printf("s %s\n", rec.Outcome)
		if fatal {
			r.log.Error("engine failure, abandoning remaining instances")
			break
		}
	}
	if r.reporter == nil {
		return nil
	}
	return r.reporter.Report(r.records, r.completions)
}

func resultOf(outcome string) engine.Result {
	switch outcome {
	case engine.Satisfiable.String():
		return engine.Satisfiable
	case engine.Unsatisfiable.String():
		return engine.Unsatisfiable
	default:
		return engine.Unknown
	}
}

// runOne processes a single instance.  A panic out of the engine is
// the allocation-failure path: the instance is recorded indeterminate
// and fatal is true.
func (r *Runner) runOne(inst Instance) (rec RunRecord, fatal bool) {
	rec = RunRecord{Instance: inst.Name, Outcome: engine.Unknown.String()}
	start := time.Now()
	cpu0 := governor.CPUTime()
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("engine failure on %s: %v", inst.Name, p)
			rec.Outcome = engine.Unknown.String()
			fatal = true
		}
		rec.WallSeconds = time.Since(start).Seconds()
		rec.CPUSeconds = (governor.CPUTime() - cpu0).Seconds()
	}()

	opts := []session.Option{
		session.WithEngine(r.factory()),
		session.WithLogger(r.log),
	}
	if r.cfg.Certified {
		emitter, err := proof.New(r.cfg.CertifiedOutput)
		if err != nil {
			r.log.WithError(err).Errorf("certified mode unavailable for %s", inst.Name)
			return rec, false
		}
		opts = append(opts, session.WithProof(emitter))
	}
	sess, err := session.New(opts...)
	if err != nil {
		r.log.WithError(err).Errorf("creating session for %s", inst.Name)
		return rec, false
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			r.log.WithError(cerr).Errorf("closing session for %s", inst.Name)
		}
	}()
	r.setActive(sess)
	defer r.setActive(nil)

	if err := r.parse(inst, sess); err != nil {
		r.log.WithError(err).Errorf("parsing %s", inst.Name)
		return rec, false
	}
	rec.ClausesAtParse = sess.Stats().Clauses
	if r.cfg.Verbosity > 0 {
		r.log.Infof("%s: %d variables, %d clauses", inst.Name, sess.NumVariables(), rec.ClausesAtParse)
	}

	if r.cfg.Preprocess {
		if unsat, err := sess.Preprocess(); err != nil {
			r.log.WithError(err).Errorf("preprocessing %s", inst.Name)
		} else if unsat {
			if r.cfg.Verbosity > 0 {
				r.log.Infof("%s: solved by simplification", inst.Name)
			}
			rec.Outcome = engine.Unsatisfiable.String()
			r.fill(&rec, sess)
			return rec, false
		}
	}

	if r.cfg.ExportPath != "" {
		if err := sess.ExportDimacsFile(r.cfg.ExportPath); err != nil {
			r.log.WithError(err).Errorf("exporting %s", inst.Name)
		}
		r.fill(&rec, sess)
		return rec, false
	}

	// From here the engine can respond to interruption itself.
	if r.gov != nil {
		r.gov.Cooperative()
	}
	stop := r.monitor(sess, inst.Name)
	defer close(stop)
	res := sess.Solve()

	rec.Outcome = res.String()
	r.fill(&rec, sess)
	if r.cfg.ShowModel && res == engine.Satisfiable {
		r.printModel(sess)
	}
	return rec, false
}

// setActive publishes the in-flight session to the hard-exit hook and
// to the governor as the cooperative interruption target.
func (r *Runner) setActive(sess *session.Session) {
	r.activeMu.Lock()
	r.active = sess
	r.activeMu.Unlock()
	if r.gov == nil {
		return
	}
	if sess != nil {
		r.gov.SetActive(sess)
	} else {
		r.gov.ClearActive()
	}
}

// printInterruptStats describes the instance in flight when a signal
// forces a hard exit.  Runs on the signal goroutine.
func (r *Runner) printInterruptStats() {
	r.activeMu.Lock()
	sess := r.active
	r.activeMu.Unlock()
	if sess == nil {
		return
	}
	snap := sess.Stats()
	fmt.Printf("c variables : %d\n", snap.Variables)
	fmt.Printf("c clauses   : %d\n", snap.Clauses)
	fmt.Printf("c learnts   : %d\n", snap.Engine.Learnts)
	fmt.Printf("c solves    : %d\n", snap.Engine.Solves)
	fmt.Printf("c cpu time  : %.2f s\n", governor.CPUTime().Seconds())
}

func (r *Runner) parse(inst Instance, sess *session.Session) error {
	in, closer, err := dimacs.Open(inst.Path)
	if err != nil {
		return err
	}
	defer closer.Close()
	if _, err := dimacs.Parse(in, sess); err != nil {
		// a rejected push may leave a partial clause staged
		sess.ResetClause()
		return err
	}
	return nil
}

func (r *Runner) fill(rec *RunRecord, sess *session.Session) {
	snap := sess.Stats()
	rec.Variables = snap.Variables
	rec.ClausesAtSolve = int(snap.Engine.Clauses + snap.Engine.Learnts)
	rec.LongestClause = snap.LongestClause
	rec.LongestLearnt = snap.LongestLearnt
	rec.Series = sess.Series()
}

// monitor logs a periodic statistics line while a solve runs.  The
// returned channel stops it.
func (r *Runner) monitor(sess *session.Session, name string) chan struct{} {
	stop := make(chan struct{})
	if r.cfg.Verbosity < 1 || r.cfg.ReportInterval <= 0 {
		return stop
	}
	go func() {
		ticker := time.NewTicker(r.cfg.ReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				st := sess.Stats().Engine
				r.log.Infof("%s: clauses=%d learnts=%d solves=%d cpu=%.1fs",
					name, st.Clauses, st.Learnts, st.Solves, governor.CPUTime().Seconds())
			}
		}
	}()
	return stop
}

func (r *Runner) printModel(sess *session.Session) {
	fmt.Print("v")
	for i := 1; i <= sess.NumVariables(); i++ {
		val, err := sess.Value(i)
		if err != nil {
			break
		}
		if val == engine.False {
			fmt.Printf(" -%d", i)
		} else {
			fmt.Printf(" %d", i)
		}
	}
	fmt.Println(" 0")
}

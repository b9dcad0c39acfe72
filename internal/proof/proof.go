// Package proof emits DRUP certificates for unsatisfiable results.
package proof

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/satctl/satctl/pkg/cnf"
)

// Stdout is the output-target sentinel selecting standard output.
const Stdout = "-"

// header identifies the proof format; checkers key off this line.
const header = "o proof DRUP"

// ProtocolError reports an unsatisfiable verdict finalized without the
// terminating empty-clause line having been written.
type ProtocolError struct {
	Target string
}

func (e ProtocolError) Error() string {
	return fmt.Sprintf("certified mode: proof %q has no terminating empty clause", e.Target)
}

// Emitter appends DRUP lines to a certificate target.  It is owned 1:1
// by a solving session, which closes it when the session ends or the
// unsatisfiable verdict is finalized.
type Emitter struct {
	target     string
	w          *bufio.Writer
	c          io.Closer
	terminated bool
	closed     bool
}

// New opens target for appending and writes the format header.  The
// Stdout sentinel selects standard output, which is not closed.
func New(target string) (*Emitter, error) {
	e := &Emitter{target: target}
	if target == Stdout {
		e.w = bufio.NewWriter(os.Stdout)
	} else {
		f, err := os.Create(target)
		if err != nil {
			return nil, fmt.Errorf("opening proof output %q: %w", target, err)
		}
		e.w = bufio.NewWriter(f)
		e.c = f
	}
	if _, err := fmt.Fprintln(e.w, header); err != nil {
		e.Close()
		return nil, fmt.Errorf("writing proof header: %w", err)
	}
	return e, nil
}

// Target returns the configured output target.
func (e *Emitter) Target() string {
	return e.target
}

// AppendClause records one derived clause.
func (e *Emitter) AppendClause(c cnf.Clause) error {
	if e.closed || e.terminated {
		return fmt.Errorf("proof %q: appending after termination", e.target)
	}
	if _, err := fmt.Fprintln(e.w, c.String()); err != nil {
		return fmt.Errorf("writing proof clause: %w", err)
	}
	return nil
}

// Terminate writes the empty-clause line completing the proof.  It is
// idempotent; the line is written at most once.
func (e *Emitter) Terminate() error {
	if e.closed {
		return fmt.Errorf("proof %q: terminating a closed emitter", e.target)
	}
	if e.terminated {
		return nil
	}
	if _, err := fmt.Fprintln(e.w, "0"); err != nil {
		return fmt.Errorf("writing proof terminator: %w", err)
	}
	e.terminated = true
	return e.w.Flush()
}

// Terminated reports whether the completing empty clause was written.
func (e *Emitter) Terminated() bool {
	return e.terminated
}

// Close flushes and releases the target.  Idempotent.
func (e *Emitter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.w.Flush()
	if e.c != nil {
		if cerr := e.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

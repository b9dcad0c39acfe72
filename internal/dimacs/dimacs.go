// Package dimacs reads and writes CNF problems in DIMACS format,
// including the gzip/bzip2-compressed variants.
// see: https://logic.pdmi.ras.ru/~basolver/dimacs.html
package dimacs

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/satctl/satctl/pkg/cnf"
)

// Sink consumes a parsed problem one staged literal at a time.  A
// solving session satisfies this interface directly.
type Sink interface {
	StageClauseLiteral(d int) error
	CommitClause() bool
}

// Header is the problem line of a DIMACS file.
type Header struct {
	Variables int
	Clauses   int
}

// Parse streams a DIMACS CNF problem into sink, one clause per
// 0-terminated literal run.  Literal runs may span lines.  The header
// counts are returned as parsed; they are not enforced against the
// clause stream since solvers in the wild routinely emit inexact
// headers.  Parsing stops as soon as the sink reports the formula
// contradictory.
func Parse(r io.Reader, sink Sink) (Header, error) {
	var hdr Header
	sawHeader := false
	inClause := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "c") {
			continue
		}
		if strings.HasPrefix(line, "p") {
			if sawHeader {
				return hdr, fmt.Errorf("line %d: duplicate problem line", lineno)
			}
			fields := strings.Fields(line)
			if len(fields) != 4 || fields[1] != "cnf" {
				return hdr, fmt.Errorf("line %d: invalid problem line (%s), want p cnf <variables> <clauses>", lineno, line)
			}
			var err error
			if hdr.Variables, err = strconv.Atoi(fields[2]); err != nil {
				return hdr, fmt.Errorf("line %d: invalid variable count (%s)", lineno, fields[2])
			}
			if hdr.Clauses, err = strconv.Atoi(fields[3]); err != nil {
				return hdr, fmt.Errorf("line %d: invalid clause count (%s)", lineno, fields[3])
			}
			sawHeader = true
			continue
		}
		if !sawHeader {
			return hdr, fmt.Errorf("line %d: clause before problem line", lineno)
		}
		for _, field := range strings.Fields(line) {
			d, err := strconv.Atoi(field)
			if err != nil {
				return hdr, fmt.Errorf("line %d: %q is not a literal", lineno, field)
			}
			if d == 0 {
				if sink.CommitClause() {
					// The formula is contradictory already; no later
					// clause can change the verdict.
					return hdr, nil
				}
				inClause = false
				continue
			}
			if err := sink.StageClauseLiteral(d); err != nil {
				return hdr, fmt.Errorf("line %d: %w", lineno, err)
			}
			inClause = true
		}
	}
	if err := scanner.Err(); err != nil {
		return hdr, fmt.Errorf("reading dimacs data: %w", err)
	}
	if !sawHeader {
		return hdr, fmt.Errorf("invalid dimacs format: missing header 'p cnf <variables> <clauses>'")
	}
	if inClause {
		return hdr, fmt.Errorf("unterminated clause at end of input")
	}
	return hdr, nil
}

// Write emits the clause set in DIMACS form: the problem line followed
// by one 0-terminated line per clause.
func Write(w io.Writer, numVars int, clauses []cnf.Clause) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "p cnf %d %d\n", numVars, len(clauses)); err != nil {
		return fmt.Errorf("writing dimacs header: %w", err)
	}
	for _, c := range clauses {
		if _, err := fmt.Fprintln(bw, c.String()); err != nil {
			return fmt.Errorf("writing dimacs clause: %w", err)
		}
	}
	return bw.Flush()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns a reader for a plain or compressed DIMACS file.  "-"
// selects standard input.  The caller closes the returned closer.
func Open(path string) (io.Reader, io.Closer, error) {
	if path == "-" {
		return os.Stdin, nopCloser{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		r, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("opening %q: %w", path, err)
		}
		return r, f, nil
	}
	if strings.HasSuffix(path, ".bz2") {
		return bzip2.NewReader(f), f, nil
	}
	return f, f, nil
}

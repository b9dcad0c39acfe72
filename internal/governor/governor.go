// Package governor bounds a process's resource consumption and turns
// interrupt signals into cooperative solver interruption.
package governor

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Interruptible is the cooperative-interruption target, typically the
// active solving session.  The governor only ever flags it; it never
// owns it.
type Interruptible interface {
	Interrupt()
}

type mode int32

const (
	unarmed mode = iota
	hardExit
	cooperative
)

// Governor installs OS resource ceilings and arms the process's signal
// handling.  At most one governor is armed per process; arming another
// overwrites the handlers.
type Governor struct {
	log    logrus.FieldLogger
	exit   func(code int)
	sigs   chan os.Signal
	notify func(chan<- os.Signal)

	// onHardExit runs before the process dies in hard-exit mode,
	// typically to print statistics when verbosity allows.
	onHardExit func()

	mu     sync.Mutex
	mode   mode
	active Interruptible
}

// Option configures a Governor.
type Option func(g *Governor)

// WithLogger sets the diagnostic logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Governor) { g.log = log }
}

// WithHardExitHook registers a callback run on a signal received in
// hard-exit mode, before the process terminates.
func WithHardExitHook(hook func()) Option {
	return func(g *Governor) { g.onHardExit = hook }
}

// New returns an unarmed governor.
func New(options ...Option) *Governor {
	g := &Governor{
		log:  logrus.StandardLogger(),
		exit: os.Exit,
		notify: func(c chan<- os.Signal) {
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGXCPU)
		},
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// InstallCPULimit installs a best-effort ceiling on CPU seconds.
// Failure to install is a warning, not fatal.
func (g *Governor) InstallCPULimit(seconds uint64) {
	g.installRlimit(unix.RLIMIT_CPU, seconds, "CPU-time")
}

// InstallMemoryLimit installs a best-effort ceiling on the address
// space, in megabytes.
func (g *Governor) InstallMemoryLimit(megabytes uint64) {
	g.installRlimit(unix.RLIMIT_AS, megabytes*1024*1024, "virtual memory")
}

func (g *Governor) installRlimit(resource int, ceiling uint64, what string) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(resource, &rl); err != nil {
		g.log.WithError(err).Warnf("could not read resource limit: %s", what)
		return
	}
	if rl.Max != unix.RLIM_INFINITY && ceiling >= rl.Max {
		return
	}
	rl.Cur = ceiling
	if err := unix.Setrlimit(resource, &rl); err != nil {
		g.log.WithError(err).Warnf("could not set resource limit: %s", what)
	}
}

// Arm installs the hard-exit signal behavior: on SIGINT, SIGTERM or
// SIGXCPU the process terminates immediately, without unwinding.  This
// is the safe behavior while the engine cannot yet respond to
// interruption.
func (g *Governor) Arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mode != unarmed {
		g.mode = hardExit
		return
	}
	g.mode = hardExit
	g.sigs = make(chan os.Signal, 1)
	g.notify(g.sigs)
	go g.serve()
}

func (g *Governor) serve() {
	for range g.sigs {
		g.mu.Lock()
		m, target, hook := g.mode, g.active, g.onHardExit
		g.mu.Unlock()
		switch m {
		case cooperative:
			if target != nil {
				target.Interrupt()
			}
		default:
			fmt.Println("\n*** INTERRUPTED ***")
			if hook != nil {
				hook()
			}
			g.exit(1)
		}
	}
}

// Cooperative switches the armed signals to cooperative interruption:
// from now on a signal only flags the active target, and the engine
// winds down at its own safe point.  The switch happens exactly once,
// immediately before the first solve of a run; it is never reversed.
func (g *Governor) Cooperative() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mode == hardExit {
		g.mode = cooperative
	}
}

// SetHardExitHook replaces the hard-exit callback.  Useful once the
// component that can describe run progress exists, which is after the
// governor was armed.
func (g *Governor) SetHardExitHook(hook func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onHardExit = hook
}

// SetActive publishes the session a cooperative signal should flag.
func (g *Governor) SetActive(target Interruptible) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = target
}

// ClearActive withdraws the active session, called when its solve
// returns.
func (g *Governor) ClearActive() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = nil
}

// CPUTime returns the process's consumed user+system CPU time.
func CPUTime() time.Duration {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
}

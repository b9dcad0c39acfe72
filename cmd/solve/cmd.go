package solve

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/satctl/satctl/internal/batch"
	"github.com/satctl/satctl/internal/giniengine"
	"github.com/satctl/satctl/internal/governor"
	"github.com/satctl/satctl/pkg/engine"
)

type options struct {
	verbosity       int
	reportInterval  time.Duration
	showModel       bool
	preprocess      bool
	exportPath      string
	cpuLimit        uint64
	memLimit        uint64
	certified       bool
	certifiedOutput string
	reportPath      string
}

func NewSolveCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "solve <instance>...",
		Short: "Solves a batch of CNF instances given in DIMACS format",
		Long: `Solves one or more CNF instances given in DIMACS format, plain or
gzip/bzip2 compressed ("-" reads standard input).  Each instance runs in a
fresh incremental session; per-instance telemetry is aggregated into a run
report.  With a single instance the exit code follows the SAT-competition
convention: 10 satisfiable, 20 unsatisfiable, 0 indeterminate.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if arg == "-" {
					continue
				}
				if _, err := os.Stat(arg); errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file (%s) not found", arg)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args)
		},
	}
	cmd.Flags().IntVar(&opts.verbosity, "verb", 1, "verbosity level (0=silent, 1=some, 2=more)")
	cmd.Flags().DurationVar(&opts.reportInterval, "vv", 0, "interval between progress reports during solving (0 disables)")
	cmd.Flags().BoolVar(&opts.showModel, "model", false, "print the model of a satisfiable instance")
	cmd.Flags().BoolVar(&opts.preprocess, "pre", true, "run the simplification pass before solving")
	cmd.Flags().StringVar(&opts.exportPath, "dimacs", "", "stop after preprocessing and write the formula to this file")
	cmd.Flags().Uint64Var(&opts.cpuLimit, "cpu-lim", 0, "limit on CPU time allowed in seconds (0 = none)")
	cmd.Flags().Uint64Var(&opts.memLimit, "mem-lim", 0, "limit on memory usage in megabytes (0 = none)")
	cmd.Flags().BoolVar(&opts.certified, "certified", false, "certified UNSAT using the DRUP format")
	cmd.Flags().StringVar(&opts.certifiedOutput, "certified-output", "-", "certified UNSAT output file (- for standard output)")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "write the run report as YAML to this file (- for standard output)")
	return cmd
}

func run(opts *options, args []string) error {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	switch {
	case opts.verbosity <= 0:
		log.SetLevel(logrus.ErrorLevel)
	case opts.verbosity == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.DebugLevel)
	}

	// Forcibly-quitting signal behavior until the first solve, when the
	// engine itself can wind down at a safe point.
	gov := governor.New(governor.WithLogger(log))
	gov.Arm()
	if opts.cpuLimit > 0 {
		gov.InstallCPULimit(opts.cpuLimit)
	}
	if opts.memLimit > 0 {
		gov.InstallMemoryLimit(opts.memLimit)
	}

	instances := make([]batch.Instance, 0, len(args))
	for _, arg := range args {
		instances = append(instances, batch.Instance{Name: filepath.Base(arg), Path: arg})
	}

	var reporter batch.Reporter
	if opts.reportPath != "" {
		reporter = batch.YAMLReporter{Path: opts.reportPath}
	}

	runner, err := batch.New(batch.Config{
		Preprocess:      opts.preprocess,
		Certified:       opts.certified,
		CertifiedOutput: opts.certifiedOutput,
		ExportPath:      opts.exportPath,
		ShowModel:       opts.showModel,
		Verbosity:       opts.verbosity,
		ReportInterval:  opts.reportInterval,
	},
		batch.WithEngineFactory(func() engine.Engine { return giniengine.New() }),
		batch.WithGovernor(gov),
		batch.WithReporter(reporter),
		batch.WithLogger(log),
	)
	if err != nil {
		return err
	}
	if err := runner.Run(instances); err != nil {
		return err
	}

	if len(instances) == 1 {
		switch runner.LastResult() {
		case engine.Satisfiable:
			os.Exit(10)
		case engine.Unsatisfiable:
			os.Exit(20)
		default:
			os.Exit(0)
		}
	}
	return nil
}

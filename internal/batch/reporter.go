package batch

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// report is the serialized shape handed to external tooling.
type report struct {
	Instances   []RunRecord  `yaml:"instances"`
	Completions []Completion `yaml:"completions"`
}

// YAMLReporter writes the run aggregate as a YAML document.
type YAMLReporter struct {
	// Path of the report file; "-" writes to standard output.
	Path string
}

func (r YAMLReporter) Report(records []RunRecord, completions []Completion) error {
	var w io.Writer = os.Stdout
	if r.Path != "-" {
		f, err := os.Create(r.Path)
		if err != nil {
			return fmt.Errorf("creating report %q: %w", r.Path, err)
		}
		defer f.Close()
		w = f
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(report{Instances: records, Completions: completions}); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

package batch

// RunRecord is one instance's outcome.  Created once per instance,
// read-only afterwards, appended to the run list in submission order.
type RunRecord struct {
	Instance        string              `yaml:"instance"`
	Variables       int                 `yaml:"variables"`
	ClausesAtParse  int                 `yaml:"clausesAtParse"`
	ClausesAtSolve  int                 `yaml:"clausesAtSolve"`
	LongestClause   int                 `yaml:"longestClause"`
	LongestLearnt   int                 `yaml:"longestLearnt"`
	WallSeconds     float64             `yaml:"wallSeconds"`
	CPUSeconds      float64             `yaml:"cpuSeconds"`
	Outcome         string              `yaml:"outcome"`
	Series          map[string][]uint64 `yaml:"series,omitempty"`
}

// Completion marks one finished instance: its position in the batch
// and the cumulative wall-clock time at completion.
type Completion struct {
	Position    int     `yaml:"position"`
	WallSeconds float64 `yaml:"wallSeconds"`
}

// Reporter consumes the aggregate of a finished batch.  It is handed
// the records exactly once per run.
type Reporter interface {
	Report(records []RunRecord, completions []Completion) error
}

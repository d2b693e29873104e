package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines an ingestion scenario: a sequence of import runs and
// the assertions that must hold on the archive afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Workers is the runner's worker count. Zero means one worker, which
	// keeps id assignment deterministic.
	Workers int `yaml:"workers,omitempty"`

	// CacheResetEvery is passed to the runner unchanged.
	CacheResetEvery int `yaml:"cache_reset_every,omitempty"`

	// Token is the fixed batch token. Empty means "test-batch-default".
	Token string `yaml:"token,omitempty"`

	// Runs are imported in order, each as one snapshot.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the archive after the last run.
	Assertions []Assertion `yaml:"assertions"`
}

// RunStep is one snapshot import.
type RunStep struct {
	// Snapshot is the snapshot timestamp in hours after
	// testutil.SnapshotEpoch. Repeating a snapshot resumes its run.
	Snapshot int `yaml:"snapshot"`

	Batches []BatchStep `yaml:"batches"`

	// Links are manual identity edges recorded after the import.
	Links []LinkStep `yaml:"links,omitempty"`
}

// BatchStep is one dump file of a snapshot.
type BatchStep struct {
	// File is the path relative to the snapshot directory.
	File string `yaml:"file"`

	// Dump is encoded to JSON as the file content.
	Dump map[string]any `yaml:"dump,omitempty"`

	// Raw is written verbatim instead of Dump.
	Raw string `yaml:"raw,omitempty"`
}

// LinkStep records a manual identity edge.
type LinkStep struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Note string `yaml:"note,omitempty"`
}

// Assertion validates the archive.
type Assertion struct {
	// Type is one of row_count, final_state, run_stats, history.
	Type string `yaml:"type"`

	// Table and Where select rows (row_count, final_state).
	Table string         `yaml:"table,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`

	// Count is the expected row count (row_count).
	Count int `yaml:"count,omitempty"`

	// Expect holds expected column values (final_state) or counters
	// (run_stats). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Run is the 1-based run step (run_stats) or the run id (history).
	// A history assertion with run 0 expects no history at all.
	Run int64 `yaml:"run,omitempty"`

	// SourceID names the post (history).
	SourceID string `yaml:"source_id,omitempty"`

	// Fields are the archive fields the run replaced (history). Empty
	// means the run archived nothing on the post.
	Fields []string `yaml:"fields,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount   = "row_count"
	AssertFinalState = "final_state"
	AssertRunStats   = "run_stats"
	AssertHistory    = "history"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, run := range s.Runs {
		if run.Snapshot < 0 {
			return fmt.Errorf("runs[%d]: snapshot must be non-negative", i)
		}
		if len(run.Batches) == 0 {
			return fmt.Errorf("runs[%d]: batches list is required", i)
		}
		seen := map[string]bool{}
		for j, b := range run.Batches {
			if b.File == "" {
				return fmt.Errorf("runs[%d].batches[%d]: file is required", i, j)
			}
			if seen[b.File] {
				return fmt.Errorf("runs[%d].batches[%d]: duplicate file %q", i, j, b.File)
			}
			seen[b.File] = true
			if (b.Dump == nil) == (b.Raw == "") {
				return fmt.Errorf("runs[%d].batches[%d]: exactly one of dump or raw is required", i, j)
			}
		}
		for j, l := range run.Links {
			if l.From == "" || l.To == "" {
				return fmt.Errorf("runs[%d].links[%d]: from and to are required", i, j)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], len(s.Runs)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, runs int) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRunStats:
		if a.Run < 1 || a.Run > int64(runs) {
			return fmt.Errorf("assertions[%d]: run must name a run step (1..%d)", index, runs)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for run_stats", index)
		}
	case AssertHistory:
		if a.SourceID == "" {
			return fmt.Errorf("assertions[%d]: source_id is required for history", index)
		}
		if a.Run == 0 && len(a.Fields) > 0 {
			return fmt.Errorf("assertions[%d]: fields need a run", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

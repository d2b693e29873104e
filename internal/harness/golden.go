package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/trailkeep/internal/ir"
)

// Snapshot is what a golden file holds for a scenario. Source names and
// batch tokens are left out; they depend on the workspace.
type Snapshot struct {
	Scenario string        `json:"scenario"`
	Runs     []RunSnapshot `json:"runs"`
	Posts    []PostState   `json:"posts"`
}

// RunSnapshot is the stable part of a run summary.
type RunSnapshot struct {
	ID             int64       `json:"id"`
	Phase          ir.RunPhase `json:"phase"`
	Batches        int         `json:"batches"`
	Failed         int         `json:"failed"`
	Posts          int         `json:"posts"`
	NewPosts       int         `json:"new_posts"`
	RevisitedPosts int         `json:"revisited_posts"`
	ArchivedPosts  int         `json:"archived_posts"`
}

// NewSnapshot builds the golden snapshot of a result.
func NewSnapshot(name string, result *Result) Snapshot {
	s := Snapshot{Scenario: name, Runs: []RunSnapshot{}, Posts: result.Posts}
	for _, r := range result.Runs {
		s.Runs = append(s.Runs, RunSnapshot{
			ID:             r.Run.ID,
			Phase:          r.Run.Phase,
			Batches:        r.Batches,
			Failed:         r.Failed,
			Posts:          r.Stats.Posts,
			NewPosts:       r.Stats.NewPosts,
			RevisitedPosts: r.Stats.RevisitedPosts,
			ArchivedPosts:  r.Stats.ArchivedPosts,
		})
	}
	if s.Posts == nil {
		s.Posts = []PostState{}
	}
	return s
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := ir.Canonicalize(NewSnapshot(name, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

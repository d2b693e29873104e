package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/trailkeep/internal/importer"
	"github.com/roach88/trailkeep/internal/source"
	"github.com/roach88/trailkeep/internal/store"
	"github.com/roach88/trailkeep/internal/testutil"
)

// Harness executes one scenario against its own workspace.
type Harness struct {
	store  *store.Store
	runner *importer.Runner
	dir    string
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh temporary directory holding the database
// and one snapshot directory per run step. An error means the scenario
// could not be executed; failed assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "trailkeep-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "archive.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := importer.Options{
		Workers:         max(scenario.Workers, 1),
		CacheResetEvery: scenario.CacheResetEvery,
	}
	h := &Harness{
		store:  st,
		runner: importer.NewRunner(st, opts, logger).WithTokens(testutil.NewFixedTokenGenerator(scenario.Token)),
		dir:    dir,
		logger: logger,
	}

	result := NewResult()
	for i, step := range scenario.Runs {
		summary, err := h.executeRun(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("runs[%d]: %w", i, err)
		}
		result.Runs = append(result.Runs, summary)
	}

	posts, err := h.capturePosts(ctx)
	if err != nil {
		return nil, err
	}
	result.Posts = posts

	for _, msg := range EvaluateAssertions(ctx, st, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeRun(ctx context.Context, index int, step RunStep) (importer.RunSummary, error) {
	snapshot := filepath.Join(h.dir, fmt.Sprintf("snapshot-%d", index+1))
	if err := writeSnapshot(snapshot, step); err != nil {
		return importer.RunSummary{}, err
	}

	src, err := source.OpenDir(snapshot, source.Options{})
	if err != nil {
		return importer.RunSummary{}, err
	}
	defer src.Close()

	summary, err := h.runner.Run(ctx, src)
	if err != nil {
		return importer.RunSummary{}, fmt.Errorf("import: %w", err)
	}

	for _, l := range step.Links {
		if _, err := h.runner.RecordManualEdge(ctx, l.From, l.To, l.Note); err != nil {
			return importer.RunSummary{}, fmt.Errorf("link %s -> %s: %w", l.From, l.To, err)
		}
	}
	return summary, nil
}

// writeSnapshot writes the step's dump files and stamps them all with the
// snapshot time, which becomes the run's source timestamp.
func writeSnapshot(dir string, step RunStep) error {
	ts := testutil.At(step.Snapshot)
	for _, b := range step.Batches {
		data := []byte(b.Raw)
		if b.Dump != nil {
			var err error
			if data, err = json.Marshal(b.Dump); err != nil {
				return fmt.Errorf("encode %s: %w", b.File, err)
			}
		}

		path := filepath.Join(dir, filepath.FromSlash(b.File))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("write %s: %w", b.File, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", b.File, err)
		}
		if err := os.Chtimes(path, ts, ts); err != nil {
			return fmt.Errorf("stamp %s: %w", b.File, err)
		}
	}
	return nil
}

func (h *Harness) capturePosts(ctx context.Context) ([]PostState, error) {
	posts, err := h.store.ListPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture posts: %w", err)
	}
	out := make([]PostState, 0, len(posts))
	for _, p := range posts {
		out = append(out, PostState{
			SourceID: p.SourceID,
			Title:    p.Title,
			Kind:     p.Kind,
			IsRoot:   p.IsRoot,
			History:  p.History,
		})
	}
	return out, nil
}

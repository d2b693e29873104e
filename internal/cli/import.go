package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/trailkeep/internal/importer"
	"github.com/roach88/trailkeep/internal/source"
)

// ImportOptions holds flags for the import commands.
type ImportOptions struct {
	*RootOptions
	Workers         int
	CacheResetEvery int
	SkipUntil       string

	// Tokens allows overriding the batch token generator (for testing).
	// If nil, the runner issues UUIDv7 tokens.
	Tokens importer.TokenGenerator
}

// NewImportCommand creates the import command group.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a dump snapshot as one run",
		Long: `Import every dump file of a snapshot as one import run.

A snapshot is identified by its timestamp (the archive's modification time,
or the newest file in a directory). Importing the same snapshot again
resumes its run; importing a newer one reconciles against the run before.`,
	}

	cmd.PersistentFlags().IntVar(&opts.Workers, "workers", 0, "concurrent batches (overrides config)")
	cmd.PersistentFlags().IntVar(&opts.CacheResetEvery, "cache-reset-every", -1, "reset worker caches after N batches (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.SkipUntil, "skip-until", "", "start at the first entry whose name contains this marker")

	cmd.AddCommand(&cobra.Command{
		Use:   "zip <file>",
		Short: "Import a zip archive of dump files",
		Example: `  trailkeep import zip ./export.zip
  trailkeep import zip ./export.zip --skip-until alice --workers 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, func(o source.Options) (source.Source, error) {
				return source.OpenZip(args[0], o)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "dir <path>",
		Short:   "Import a directory of dump files",
		Example: `  trailkeep import dir ./dumps --db ./archive.db`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, func(o source.Options) (source.Source, error) {
				return source.OpenDir(args[0], o)
			})
		},
	})

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, open func(source.Options) (source.Source, error)) error {
	env, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	runOpts := importer.Options{
		Workers:         env.cfg.Workers,
		CacheResetEvery: env.cfg.CacheResetEvery,
	}
	if opts.Workers > 0 {
		runOpts.Workers = opts.Workers
	}
	if opts.CacheResetEvery >= 0 {
		runOpts.CacheResetEvery = opts.CacheResetEvery
	}
	skipUntil := env.cfg.SkipUntil
	if opts.SkipUntil != "" {
		skipUntil = opts.SkipUntil
	}

	src, err := open(source.Options{SkipUntil: skipUntil})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open source", err)
	}
	defer src.Close()

	runner := importer.NewRunner(env.store, runOpts, env.logger)
	if opts.Tokens != nil {
		runner.WithTokens(opts.Tokens)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env.logger.Info("import starting",
		"source", src.Name(),
		"snapshot", src.Timestamp().Format(time.RFC3339),
		"workers", runOpts.Workers)
	summary, err := runner.Run(ctx, src)
	if err != nil {
		return WrapExitError(ExitFailure, "import aborted", err)
	}

	if err := env.out.Success(summary, func(w io.Writer) { renderSummary(w, summary) }); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d batches failed", summary.Failed, summary.Batches))
	}
	return nil
}

func renderSummary(w io.Writer, s importer.RunSummary) {
	status := okColor.Sprint("ok")
	if s.Failed > 0 {
		status = warnColor.Sprintf("%d failed", s.Failed)
	}
	fmt.Fprintf(w, "Run %d (%s): %d batches, %s\n", s.Run.ID, s.Run.Phase, s.Batches, status)
	fmt.Fprintf(w, "  posts:     %d seen, %d new, %d revisited, %d archived\n",
		s.Stats.Posts, s.Stats.NewPosts, s.Stats.RevisitedPosts, s.Stats.ArchivedPosts)
	fmt.Fprintf(w, "  content:   %d new, %d duplicate\n", s.Stats.NewContent, s.Stats.DupContent)
	fmt.Fprintf(w, "  resources: %d new\n", s.Stats.NewResources)
	fmt.Fprintf(w, "  edges:     %d\n", s.Stats.Edges)
	if s.Stats.Skipped > 0 {
		fmt.Fprintf(w, "  skipped:   %s\n", dimColor.Sprint(s.Stats.Skipped))
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

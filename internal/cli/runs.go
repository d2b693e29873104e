package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/trailkeep/internal/ir"
)

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect import runs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List import runs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(cmd, rootOpts)
		},
	})
	return cmd
}

func listRuns(cmd *cobra.Command, opts *RootOptions) error {
	env, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	runs, err := env.store.ListRuns(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if runs == nil {
		runs = []ir.ImportRun{}
	}
	return env.out.Success(runs, func(w io.Writer) { renderRuns(w, runs) })
}

func renderRuns(w io.Writer, runs []ir.ImportRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, dimColor.Sprint("no runs"))
		return
	}
	fmt.Fprintf(w, "%-5s %-20s %-16s %8s  %s\n", "ID", "SNAPSHOT", "PHASE", "POSTS", "SOURCE")
	for _, r := range runs {
		phase := warnColor.Sprintf("%-16s", r.Phase)
		if r.Phase != ir.PhaseNeedImport {
			phase = okColor.Sprintf("%-16s", r.Phase)
		}
		fmt.Fprintf(w, "%-5d %-20s %s %8d  %s\n",
			r.ID, r.SourceTimestamp.UTC().Format(time.RFC3339), phase, r.Watermarks.PostID, r.SourceName)
	}
}

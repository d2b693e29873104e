package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/trailkeep/internal/importer"
	"github.com/roach88/trailkeep/internal/store"
)

// LinkResult is the link command's payload.
type LinkResult struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Inserted bool   `json:"inserted"`
}

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "link <name-a> <name-b>",
		Short: "Assert that two account names belong to the same entity",
		Long: `Record a manual identity edge between two account names in the
latest import run. Names are created if they were never observed.`,
		Example: `  trailkeep link alice alice-art --note "announced the move"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return linkNames(cmd, rootOpts, args[0], args[1], note)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "free-form note stored with the edge")
	return cmd
}

func linkNames(cmd *cobra.Command, opts *RootOptions, a, b, note string) error {
	env, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	inserted, err := importer.New(env.store, env.logger).RecordManualEdge(commandContext(cmd), a, b, note)
	if errors.Is(err, store.ErrNotFound) {
		msg := "no import run to attach the edge to"
		if err := env.out.Error(CodeNoRuns, msg, nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to record edge", err)
	}

	result := LinkResult{From: a, To: b, Inserted: inserted}
	return env.out.Success(result, func(w io.Writer) {
		if inserted {
			fmt.Fprintf(w, "%s %s -> %s\n", okColor.Sprint("linked"), a, b)
			return
		}
		fmt.Fprintf(w, "%s %s -> %s\n", dimColor.Sprint("already linked"), a, b)
	})
}

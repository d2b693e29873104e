package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/store"
)

// HistoryView is the history command's payload.
type HistoryView struct {
	PostID   int64       `json:"post_id"`
	SourceID ir.SourceID `json:"source_id"`
	Title    string      `json:"title"`
	History  ir.History  `json:"history"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <source-id>",
		Short: "Show what each run replaced on a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(cmd, rootOpts, ir.SourceID(args[0]))
		},
	}
}

func showHistory(cmd *cobra.Command, opts *RootOptions, sourceID ir.SourceID) error {
	env, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	post, err := env.store.PostBySourceID(commandContext(cmd), sourceID)
	if errors.Is(err, store.ErrNotFound) {
		msg := fmt.Sprintf("no post with source id %s", sourceID)
		if err := env.out.Error(CodeNotFound, msg, nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read post", err)
	}

	view := HistoryView{PostID: post.ID, SourceID: post.SourceID, Title: post.Title, History: post.History}
	if view.History == nil {
		view.History = ir.History{}
	}
	return env.out.Success(view, func(w io.Writer) { renderHistory(w, view) })
}

func renderHistory(w io.Writer, v HistoryView) {
	fmt.Fprintf(w, "Post %s (id %d) %q\n", v.SourceID, v.PostID, v.Title)
	runs := v.History.Runs()
	if len(runs) == 0 {
		fmt.Fprintln(w, dimColor.Sprint("  no archived changes"))
		return
	}
	for _, run := range runs {
		fmt.Fprintf(w, "  run %d:\n", run)
		for _, line := range archiveLines(v.History[run]) {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

func archiveLines(a ir.Archive) []string {
	var lines []string
	add := func(field, value string) {
		lines = append(lines, warnColor.Sprintf("%-15s", field)+" "+value)
	}
	if a.Title != "" {
		add("title", fmt.Sprintf("%q", a.Title))
	}
	if a.Root != nil {
		if *a.Root == ir.NoPriorBody {
			add("body", "(none)")
		} else {
			add("body", fmt.Sprintf("content %d", *a.Root))
		}
	}
	if len(a.Trail) > 0 {
		add("trail", joinIDs(a.Trail))
	}
	if len(a.Tags) > 0 {
		add("tags", joinIDs(a.Tags))
	}
	if len(a.Resources) > 0 {
		add("resources", joinIDs(a.Resources))
	}
	if len(a.Meta) > 0 {
		add("meta", string(a.Meta))
	}
	markers := []struct {
		field  string
		marker ir.Marker
	}{
		{"from_account", a.FromAccount},
		{"root_account", a.RootAccount},
		{"root_source_id", a.RootSourceID},
		{"from_source_id", a.FromSourceID},
	}
	for _, m := range markers {
		if m.marker != "" {
			add(m.field, string(m.marker))
		}
	}
	return lines
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}

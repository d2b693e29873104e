package harness

import (
	"github.com/roach88/trailkeep/internal/importer"
	"github.com/roach88/trailkeep/internal/ir"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Runs holds one summary per run step, in order.
	Runs []importer.RunSummary `json:"runs"`

	// Posts is the final post table, ordered by id.
	Posts []PostState `json:"posts"`
}

// PostState is the part of a post golden snapshots compare.
type PostState struct {
	SourceID ir.SourceID `json:"source_id"`
	Title    string      `json:"title,omitempty"`
	Kind     ir.PostKind `json:"kind"`
	IsRoot   bool        `json:"is_root"`
	History  ir.History  `json:"history,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Runs:   []importer.RunSummary{},
		Posts:  []PostState{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

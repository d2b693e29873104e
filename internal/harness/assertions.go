package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Identifiers cannot be bound as parameters, so they are checked instead.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("Assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions evaluates all assertions against the archive and the
// result. Returns one message per failed assertion.
func EvaluateAssertions(ctx context.Context, st *store.Store, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRowCount:
			err = assertRowCount(ctx, st, a)
		case AssertFinalState:
			err = assertFinalState(ctx, st, a)
		case AssertRunStats:
			err = assertRunStats(result, a)
		case AssertHistory:
			err = assertHistory(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertRowCount(ctx context.Context, st *store.Store, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q", a.Table)
	}
	whereSQL, args, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}
	query := "SELECT COUNT(*) FROM " + a.Table
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	var n int
	if err := st.DB().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("count table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", a.Count, a.Table, formatWhereClause(a.Where)),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it carries the Expect values (subset match).
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q", a.Table)
	}
	whereSQL, args, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}
	query := "SELECT * FROM " + a.Table
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	whereDesc := formatWhereClause(a.Where)
	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, whereDesc),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	for _, key := range sortedKeys(a.Expect) {
		actual, ok := row[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("columns: %v", columns),
			}
		}
		if !stateValuesEqual(a.Expect[key], actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, a.Expect[key], a.Expect[key]),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// assertRunStats compares run step counters by their JSON names. batches
// and failed refer to the summary, everything else to its stats.
func assertRunStats(result *Result, a Assertion) error {
	if a.Run < 1 || a.Run > int64(len(result.Runs)) {
		return fmt.Errorf("run %d out of range (have %d)", a.Run, len(result.Runs))
	}
	summary := result.Runs[a.Run-1]

	counters, err := statCounters(summary.Stats)
	if err != nil {
		return err
	}
	counters["batches"] = int64(summary.Batches)
	counters["failed"] = int64(summary.Failed)
	counters["run_id"] = summary.Run.ID

	for _, key := range sortedKeys(a.Expect) {
		actual, ok := counters[key]
		if !ok {
			return fmt.Errorf("unknown counter %q", key)
		}
		if !stateValuesEqual(a.Expect[key], actual) {
			return &AssertionError{
				Type:     AssertRunStats,
				Expected: fmt.Sprintf("run %d %s = %v", a.Run, key, a.Expect[key]),
				Actual:   fmt.Sprintf("%s = %d", key, actual),
			}
		}
	}
	return nil
}

func statCounters(s any) (map[string]int64, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]int64
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func assertHistory(result *Result, a Assertion) error {
	var post *PostState
	for i := range result.Posts {
		if string(result.Posts[i].SourceID) == a.SourceID {
			post = &result.Posts[i]
			break
		}
	}
	if post == nil {
		return &AssertionError{Type: AssertHistory, Expected: "post " + a.SourceID, Actual: "post not found"}
	}

	if a.Run == 0 {
		if len(post.History) != 0 {
			return &AssertionError{
				Type:     AssertHistory,
				Expected: "no history on post " + a.SourceID,
				Actual:   fmt.Sprintf("history for runs %v", post.History.Runs()),
			}
		}
		return nil
	}

	var fields []string
	if arch, ok := post.History[a.Run]; ok {
		var err error
		if fields, err = archiveFields(arch); err != nil {
			return err
		}
	}
	want := slices.Clone(a.Fields)
	sort.Strings(want)
	if !slices.Equal(fields, want) {
		return &AssertionError{
			Type:     AssertHistory,
			Expected: fmt.Sprintf("run %d archived %v on post %s", a.Run, want, a.SourceID),
			Actual:   fmt.Sprintf("archived %v", fields),
		}
	}
	return nil
}

// archiveFields returns the sorted JSON names of the fields set in a.
func archiveFields(a ir.Archive) ([]string, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(obj))
	for k := range obj {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields, nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are
// sorted for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause", key)
		}
		if where[key] == nil {
			clauses = append(clauses, key+" IS NULL")
			continue
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	case float64:
		return int64(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares a YAML-decoded expected value with a value
// scanned from SQLite. SQLite returns integers as int64 and stores
// booleans as 0/1.
func stateValuesEqual(expected, actual any) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	actualInt, actualIsInt := actual.(int64)
	switch exp := expected.(type) {
	case string:
		s, ok := actual.(string)
		return ok && exp == s
	case int:
		return actualIsInt && int64(exp) == actualInt
	case int64:
		return actualIsInt && exp == actualInt
	case bool:
		if b, ok := actual.(bool); ok {
			return exp == b
		}
		return actualIsInt && exp == (actualInt != 0)
	}
	return reflect.DeepEqual(expected, actual)
}

package ingest

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/types"
)

// maxRowWarnings is how many offending rows are listed individually
const maxRowWarnings = 5

// Diagnostics counts data-quality problems that do not abort a run
type Diagnostics struct {
	MissingContributor  int `json:"missingContributor"`
	MissingCategory     int `json:"missingCategory"`
	MissingPolicyType   int `json:"missingPolicyType"`
	UnrecognizedOutcome int `json:"unrecognizedOutcome"`
	IncompleteRows      int `json:"incompleteRows"`
}

// Result is the outcome of structural validation
type Result struct {
	RowCount    int         `json:"rowCount"`
	Errors      []string    `json:"errors"`
	Warnings    []string    `json:"warnings"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Valid reports whether aggregation may proceed
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns nil for a valid result, otherwise a validation error carrying
// every message.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return apperrors.NewValidationErrorList("Dataset failed validation", r.Errors)
}

// Validate checks that t can be aggregated. Structural problems become
// errors; rows with missing values only produce diagnostics and warnings.
func Validate(t *Table, maxRows int) Result {
	res := Result{
		RowCount: t.Len(),
		Errors:   []string{},
		Warnings: []string{},
	}

	if t.Len() == 0 {
		res.Errors = append(res.Errors, "dataset is empty")
		return res
	}

	for _, col := range types.RequiredColumns {
		if !t.HasColumn(col) {
			res.Errors = append(res.Errors, fmt.Sprintf("Missing required column: %q", col))
		}
	}

	if maxRows > 0 && t.Len() > maxRows {
		res.Errors = append(res.Errors,
			fmt.Sprintf("Dataset too large (%d rows). Maximum allowed: %d", t.Len(), maxRows))
	}

	if !res.Valid() {
		return res
	}

	for _, row := range t.Rows() {
		var missing []string
		if row.ContributorID == "" {
			res.Diagnostics.MissingContributor++
			missing = append(missing, "contributor")
		}
		if row.Category == "" {
			res.Diagnostics.MissingCategory++
			missing = append(missing, "category")
		}
		if row.PolicyType == "" {
			res.Diagnostics.MissingPolicyType++
			missing = append(missing, "policy type")
		}
		if !knownOutcome(row.Outcome) {
			res.Diagnostics.UnrecognizedOutcome++
		}

		if len(missing) == 0 {
			continue
		}
		res.Diagnostics.IncompleteRows++
		if res.Diagnostics.IncompleteRows <= maxRowWarnings {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("Row %d: missing %s", row.Line, strings.Join(missing, ", ")))
		}
	}

	if extra := res.Diagnostics.IncompleteRows - maxRowWarnings; extra > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("... and %d more rows with missing data", extra))
	}
	if n := res.Diagnostics.UnrecognizedOutcome; n > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%d rows have an unrecognized deflection type and count as no deflection", n))
	}

	return res
}

func knownOutcome(v string) bool {
	return v == "" || strings.EqualFold(v, types.OutcomeNone) || analysis.IsRecognizedOutcome(v)
}

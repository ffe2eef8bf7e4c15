package ingest

import (
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/types"
)

// Record is one data row keyed by trimmed column header
type Record map[string]string

// Table is a parsed annotation log before validation
type Table struct {
	Headers []string
	Records []Record
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.Records)
}

// HasColumn reports whether the header row contains name
func (t *Table) HasColumn(name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// TableFromMaps builds a table from already decoded records, such as a JSON
// request body. Values are coerced to trimmed strings; nil becomes empty.
func TableFromMaps(records []map[string]interface{}) *Table {
	t := &Table{Records: make([]Record, 0, len(records))}
	seen := make(map[string]struct{})

	for _, m := range records {
		rec := make(Record, len(m))
		for k, v := range m {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				t.Headers = append(t.Headers, key)
			}
			rec[key] = strings.TrimSpace(cast.ToString(v))
		}
		t.Records = append(t.Records, rec)
	}

	sort.Strings(t.Headers)
	return t
}

// Rows maps records to rows. Line is the 1-based data row number.
// Unparseable prompt and turn IDs become 0.
func (t *Table) Rows() []types.Row {
	rows := make([]types.Row, 0, len(t.Records))
	for i, rec := range t.Records {
		rows = append(rows, types.Row{
			ContributorID: rec[types.ColumnEmail],
			Category:      rec[types.ColumnCategory],
			PolicyType:    rec[types.ColumnPolicyType],
			Outcome:       rec[types.ColumnOutcome],
			PromptID:      lenientInt(rec[types.ColumnPromptID]),
			TurnID:        lenientInt(rec[types.ColumnTurnID]),
			Line:          i + 1,
		})
	}
	return rows
}

func lenientInt(s string) int {
	if s == "" {
		return 0
	}
	// parsed as a decimal float so "012" is twelve and "12.0" is accepted
	f, err := cast.ToFloat64E(s)
	if err != nil || math.IsNaN(f) || f >= math.MaxInt32 || f <= math.MinInt32 {
		return 0
	}
	return int(f)
}

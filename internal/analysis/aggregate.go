package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/types"
)

// ContributorStats accumulates one contributor's submissions
type ContributorStats struct {
	ID              string              `json:"contributor_id"`
	Order           int                 `json:"-"`
	Total           int                 `json:"total_submissions"`
	Breakdown       Breakdown           `json:"deflection_breakdown"`
	DeflectionRate  float64             `json:"deflection_rate"`
	CategoryCount   int                 `json:"unique_categories"`
	PolicyTypeCount int                 `json:"unique_policy_types"`
	Categories      map[string]struct{} `json:"-"`
	PolicyTypes     map[string]struct{} `json:"-"`
}

// SortedCategories returns the distinct categories in lexical order
func (c *ContributorStats) SortedCategories() []string {
	return sortedKeys(c.Categories)
}

// SortedPolicyTypes returns the distinct policy types in lexical order
func (c *ContributorStats) SortedPolicyTypes() []string {
	return sortedKeys(c.PolicyTypes)
}

// CategoryStats accumulates submissions for one category label
type CategoryStats struct {
	Name             string              `json:"name"`
	Order            int                 `json:"-"`
	Count            int                 `json:"count"`
	Percentage       float64             `json:"percentage"`
	Breakdown        Breakdown           `json:"deflection_breakdown"`
	DeflectionRate   float64             `json:"deflection_rate"`
	ContributorCount int                 `json:"contributor_count"`
	Contributors     map[string]struct{} `json:"-"`
}

// GlobalMetrics holds corpus-wide indicators
type GlobalMetrics struct {
	TotalSubmissions             int     `json:"totalSubmissions"`
	TotalContributors            int     `json:"totalContributors"`
	TotalCategories              int     `json:"totalCategories"`
	OverallDeflectionRate        float64 `json:"overallDeflectionRate"`
	AvgSubmissionsPerContributor float64 `json:"avgSubmissionsPerContributor"`
	CategoryBalanceScore         float64 `json:"categoryBalanceScore"`
}

// Options tune a single aggregation pass
type Options struct {
	// MaxRows aborts the pass when exceeded. Zero disables the ceiling.
	MaxRows    int
	Deflection DeflectionWeights
}

// Aggregation is the finalized result of one pass over a row sequence.
// Contributors and Categories are in first-seen order.
type Aggregation struct {
	Contributors []*ContributorStats
	Categories   []*CategoryStats
	Global       GlobalMetrics

	contributorIndex map[string]*ContributorStats
	categoryIndex    map[string]*CategoryStats
}

// Contributor looks up a contributor by identity
func (a *Aggregation) Contributor(id string) (*ContributorStats, bool) {
	c, ok := a.contributorIndex[normalizeKey(id)]
	return c, ok
}

// Category looks up a category by label
func (a *Aggregation) Category(name string) (*CategoryStats, bool) {
	c, ok := a.categoryIndex[normalizeKey(name)]
	return c, ok
}

// Aggregate folds rows into contributor and category accumulators and derives
// the global metrics. Rows are never mutated.
func Aggregate(rows []types.Row, opts Options) (*Aggregation, error) {
	if opts.MaxRows > 0 && len(rows) > opts.MaxRows {
		return nil, apperrors.NewValidationErrorList("dataset exceeds row ceiling", []string{
			fmt.Sprintf("Dataset too large (%d rows). Maximum allowed: %d", len(rows), opts.MaxRows),
		})
	}
	if opts.Deflection == (DeflectionWeights{}) {
		opts.Deflection = DefaultDeflectionWeights()
	}

	agg := &Aggregation{
		Contributors:     make([]*ContributorStats, 0),
		Categories:       make([]*CategoryStats, 0),
		contributorIndex: make(map[string]*ContributorStats),
		categoryIndex:    make(map[string]*CategoryStats),
	}

	for _, row := range rows {
		id := normalizeKey(row.ContributorID)
		category := normalizeKey(row.Category)
		policy := normalizeKey(row.PolicyType)
		outcome := ClassifyOutcome(row.Outcome)

		if id != "" {
			c := agg.contributorIndex[id]
			if c == nil {
				c = &ContributorStats{
					ID:          id,
					Order:       len(agg.Contributors),
					Categories:  make(map[string]struct{}),
					PolicyTypes: make(map[string]struct{}),
				}
				agg.contributorIndex[id] = c
				agg.Contributors = append(agg.Contributors, c)
			}
			c.Total++
			c.Breakdown.record(outcome)
			if category != "" {
				c.Categories[category] = struct{}{}
			}
			if policy != "" {
				c.PolicyTypes[policy] = struct{}{}
			}
		}

		if category != "" {
			cat := agg.categoryIndex[category]
			if cat == nil {
				cat = &CategoryStats{
					Name:         category,
					Order:        len(agg.Categories),
					Contributors: make(map[string]struct{}),
				}
				agg.categoryIndex[category] = cat
				agg.Categories = append(agg.Categories, cat)
			}
			cat.Count++
			cat.Breakdown.record(outcome)
			// rows without an identity still count towards the category
			if id != "" {
				cat.Contributors[id] = struct{}{}
			}
		}
	}

	if err := agg.finalize(len(rows), opts.Deflection); err != nil {
		return nil, err
	}
	return agg, nil
}

func (a *Aggregation) finalize(totalRows int, w DeflectionWeights) error {
	var summed Breakdown
	for _, c := range a.Contributors {
		if c.Breakdown.Total() != c.Total {
			return apperrors.NewInternalError(
				fmt.Sprintf("contributor breakdown %d disagrees with total %d", c.Breakdown.Total(), c.Total), nil)
		}
		c.DeflectionRate = DeflectionRate(c.Breakdown, w)
		c.CategoryCount = len(c.Categories)
		c.PolicyTypeCount = len(c.PolicyTypes)
		summed = summed.Add(c.Breakdown)
	}

	counts := make([]int, len(a.Categories))
	for i, cat := range a.Categories {
		if totalRows > 0 {
			cat.Percentage = float64(cat.Count) / float64(totalRows) * 100
		}
		cat.DeflectionRate = DeflectionRate(cat.Breakdown, w)
		cat.ContributorCount = len(cat.Contributors)
		counts[i] = cat.Count
	}

	a.Global = GlobalMetrics{
		TotalSubmissions:      totalRows,
		TotalContributors:     len(a.Contributors),
		TotalCategories:       len(a.Categories),
		OverallDeflectionRate: DeflectionRate(summed, w),
		CategoryBalanceScore:  CategoryBalance(counts),
	}
	if len(a.Contributors) > 0 {
		a.Global.AvgSubmissionsPerContributor = float64(totalRows) / float64(len(a.Contributors))
	}
	return nil
}

// CategoryBalance is the Shannon entropy of the count distribution
// normalized by log2(n) and scaled to 0-100. It is 0 for fewer than two
// categories or an empty distribution.
func CategoryBalance(counts []int) float64 {
	if len(counts) < 2 {
		return 0
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, n := range counts {
		if n <= 0 {
			continue
		}
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}

	return clip(100*entropy/math.Log2(float64(len(counts))), 0, 100)
}

func normalizeKey(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

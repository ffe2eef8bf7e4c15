package analysis

import (
	"fmt"
	"math"
	"sort"
)

// ScoringWeights blend the three sub-scores into the composite.
// Raising one weight increases that sub-score's share of the composite;
// the weights must sum to 1 so the composite stays on the 0-100 scale.
type ScoringWeights struct {
	Volume   float64 `json:"volume" yaml:"volume"`
	Quality  float64 `json:"quality" yaml:"quality"`
	Coverage float64 `json:"coverage" yaml:"coverage"`
}

const weightTolerance = 1e-9

// DefaultScoringWeights returns 0.4 volume, 0.4 quality, 0.2 coverage
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{Volume: 0.4, Quality: 0.4, Coverage: 0.2}
}

// Validate checks the weights are finite, non-negative and sum to 1
func (w ScoringWeights) Validate() error {
	if !finite(w.Volume) || !finite(w.Quality) || !finite(w.Coverage) {
		return fmt.Errorf("scoring weights must be finite (volume=%g quality=%g coverage=%g)",
			w.Volume, w.Quality, w.Coverage)
	}
	if w.Volume < 0 || w.Quality < 0 || w.Coverage < 0 {
		return fmt.Errorf("scoring weights must be non-negative (volume=%g quality=%g coverage=%g)",
			w.Volume, w.Quality, w.Coverage)
	}
	sum := w.Volume + w.Quality + w.Coverage
	if !(math.Abs(sum-1) <= weightTolerance) {
		return fmt.Errorf("scoring weights must sum to 1.0, got %g", sum)
	}
	return nil
}

// ContributorScore holds the normalized sub-scores and the final rank
type ContributorScore struct {
	VolumeScore    float64 `json:"volumeScore"`
	QualityScore   float64 `json:"qualityScore"`
	CoverageScore  float64 `json:"coverageScore"`
	CompositeScore float64 `json:"compositeScore"`
	Rank           int     `json:"rank"`
}

// RankedContributor pairs a finalized accumulator with its score
type RankedContributor struct {
	*ContributorStats
	ContributorScore
}

// Score computes the sub-scores and composite for a single contributor
// against corpus-wide maxima. The composite is computed from unrounded
// sub-scores and rounded to one decimal; the sub-scores are rounded after.
func Score(c *ContributorStats, maxSubmissions, totalCategories int, w ScoringWeights) ContributorScore {
	volume := 0.0
	if maxSubmissions > 0 {
		volume = 100 * float64(c.Total) / float64(maxSubmissions)
	}

	quality := 100 * clip(c.DeflectionRate, 0, 1)

	coverage := 0.0
	if totalCategories > 0 {
		coverage = 100 * float64(len(c.Categories)) / float64(totalCategories)
	}

	composite := w.Volume*volume + w.Quality*quality + w.Coverage*coverage

	return ContributorScore{
		VolumeScore:    round1(volume),
		QualityScore:   round1(quality),
		CoverageScore:  round1(coverage),
		CompositeScore: round1(composite),
	}
}

// Rank scores every contributor and orders them by composite descending.
// Equal composites keep first-appearance order; ranks are 1-based positions.
func Rank(stats []*ContributorStats, totalCategories int, w ScoringWeights) []RankedContributor {
	maxSubmissions := 0
	for _, c := range stats {
		if c.Total > maxSubmissions {
			maxSubmissions = c.Total
		}
	}

	ranked := make([]RankedContributor, 0, len(stats))
	for _, c := range stats {
		ranked = append(ranked, RankedContributor{
			ContributorStats: c,
			ContributorScore: Score(c, maxSubmissions, totalCategories, w),
		})
	}

	// input is re-sorted by Order first so callers may pass any permutation
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Order < ranked[j].Order
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CompositeScore > ranked[j].CompositeScore
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

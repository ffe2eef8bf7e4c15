package analysis

import (
	"sort"

	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/types"
)

// Config is the scoring configuration surface of the engine
type Config struct {
	Scoring    ScoringWeights    `json:"scoring" yaml:"scoring"`
	Deflection DeflectionWeights `json:"deflection" yaml:"deflection"`
	MaxRows    int               `json:"max_rows" yaml:"max_rows"`
}

// DefaultConfig returns the default weights and a 100,000 row ceiling
func DefaultConfig() Config {
	return Config{
		Scoring:    DefaultScoringWeights(),
		Deflection: DefaultDeflectionWeights(),
		MaxRows:    100000,
	}
}

// Report is the complete, ranked result of one pipeline run
type Report struct {
	Contributors []RankedContributor `json:"contributors"`
	Categories   []*CategoryStats    `json:"categories"`
	Global       GlobalMetrics       `json:"global"`
}

// TopContributors returns at most n ranked contributors; n <= 0 returns all
func (r *Report) TopContributors(n int) []RankedContributor {
	if n <= 0 || n >= len(r.Contributors) {
		return r.Contributors
	}
	return r.Contributors[:n]
}

// CategoriesByCount returns the categories ordered by count descending,
// keeping first-seen order for equal counts.
func (r *Report) CategoriesByCount() []*CategoryStats {
	out := append([]*CategoryStats(nil), r.Categories...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// Engine runs the aggregation and ranking pipeline. It holds no state
// between runs.
type Engine struct {
	config Config
}

// NewEngine creates an engine. An unset (zero value) weight struct falls
// back to its defaults; explicit settings are checked by Process.
func NewEngine(config Config) *Engine {
	if config.Scoring == (ScoringWeights{}) {
		config.Scoring = DefaultScoringWeights()
	}
	if config.Deflection == (DeflectionWeights{}) {
		config.Deflection = DefaultDeflectionWeights()
	}
	return &Engine{config: config}
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

// Process aggregates rows, derives global metrics and ranks contributors
func (e *Engine) Process(rows []types.Row) (*Report, error) {
	if err := e.config.Scoring.Validate(); err != nil {
		return nil, apperrors.NewConfigurationError("invalid scoring weights", err)
	}
	if err := e.config.Deflection.Validate(); err != nil {
		return nil, apperrors.NewConfigurationError("invalid deflection weights", err)
	}

	agg, err := Aggregate(rows, Options{
		MaxRows:    e.config.MaxRows,
		Deflection: e.config.Deflection,
	})
	if err != nil {
		return nil, err
	}

	return &Report{
		Contributors: Rank(agg.Contributors, agg.Global.TotalCategories, e.config.Scoring),
		Categories:   agg.Categories,
		Global:       agg.Global,
	}, nil
}

// Process runs the pipeline with the default configuration
func Process(rows []types.Row) (*Report, error) {
	return NewEngine(DefaultConfig()).Process(rows)
}

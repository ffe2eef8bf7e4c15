package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/types"
)

// Outcome is the deflection result of a single submission
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePartial
	OutcomeFull
)

// Breakdown counts submissions per deflection outcome
type Breakdown struct {
	Full    int `json:"full"`
	Partial int `json:"partial"`
	None    int `json:"none"`
}

// Total returns the number of classified submissions
func (b Breakdown) Total() int {
	return b.Full + b.Partial + b.None
}

// Add returns the element-wise sum of two breakdowns
func (b Breakdown) Add(o Breakdown) Breakdown {
	return Breakdown{
		Full:    b.Full + o.Full,
		Partial: b.Partial + o.Partial,
		None:    b.None + o.None,
	}
}

func (b *Breakdown) record(o Outcome) {
	switch o {
	case OutcomeFull:
		b.Full++
	case OutcomePartial:
		b.Partial++
	default:
		b.None++
	}
}

// DeflectionWeights sets how much each outcome counts towards success
type DeflectionWeights struct {
	Full    float64 `json:"full" yaml:"full"`
	Partial float64 `json:"partial" yaml:"partial"`
}

// DefaultDeflectionWeights counts a partial deflection as half a success
func DefaultDeflectionWeights() DeflectionWeights {
	return DeflectionWeights{Full: 1.0, Partial: 0.5}
}

// Validate checks both weights are finite, full is within [0,1] and
// partial is within [0,full]. Two zero weights are rejected since every
// deflection rate would collapse to 0.
func (w DeflectionWeights) Validate() error {
	if !finite(w.Full) || !finite(w.Partial) {
		return fmt.Errorf("deflection weights must be finite (full=%g partial=%g)", w.Full, w.Partial)
	}
	if w.Full < 0 || w.Full > 1 {
		return fmt.Errorf("deflection.full must be within [0,1], got %g", w.Full)
	}
	if w.Partial < 0 || w.Partial > w.Full {
		return fmt.Errorf("deflection.partial must be within [0,full], got %g", w.Partial)
	}
	if w.Full == 0 && w.Partial == 0 {
		return fmt.Errorf("deflection weights must not both be zero")
	}
	return nil
}

// ClassifyOutcome maps a raw deflection column value to an Outcome.
// Matching ignores case and surrounding space. Anything that is not Full
// or Partial, including empty values, is none.
func ClassifyOutcome(raw string) Outcome {
	v := strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(v, types.OutcomeFull):
		return OutcomeFull
	case strings.EqualFold(v, types.OutcomePartial):
		return OutcomePartial
	default:
		return OutcomeNone
	}
}

// IsRecognizedOutcome reports whether raw is an explicit Full or Partial value
func IsRecognizedOutcome(raw string) bool {
	return ClassifyOutcome(raw) != OutcomeNone
}

// DeflectionRate computes (full*wFull + partial*wPartial) / total.
// A zero total yields 0; the result is always within [0,1].
func DeflectionRate(b Breakdown, w DeflectionWeights) float64 {
	total := b.Total()
	if total == 0 {
		return 0
	}

	weighted := float64(b.Full)*w.Full + float64(b.Partial)*w.Partial
	rate := weighted / float64(total)
	if math.IsNaN(rate) {
		return 0
	}
	return clip(rate, 0, 1)
}

// Rate is DeflectionRate with the default weights
func Rate(b Breakdown) float64 {
	return DeflectionRate(b, DefaultDeflectionWeights())
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// round1 rounds half away from zero to one decimal place.
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeflectionRate(t *testing.T) {
	tests := []struct {
		name      string
		breakdown Breakdown
		expected  float64
	}{
		{
			name:      "full deflections only",
			breakdown: Breakdown{Full: 10},
			expected:  1.0,
		},
		{
			name:      "mixed full partial and none",
			breakdown: Breakdown{Full: 5, Partial: 10, None: 5},
			expected:  0.5,
		},
		{
			name:      "no deflections",
			breakdown: Breakdown{None: 10},
			expected:  0.0,
		},
		{
			name:      "zero total is zero not NaN",
			breakdown: Breakdown{},
			expected:  0,
		},
		{
			name:      "partials only count half",
			breakdown: Breakdown{Partial: 4},
			expected:  0.5,
		},
		{
			name:      "three four three",
			breakdown: Breakdown{Full: 3, Partial: 4, None: 3},
			expected:  0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate := Rate(tt.breakdown)
			assert.False(t, math.IsNaN(rate))
			assert.InDelta(t, tt.expected, rate, 1e-12)
		})
	}
}

func TestDeflectionRateBounds(t *testing.T) {
	for full := 0; full <= 6; full++ {
		for partial := 0; partial <= 6; partial++ {
			for none := 0; none <= 6; none++ {
				rate := Rate(Breakdown{Full: full, Partial: partial, None: none})
				assert.GreaterOrEqual(t, rate, 0.0)
				assert.LessOrEqual(t, rate, 1.0)
			}
		}
	}
}

func TestDeflectionRateCustomWeights(t *testing.T) {
	b := Breakdown{Full: 2, Partial: 2}

	assert.InDelta(t, 0.75, DeflectionRate(b, DeflectionWeights{Full: 1, Partial: 0.5}), 1e-12)
	assert.InDelta(t, 0.5, DeflectionRate(b, DeflectionWeights{Full: 1, Partial: 0}), 1e-12)
	assert.InDelta(t, 1.0, DeflectionRate(b, DeflectionWeights{Full: 2, Partial: 2}), 1e-12, "clamped to 1")
}

func TestDeflectionWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights DeflectionWeights
		wantErr bool
	}{
		{name: "defaults", weights: DefaultDeflectionWeights()},
		{name: "full only", weights: DeflectionWeights{Full: 1}},
		{name: "partial equals full", weights: DeflectionWeights{Full: 0.5, Partial: 0.5}},
		{name: "both zero", weights: DeflectionWeights{}, wantErr: true},
		{name: "full above one", weights: DeflectionWeights{Full: 1.5}, wantErr: true},
		{name: "partial above full", weights: DeflectionWeights{Full: 0.5, Partial: 0.8}, wantErr: true},
		{name: "negative partial", weights: DeflectionWeights{Full: 1, Partial: -0.1}, wantErr: true},
		{name: "nan full", weights: DeflectionWeights{Full: math.NaN(), Partial: 0.5}, wantErr: true},
		{name: "nan partial", weights: DeflectionWeights{Full: 1, Partial: math.NaN()}, wantErr: true},
		{name: "infinite full", weights: DeflectionWeights{Full: math.Inf(1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		raw      string
		expected Outcome
	}{
		{"Full", OutcomeFull},
		{" full ", OutcomeFull},
		{"Partial", OutcomePartial},
		{"PARTIAL", OutcomePartial},
		{"N/a", OutcomeNone},
		{"", OutcomeNone},
		{"Fully", OutcomeNone},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyOutcome(tt.raw))
		})
	}
}

func TestBreakdownAdd(t *testing.T) {
	a := Breakdown{Full: 1, Partial: 2, None: 3}
	b := Breakdown{Full: 4, Partial: 5, None: 6}

	sum := a.Add(b)
	assert.Equal(t, Breakdown{Full: 5, Partial: 7, None: 9}, sum)
	assert.Equal(t, 21, sum.Total())
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 60.0, round1(60.04))
	assert.Equal(t, 60.1, round1(60.05))
	assert.Equal(t, -0.2, round1(-0.15))
	assert.Equal(t, 0.0, round1(0))
}

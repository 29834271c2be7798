package glicko

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedOutcome_PaperExample(t *testing.T) {
	a := Rating{R: 1400, RD: 80}
	b := Rating{R: 1500, RD: 150}

	assert.InDelta(t, 0.376, ExpectedOutcome(a, b), 1e-3)
}

func TestExpectedOutcome_Symmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		a := Rating{R: 500 + rng.Float64()*2500, RD: MinimumRD + rng.Float64()*(BaseRD-MinimumRD)}
		b := Rating{R: 500 + rng.Float64()*2500, RD: MinimumRD + rng.Float64()*(BaseRD-MinimumRD)}

		ab := ExpectedOutcome(a, b)
		ba := ExpectedOutcome(b, a)
		require.InDelta(t, 1.0, ab+ba, 1e-9, "a=%v b=%v", a, b)
		require.Greater(t, ab, 0.0)
		require.Less(t, ab, 1.0)
	}
}

func TestExpectedOutcome_EqualRatings(t *testing.T) {
	r := Rating{R: 1500, RD: 350}
	assert.InDelta(t, 0.5, ExpectedOutcome(r, r), 1e-12)
}

func TestUpdate_PaperExample(t *testing.T) {
	prior := map[int]Rating{
		1: {R: 1500, RD: 200},
		2: {R: 1400, RD: 30},
		3: {R: 1550, RD: 100},
		4: {R: 1700, RD: 300},
	}
	matches := []Outcome{
		{WinnerID: 1, LoserID: 2},
		{WinnerID: 3, LoserID: 1},
		{WinnerID: 4, LoserID: 1},
	}

	updated, err := Update(DefaultParams(), matches, prior)
	require.NoError(t, err)

	assert.InDelta(t, 1464.1, updated[1].R, 0.05)
	assert.InDelta(t, 151.4, updated[1].RD, 0.05)
}

func TestUpdate_SimultaneousAgainstPrePeriodRatings(t *testing.T) {
	prior := map[int]Rating{
		1: {R: 1500, RD: 200},
		2: {R: 1500, RD: 200},
		3: {R: 1500, RD: 200},
	}
	matches := []Outcome{
		{WinnerID: 1, LoserID: 2},
		{WinnerID: 2, LoserID: 3},
	}

	updated, err := Update(DefaultParams(), matches, prior)
	require.NoError(t, err)

	// 2 is rated against the pre-period values of 1 and 3, so a win and a
	// loss against identical opponents cancel out.
	assert.InDelta(t, 1500, updated[2].R, 1e-9)
	assert.Greater(t, updated[1].R, 1500.0)
	assert.Less(t, updated[3].R, 1500.0)
	assert.InDelta(t, updated[1].R-1500, 1500-updated[3].R, 1e-9)

	// Reordering matches within a period must not matter
	reversed, err := Update(DefaultParams(), []Outcome{matches[1], matches[0]}, prior)
	require.NoError(t, err)
	for id := range updated {
		assert.InDelta(t, updated[id].R, reversed[id].R, 1e-9)
		assert.InDelta(t, updated[id].RD, reversed[id].RD, 1e-9)
	}
}

func TestUpdate_NewEntrantsAndIdleCompetitors(t *testing.T) {
	idle := Rating{R: 1720, RD: 80}
	prior := map[int]Rating{9: idle}

	updated, err := Update(DefaultParams(), []Outcome{{WinnerID: 1, LoserID: 2}}, prior)
	require.NoError(t, err)

	require.Len(t, updated, 3)
	assert.Equal(t, idle, updated[9], "competitors without matches keep their rating")
	assert.Greater(t, updated[1].R, BaseR)
	assert.Less(t, updated[2].R, BaseR)
	assert.Less(t, updated[1].RD, BaseRD)
}

func TestUpdate_DoesNotMutateInput(t *testing.T) {
	prior := map[int]Rating{1: {R: 1500, RD: 200}, 2: {R: 1600, RD: 100}}
	snapshot := map[int]Rating{1: prior[1], 2: prior[2]}

	_, err := Update(DefaultParams(), []Outcome{{WinnerID: 1, LoserID: 2}}, prior)
	require.NoError(t, err)
	assert.Equal(t, snapshot, prior)
}

func TestUpdate_DeviationBounds(t *testing.T) {
	p := DefaultParams()
	prior := map[int]Rating{1: {R: 1500, RD: MinimumRD}, 2: {R: 1500, RD: MinimumRD}}

	var matches []Outcome
	for i := 0; i < 200; i++ {
		matches = append(matches, Outcome{WinnerID: 1, LoserID: 2}, Outcome{WinnerID: 2, LoserID: 1})
	}

	updated, err := Update(p, matches, prior)
	require.NoError(t, err)
	for id, r := range updated {
		assert.GreaterOrEqual(t, r.RD, p.MinimumRD, "competitor %d", id)
		assert.LessOrEqual(t, r.RD, p.BaseRD, "competitor %d", id)
	}
}

func TestUpdate_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		matches []Outcome
		prior   map[int]Rating
	}{
		{
			name:    "self match",
			matches: []Outcome{{WinnerID: 1, LoserID: 1}},
		},
		{
			name:  "deviation above maximum",
			prior: map[int]Rating{1: {R: 1500, RD: 400}},
		},
		{
			name:  "deviation below minimum",
			prior: map[int]Rating{1: {R: 1500, RD: 10}},
		},
		{
			name:  "NaN rating",
			prior: map[int]Rating{1: {R: math.NaN(), RD: 100}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, err := Update(DefaultParams(), tt.matches, tt.prior)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Nil(t, updated)
		})
	}
}

func TestDecay(t *testing.T) {
	p := DefaultParams()
	prior := map[int]Rating{
		1: {R: 1500, RD: 50},
		2: {R: 1600, RD: 50},
		3: {R: 1700, RD: 50},
		4: {R: 1800, RD: BaseRD},
	}
	factors := map[int]float64{1: 0, 2: 0.5}

	decayed, err := Decay(p, prior, factors)
	require.NoError(t, err)

	assert.Equal(t, 50.0, decayed[1].RD, "active competitors keep their deviation")
	assert.InDelta(t, math.Sqrt(50*50+50*50), decayed[2].RD, 1e-9)
	assert.InDelta(t, math.Sqrt(50*50+100*100), decayed[3].RD, 1e-9, "missing factor counts as inactive")
	assert.Equal(t, BaseRD, decayed[4].RD, "deviation is capped")

	for id, r := range decayed {
		assert.Equal(t, prior[id].R, r.R)
	}
	assert.Equal(t, 50.0, prior[3].RD, "input is not mutated")
}

func TestDecay_InactiveStrictlyIncreases(t *testing.T) {
	p := DefaultParams()
	for rd := MinimumRD; rd < BaseRD; rd += 10 {
		decayed, err := Decay(p, map[int]Rating{1: {R: 1500, RD: rd}}, map[int]float64{1: 1})
		require.NoError(t, err)
		assert.Greater(t, decayed[1].RD, rd)
		assert.LessOrEqual(t, decayed[1].RD, BaseRD)
	}
}

func TestDecay_InvalidFactor(t *testing.T) {
	prior := map[int]Rating{1: {R: 1500, RD: 100}}

	for _, f := range []float64{-0.1, 1.01, math.NaN()} {
		decayed, err := Decay(DefaultParams(), prior, map[int]float64{1: f})
		assert.ErrorIs(t, err, ErrInvalidArgument, "factor %v", f)
		assert.Nil(t, decayed)
	}
}

func TestRating_Intervals(t *testing.T) {
	r := Rating{R: 1500, RD: 100}

	lo, hi := r.Interval95()
	assert.InDelta(t, 1304, lo, 1e-9)
	assert.InDelta(t, 1696, hi, 1e-9)

	lo, hi = r.Interval99()
	assert.InDelta(t, 1242.4, lo, 1e-9)
	assert.InDelta(t, 1757.6, hi, 1e-9)
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.MinimumRD = 400
	assert.ErrorIs(t, p.Validate(), ErrInvalidArgument)

	p = DefaultParams()
	p.C = -1
	assert.ErrorIs(t, p.Validate(), ErrInvalidArgument)
}

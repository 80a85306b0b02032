package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPredictsHomeTieIsHomeCall(t *testing.T) {
	tests := []struct {
		pHome float64
		want  bool
	}{
		{0.0, false},
		{0.4999, false},
		{0.5, true},
		{0.5001, true},
		{1.0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("p=%v", tt.pHome), func(t *testing.T) {
			assert.Equal(t, tt.want, PredictsHome(tt.pHome))
		})
	}
}

func TestScoredPairCorrectAndSquaredError(t *testing.T) {
	tests := []struct {
		name    string
		pair    ScoredPair
		correct bool
		sqErr   float64
	}{
		{"confident home, home won", ScoredPair{PHome: 0.9, HomeWon: true}, true, 0.01},
		{"away call, home won", ScoredPair{PHome: 0.3, HomeWon: true}, false, 0.49},
		{"tie call, away won", ScoredPair{PHome: 0.5, HomeWon: false}, false, 0.25},
		{"away call, away won", ScoredPair{PHome: 0.2, HomeWon: false}, true, 0.04},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.correct, tt.pair.Correct())
			assert.InDelta(t, tt.sqErr, tt.pair.SquaredError(), 1e-12)
		})
	}
}

func TestForecastOutcome(t *testing.T) {
	f := ForecastInput{MatchID: "m1", SportKey: "tennis_atp", PlayerA: "A", PlayerB: "B", PHome: Probability(0.7)}.ToForecast(time.Now())

	_, ok := f.Outcome()
	assert.False(t, ok)
	assert.Equal(t, StateUnresolved, f.State)

	f.State = StateResolved
	f.Resolution = &Resolution{HomeWon: true, Winner: "A", ScoredAt: time.Now()}
	won, ok := f.Outcome()
	assert.True(t, ok)
	assert.True(t, won)
}

func TestValidationErrorWrapping(t *testing.T) {
	err := fmt.Errorf("item 3: %w", NewFieldValidationError("p_home", "out_of_range", "must be within [0,1]"))

	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "p_home")
	assert.False(t, IsValidationError(errors.New("plain")))
}

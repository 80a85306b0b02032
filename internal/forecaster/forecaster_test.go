package forecaster

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/forecast-ledger/internal/config"
	"github.com/yourusername/forecast-ledger/internal/datasource"
	"github.com/yourusername/forecast-ledger/internal/models"
)

func fixture(home, away float64) datasource.Fixture {
	return datasource.Fixture{
		MatchID:    "e1",
		HomePlayer: "Sinner",
		AwayPlayer: "Alcaraz",
		HomeOdds:   decimal.NewFromFloat(home),
		AwayOdds:   decimal.NewFromFloat(away),
	}
}

func TestImpliedOdds(t *testing.T) {
	tests := []struct {
		name string
		home float64
		away float64
		want float64
	}{
		{"even money", 2.0, 2.0, 0.5},
		{"home favourite", 1.80, 2.10, (1 / 1.80) / (1/1.80 + 1/2.10)},
		{"heavy underdog", 9.0, 1.05, (1 / 9.0) / (1/9.0 + 1/1.05)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ImpliedOdds{}.Forecast(context.Background(), fixture(tt.home, tt.away))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, p, 1e-9)
		})
	}
}

func TestImpliedOddsRejectsUnpriced(t *testing.T) {
	for _, odds := range [][2]float64{{0, 0}, {1.0, 2.0}, {2.0, 0.5}} {
		_, err := ImpliedOdds{}.Forecast(context.Background(), fixture(odds[0], odds[1]))
		assert.ErrorIs(t, err, ErrUnpriced)
	}
}

func TestRatingBookApply(t *testing.T) {
	book := NewRatingBook(0, 0)
	assert.Equal(t, 0.5, book.Expected("A", "B"))

	book.Apply("A", "B", true)
	assert.InDelta(t, 1516, book.Rating("A"), 1e-9)
	assert.InDelta(t, 1484, book.Rating("B"), 1e-9)
	assert.Greater(t, book.Expected("A", "B"), 0.5)
	assert.Equal(t, 2, book.Len())
}

func TestRatingBookForecastResolved(t *testing.T) {
	book := NewRatingBook(1500, 32)
	f := &models.Forecast{PlayerA: "A", PlayerB: "B", State: models.StateUnresolved}

	book.ForecastResolved(context.Background(), f)
	assert.Equal(t, 0, book.Len(), "unresolved forecasts are ignored")

	f.State = models.StateResolved
	f.Resolution = &models.Resolution{HomeWon: false, Winner: "B"}
	book.ForecastResolved(context.Background(), f)
	assert.Less(t, book.Rating("A"), 1500.0)
}

func TestRatingBookConcurrentApply(t *testing.T) {
	book := NewRatingBook(1500, 32)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			book.Apply("A", "B", i%2 == 0)
			_ = book.Expected("A", "B")
		}(i)
	}
	wg.Wait()

	// Elo is zero-sum between the two players.
	assert.InDelta(t, 3000, book.Rating("A")+book.Rating("B"), 1e-6)
}

func TestEloBlend(t *testing.T) {
	book := NewRatingBook(1500, 32)
	blend := &EloBlend{Ratings: book, Weight: 0.5}

	p, err := blend.Forecast(context.Background(), fixture(1.80, 2.10))
	require.NoError(t, err)
	implied := (1 / 1.80) / (1/1.80 + 1/2.10)
	assert.InDelta(t, 0.5*0.5+0.5*implied, p, 1e-9)

	unpriced := fixture(0, 0)
	p, err = blend.Forecast(context.Background(), unpriced)
	require.NoError(t, err)
	assert.Equal(t, 0.5, p)
}

func TestNew(t *testing.T) {
	f, err := New(config.ForecasterConfig{Model: "implied"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "implied", f.Name())

	f, err = New(config.ForecasterConfig{Model: "elo_blend", BlendWeight: 0.3}, nil)
	require.NoError(t, err)
	assert.Equal(t, "elo_blend", f.Name())
	assert.Equal(t, ModelVersion, f.Version())

	_, err = New(config.ForecasterConfig{Model: "neural"}, nil)
	assert.Error(t, err)
}

func TestRatingBookTop(t *testing.T) {
	book := NewRatingBook(0, 0)
	book.Apply("Sinner", "Rune", true)
	book.Apply("Alcaraz", "Zverev", true)

	top := book.Top(3)
	require.Len(t, top, 3)
	assert.Equal(t, "Alcaraz", top[0].Player, "equal ratings ordered by name")
	assert.Equal(t, "Sinner", top[1].Player)
	assert.InDelta(t, DefaultBaseRating+DefaultK/2, top[0].Rating, 1e-9)
	assert.Less(t, top[2].Rating, DefaultBaseRating)

	assert.Len(t, book.Top(0), 4)
	assert.Empty(t, NewRatingBook(0, 0).Top(10))
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name  string
		pHome float64
		pick  string
		edge  float64
		kelly float64
	}{
		{"home pick", 0.6, "A", 0.1, 0.2},
		{"tie is a home pick", 0.5, "A", 0, 0},
		{"away pick", 0.3, "B", 0.2, 0.4},
		{"strong home pick", 0.9, "A", 0.4, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Assess(tt.pHome, fixture(2.0, 2.0))
			require.True(t, ok)
			assert.Equal(t, tt.pick, v.Pick)
			assert.InDelta(t, tt.edge, v.Edge, 1e-9)
			assert.InDelta(t, tt.kelly, v.Kelly, 1e-9)
		})
	}

	v, ok := Assess(0.2, fixture(1.5, 3.0))
	require.True(t, ok)
	assert.Equal(t, "B", v.Pick)
	assert.InDelta(t, 0.8-1.0/3, v.Edge, 1e-9)

	v, ok = Assess(0.55, fixture(1.2, 4.0))
	require.True(t, ok)
	assert.Zero(t, v.Kelly, "negative kelly clamps to zero")

	_, ok = Assess(0.6, datasource.Fixture{})
	assert.False(t, ok)
}

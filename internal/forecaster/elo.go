package forecaster

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/yourusername/forecast-ledger/internal/datasource"
	"github.com/yourusername/forecast-ledger/internal/models"
)

// Default Elo parameters.
const (
	DefaultBaseRating = 1500.0
	DefaultK          = 32.0
)

// RatingBook holds per-player Elo ratings. It is safe for concurrent use and
// is updated as forecasts resolve.
type RatingBook struct {
	mu      sync.RWMutex
	base    float64
	k       float64
	ratings map[string]float64
}

// NewRatingBook creates an empty rating book.
func NewRatingBook(base, k float64) *RatingBook {
	if base <= 0 {
		base = DefaultBaseRating
	}
	if k <= 0 {
		k = DefaultK
	}
	return &RatingBook{base: base, k: k, ratings: make(map[string]float64)}
}

// Rating returns the player's rating, or the base rating for unknown players.
func (b *RatingBook) Rating(player string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.get(player)
}

func (b *RatingBook) get(player string) float64 {
	if r, ok := b.ratings[player]; ok {
		return r
	}
	return b.base
}

// Expected returns the probability that a beats b.
func (b *RatingBook) Expected(a, bPlayer string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return expectedScore(b.get(a), b.get(bPlayer))
}

// Apply records a result between home and away.
func (b *RatingBook) Apply(home, away string, homeWon bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ra, rb := b.get(home), b.get(away)
	ea := expectedScore(ra, rb)
	score := 0.0
	if homeWon {
		score = 1
	}
	b.ratings[home] = ra + b.k*(score-ea)
	b.ratings[away] = rb + b.k*((1-score)-(1-ea))
}

// ForecastResolved feeds a newly resolved forecast into the ratings.
func (b *RatingBook) ForecastResolved(_ context.Context, f *models.Forecast) {
	homeWon, ok := f.Outcome()
	if !ok {
		return
	}
	b.Apply(f.PlayerA, f.PlayerB, homeWon)
}

// Len returns the number of rated players.
func (b *RatingBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ratings)
}

// PlayerRating is one row of the rating leaderboard.
type PlayerRating struct {
	Player string  `json:"player"`
	Rating float64 `json:"rating"`
}

// Top returns up to n rated players, highest rating first. Equal ratings
// are ordered by name. A non-positive n returns every player.
func (b *RatingBook) Top(n int) []PlayerRating {
	b.mu.RLock()
	out := make([]PlayerRating, 0, len(b.ratings))
	for player, rating := range b.ratings {
		out = append(out, PlayerRating{Player: player, Rating: rating})
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].Player < out[j].Player
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func expectedScore(ra, rb float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (rb-ra)/400.0))
}

// EloBlend mixes the Elo expectation with the market-implied probability:
// Weight*elo + (1-Weight)*implied.
type EloBlend struct {
	Ratings *RatingBook
	Weight  float64
}

// Name returns the model name
func (e *EloBlend) Name() string { return "elo_blend" }

// Version returns the model version
func (e *EloBlend) Version() string { return ModelVersion }

// Forecast blends Elo and implied odds. Unpriced fixtures fall back to
// pure Elo so they are still forecast.
func (e *EloBlend) Forecast(_ context.Context, fixture datasource.Fixture) (float64, error) {
	pElo := e.Ratings.Expected(fixture.HomePlayer, fixture.AwayPlayer)
	if !fixture.HasOdds() {
		return clamp01(pElo), nil
	}

	pImp, err := impliedHome(fixture.HomeOdds, fixture.AwayOdds)
	if err != nil {
		return 0, err
	}
	return clamp01(e.Weight*pElo + (1-e.Weight)*pImp), nil
}

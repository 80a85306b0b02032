package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/forecast-ledger/internal/database"
	"github.com/yourusername/forecast-ledger/internal/models"
)

const forecastColumns = `match_id, sport_key, player_a, player_b, p_home, commence_time, model, model_version,
		created_at, state, home_won, winner, scored_at`

// PostgresForecastRepository implements ForecastRepository for PostgreSQL
type PostgresForecastRepository struct {
	db *database.DB
}

// NewPostgresForecastRepository creates a new forecast repository
func NewPostgresForecastRepository(db *database.DB) ForecastRepository {
	return &PostgresForecastRepository{db: db}
}

// PutIfAbsent inserts a forecast unless its match ID already exists
func (r *PostgresForecastRepository) PutIfAbsent(ctx context.Context, f *models.Forecast) (bool, error) {
	if err := checkStorable(f); err != nil {
		return false, err
	}

	query := `
		INSERT INTO forecasts (match_id, sport_key, player_a, player_b, p_home, commence_time, model, model_version, created_at, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'unresolved')
		ON CONFLICT (match_id) DO NOTHING
	`

	tag, err := r.db.GetPool().Exec(ctx, query,
		f.MatchID, f.SportKey, f.PlayerA, f.PlayerB, f.PHome, f.CommenceTime,
		f.Model, f.ModelVersion, createdAtOrNow(f.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert forecast: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Get retrieves a forecast by match ID
func (r *PostgresForecastRepository) Get(ctx context.Context, matchID string) (*models.Forecast, error) {
	query := `SELECT ` + forecastColumns + ` FROM forecasts WHERE match_id = $1`

	f, err := scanPostgresForecast(r.db.GetPool().QueryRow(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query forecast: %w", err)
	}
	return f, nil
}

// ListUnresolved retrieves unresolved forecasts, oldest first
func (r *PostgresForecastRepository) ListUnresolved(ctx context.Context, sportKey string) ([]*models.Forecast, error) {
	return r.List(ctx, ListFilter{State: models.StateUnresolved, SportKey: sportKey, Limit: -1})
}

// AttachOutcome transitions an unresolved forecast to resolved
func (r *PostgresForecastRepository) AttachOutcome(ctx context.Context, matchID string, res models.Resolution) (bool, error) {
	query := `
		UPDATE forecasts
		SET state = 'resolved', home_won = $2, winner = $3, scored_at = $4
		WHERE match_id = $1 AND state = 'unresolved'
	`

	tag, err := r.db.GetPool().Exec(ctx, query, matchID, res.HomeWon, res.Winner, createdAtOrNow(res.ScoredAt))
	if err != nil {
		return false, fmt.Errorf("failed to attach outcome: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EachScored streams resolved pairs through a server-side cursor
func (r *PostgresForecastRepository) EachScored(ctx context.Context, filter ScoreFilter, fn func(models.ScoredPair) error) error {
	query := `SELECT p_home, home_won FROM forecasts WHERE state = 'resolved'`
	var args []interface{}
	if filter.SportKey != "" {
		query += ` AND sport_key = $1`
		args = append(args, filter.SportKey)
	}

	rows, err := r.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query scored forecasts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pair models.ScoredPair
		if err := rows.Scan(&pair.PHome, &pair.HomeWon); err != nil {
			return fmt.Errorf("failed to scan scored forecast: %w", err)
		}
		if err := fn(pair); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating scored forecasts: %w", err)
	}
	return nil
}

// Stats returns forecast totals grouped by state
func (r *PostgresForecastRepository) Stats(ctx context.Context) (models.StoreStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE state = 'unresolved'),
			COUNT(*) FILTER (WHERE state = 'resolved')
		FROM forecasts
	`

	var stats models.StoreStats
	if err := r.db.GetPool().QueryRow(ctx, query).Scan(&stats.Total, &stats.Unresolved, &stats.Resolved); err != nil {
		return models.StoreStats{}, fmt.Errorf("failed to query forecast stats: %w", err)
	}
	return stats, nil
}

// List retrieves forecasts matching filter, oldest first by creation or
// by resolution.
// A negative Limit returns every matching row.
func (r *PostgresForecastRepository) List(ctx context.Context, filter ListFilter) ([]*models.Forecast, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.State != "" {
		args = append(args, string(filter.State))
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.SportKey != "" {
		args = append(args, filter.SportKey)
		conds = append(conds, fmt.Sprintf("sport_key = $%d", len(args)))
	}

	query := `SELECT ` + forecastColumns + ` FROM forecasts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += filter.orderBy()
	if filter.Limit >= 0 {
		args = append(args, filter.limit(), filter.offset())
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := r.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	var forecasts []*models.Forecast
	for rows.Next() {
		f, err := scanPostgresForecast(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		forecasts = append(forecasts, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forecasts: %w", err)
	}
	return forecasts, nil
}

func scanPostgresForecast(row pgx.Row) (*models.Forecast, error) {
	var (
		f        models.Forecast
		state    string
		homeWon  *bool
		winner   *string
		scoredAt *time.Time
	)
	err := row.Scan(
		&f.MatchID, &f.SportKey, &f.PlayerA, &f.PlayerB, &f.PHome, &f.CommenceTime,
		&f.Model, &f.ModelVersion, &f.CreatedAt, &state, &homeWon, &winner, &scoredAt,
	)
	if err != nil {
		return nil, err
	}

	f.State = models.ForecastState(state)
	if f.State == models.StateResolved && homeWon != nil && winner != nil && scoredAt != nil {
		f.Resolution = &models.Resolution{HomeWon: *homeWon, Winner: *winner, ScoredAt: scoredAt.UTC()}
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}

func createdAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

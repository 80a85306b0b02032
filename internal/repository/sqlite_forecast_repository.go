package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/forecast-ledger/internal/database"
	"github.com/yourusername/forecast-ledger/internal/models"
)

// SQLiteForecastRepository implements ForecastRepository on the embedded
// SQLite store. Timestamps are stored as unix microseconds.
type SQLiteForecastRepository struct {
	db *sql.DB
}

// NewSQLiteForecastRepository creates a new SQLite-backed forecast repository
func NewSQLiteForecastRepository(db *database.SQLiteDB) ForecastRepository {
	return &SQLiteForecastRepository{db: db.Conn()}
}

// PutIfAbsent inserts a forecast unless its match ID already exists
func (r *SQLiteForecastRepository) PutIfAbsent(ctx context.Context, f *models.Forecast) (bool, error) {
	if err := checkStorable(f); err != nil {
		return false, err
	}

	query := `
		INSERT INTO forecasts (match_id, sport_key, player_a, player_b, p_home, commence_time, model, model_version, created_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'unresolved')
		ON CONFLICT (match_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		f.MatchID, f.SportKey, f.PlayerA, f.PlayerB, f.PHome, toMicrosPtr(f.CommenceTime),
		f.Model, f.ModelVersion, createdAtOrNow(f.CreatedAt).UnixMicro(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert forecast: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// Get retrieves a forecast by match ID
func (r *SQLiteForecastRepository) Get(ctx context.Context, matchID string) (*models.Forecast, error) {
	query := `SELECT ` + forecastColumns + ` FROM forecasts WHERE match_id = ?`

	f, err := scanSQLiteForecast(r.db.QueryRowContext(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query forecast: %w", err)
	}
	return f, nil
}

// ListUnresolved retrieves unresolved forecasts, oldest first
func (r *SQLiteForecastRepository) ListUnresolved(ctx context.Context, sportKey string) ([]*models.Forecast, error) {
	return r.List(ctx, ListFilter{State: models.StateUnresolved, SportKey: sportKey, Limit: -1})
}

// AttachOutcome transitions an unresolved forecast to resolved
func (r *SQLiteForecastRepository) AttachOutcome(ctx context.Context, matchID string, res models.Resolution) (bool, error) {
	query := `
		UPDATE forecasts
		SET state = 'resolved', home_won = ?, winner = ?, scored_at = ?
		WHERE match_id = ? AND state = 'unresolved'
	`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(res.HomeWon), res.Winner, createdAtOrNow(res.ScoredAt).UnixMicro(), matchID)
	if err != nil {
		return false, fmt.Errorf("failed to attach outcome: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// EachScored streams resolved pairs row by row.
// fn must not call back into the repository: the single pooled
// connection is held by the open cursor.
func (r *SQLiteForecastRepository) EachScored(ctx context.Context, filter ScoreFilter, fn func(models.ScoredPair) error) error {
	query := `SELECT p_home, home_won FROM forecasts WHERE state = 'resolved'`
	var args []interface{}
	if filter.SportKey != "" {
		query += ` AND sport_key = ?`
		args = append(args, filter.SportKey)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query scored forecasts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pair    models.ScoredPair
			homeWon int64
		)
		if err := rows.Scan(&pair.PHome, &homeWon); err != nil {
			return fmt.Errorf("failed to scan scored forecast: %w", err)
		}
		pair.HomeWon = homeWon == 1
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
func (r *SQLiteForecastRepository) Stats(ctx context.Context) (models.StoreStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN state = 'unresolved' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'resolved' THEN 1 ELSE 0 END), 0)
		FROM forecasts
	`

	var stats models.StoreStats
	if err := r.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Unresolved, &stats.Resolved); err != nil {
		return models.StoreStats{}, fmt.Errorf("failed to query forecast stats: %w", err)
	}
	return stats, nil
}

// List retrieves forecasts matching filter, oldest first by creation or
// by resolution.
// A negative Limit returns every matching row.
func (r *SQLiteForecastRepository) List(ctx context.Context, filter ListFilter) ([]*models.Forecast, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(filter.State))
	}
	if filter.SportKey != "" {
		conds = append(conds, "sport_key = ?")
		args = append(args, filter.SportKey)
	}

	query := `SELECT ` + forecastColumns + ` FROM forecasts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += filter.orderBy()
	if filter.Limit >= 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.limit(), filter.offset())
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	var forecasts []*models.Forecast
	for rows.Next() {
		f, err := scanSQLiteForecast(rows)
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteForecast(row rowScanner) (*models.Forecast, error) {
	var (
		f            models.Forecast
		commenceTime sql.NullInt64
		createdAt    int64
		state        string
		homeWon      sql.NullInt64
		winner       sql.NullString
		scoredAt     sql.NullInt64
	)
	err := row.Scan(
		&f.MatchID, &f.SportKey, &f.PlayerA, &f.PlayerB, &f.PHome, &commenceTime,
		&f.Model, &f.ModelVersion, &createdAt, &state, &homeWon, &winner, &scoredAt,
	)
	if err != nil {
		return nil, err
	}

	f.CreatedAt = time.UnixMicro(createdAt).UTC()
	if commenceTime.Valid {
		t := time.UnixMicro(commenceTime.Int64).UTC()
		f.CommenceTime = &t
	}
	f.State = models.ForecastState(state)
	if f.State == models.StateResolved && homeWon.Valid && winner.Valid && scoredAt.Valid {
		f.Resolution = &models.Resolution{
			HomeWon:  homeWon.Int64 == 1,
			Winner:   winner.String,
			ScoredAt: time.UnixMicro(scoredAt.Int64).UTC(),
		}
	}
	return &f, nil
}

func toMicrosPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMicro()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

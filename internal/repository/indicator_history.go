package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/database/repositories"
	"github.com/M1nhHoang/marketintel/internal/domain"
)

// IndicatorHistoryRepository appends time-series data points, deduping
// same-day same-value republishes.
type IndicatorHistoryRepository struct {
	*repositories.BaseRepository
}

// NewIndicatorHistoryRepository constructs an IndicatorHistoryRepository.
func NewIndicatorHistoryRepository(db *sql.DB, log zerolog.Logger) *IndicatorHistoryRepository {
	return &IndicatorHistoryRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "indicator_history").Logger()),
	}
}

// AddHistory deduplicates by (indicator_id, date, value): if an
// identical row already exists it returns (nil, nil) — a no-op, not an
// error. Otherwise it computes change/change_pct against the most
// recent prior row and inserts.
func (r *IndicatorHistoryRepository) AddHistory(ctx context.Context, indicatorID string, value float64, date time.Time, volume *float64, source string) (*domain.IndicatorHistory, error) {
	var exists int
	err := r.DB().QueryRowContext(ctx, `
		SELECT 1 FROM indicator_history WHERE indicator_id = ? AND date = ? AND value = ?`,
		indicatorID, date, value,
	).Scan(&exists)
	if err == nil {
		return nil, nil // identical republish, idempotent no-op
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("probe indicator history %s: %w", indicatorID, err)
	}

	var previousValue float64
	err = r.DB().QueryRowContext(ctx, `
		SELECT value FROM indicator_history
		WHERE indicator_id = ? ORDER BY date DESC, id DESC LIMIT 1`, indicatorID,
	).Scan(&previousValue)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup previous value %s: %w", indicatorID, err)
	}

	change := value - previousValue
	changePct := 0.0
	if previousValue != 0 {
		changePct = change / previousValue * 100
	}

	now := time.Now().UTC()
	res, err := r.DB().ExecContext(ctx, `
		INSERT INTO indicator_history (indicator_id, value, previous_value, change, change_pct, volume, date, recorded_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		indicatorID, value, previousValue, change, changePct, nullFloat64(volume), date, now, source,
	)
	if err != nil {
		return nil, fmt.Errorf("insert indicator history %s: %w", indicatorID, err)
	}
	id, _ := res.LastInsertId()

	return &domain.IndicatorHistory{
		ID:            id,
		IndicatorID:   indicatorID,
		Value:         value,
		PreviousValue: previousValue,
		Change:        change,
		ChangePct:     changePct,
		Volume:        volume,
		Date:          date,
		RecordedAt:    now,
		Source:        source,
	}, nil
}

// GetHistory returns up to limit points for id within the last days
// days, newest first.
func (r *IndicatorHistoryRepository) GetHistory(ctx context.Context, indicatorID string, days, limit int) ([]domain.IndicatorHistory, error) {
	since := time.Now().AddDate(0, 0, -days)
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, indicator_id, value, previous_value, change, change_pct, volume, date, recorded_at, source
		FROM indicator_history WHERE indicator_id = ? AND date >= ?
		ORDER BY date DESC LIMIT ?`, indicatorID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", indicatorID, err)
	}
	defer rows.Close()

	var out []domain.IndicatorHistory
	for rows.Next() {
		var h domain.IndicatorHistory
		var volume sql.NullFloat64
		if err := rows.Scan(&h.ID, &h.IndicatorID, &h.Value, &h.PreviousValue, &h.Change, &h.ChangePct,
			&volume, &h.Date, &h.RecordedAt, &h.Source); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		h.Volume = floatPtrFromNull(volume)
		out = append(out, h)
	}
	return out, rows.Err()
}

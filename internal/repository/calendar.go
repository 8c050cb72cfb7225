package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/database/repositories"
	"github.com/M1nhHoang/marketintel/internal/domain"
)

// CalendarRepository persists scheduled economic events.
type CalendarRepository struct {
	*repositories.BaseRepository
}

// NewCalendarRepository constructs a CalendarRepository.
func NewCalendarRepository(db *sql.DB, log zerolog.Logger) *CalendarRepository {
	return &CalendarRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "calendar").Logger()),
	}
}

// Insert adds a calendar record, ignoring unique-constraint conflicts
// on (date, event_name, country) as an idempotent duplicate.
func (r *CalendarRepository) Insert(ctx context.Context, c domain.CalendarRecord) (bool, error) {
	res, err := r.DB().ExecContext(ctx, `
		INSERT OR IGNORE INTO calendar_records (event_name, country, date, time, importance, previous, forecast, actual)
		VALUES (?,?,?,?,?,?,?,?)`,
		c.EventName, c.Country, c.Date, nullString(c.Time), nullString(c.Importance),
		optionalString(c.Previous), optionalString(c.Forecast), optionalString(c.Actual),
	)
	if err != nil {
		return false, fmt.Errorf("insert calendar record %s/%s: %w", c.EventName, c.Date, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetByDateRange returns calendar records between from and to
// (YYYY-MM-DD, inclusive).
func (r *CalendarRepository) GetByDateRange(ctx context.Context, from, to string) ([]domain.CalendarRecord, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT event_name, country, date, time, importance, previous, forecast, actual
		FROM calendar_records WHERE date >= ? AND date <= ? ORDER BY date, time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("get calendar records: %w", err)
	}
	defer rows.Close()

	var out []domain.CalendarRecord
	for rows.Next() {
		var (
			c                                          domain.CalendarRecord
			timeVal, importance, previous, forecast, actual sql.NullString
		)
		if err := rows.Scan(&c.EventName, &c.Country, &c.Date, &timeVal, &importance, &previous, &forecast, &actual); err != nil {
			return nil, fmt.Errorf("scan calendar record: %w", err)
		}
		c.Time = timeVal.String
		c.Importance = importance.String
		c.Previous = nullableString(previous)
		c.Forecast = nullableString(forecast)
		c.Actual = nullableString(actual)
		out = append(out, c)
	}
	return out, rows.Err()
}

func optionalString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

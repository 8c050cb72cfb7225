package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/database/repositories"
	"github.com/M1nhHoang/marketintel/internal/domain"
)

// RunHistoryRepository persists one row per orchestrator pass.
type RunHistoryRepository struct {
	*repositories.BaseRepository
}

// NewRunHistoryRepository constructs a RunHistoryRepository.
func NewRunHistoryRepository(db *sql.DB, log zerolog.Logger) *RunHistoryRepository {
	return &RunHistoryRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "run_history").Logger()),
	}
}

// Create inserts a run history row. It is always called, even when the
// run failed, so downstream tooling always has a row to point to.
func (r *RunHistoryRepository) Create(ctx context.Context, rh domain.RunHistory) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO run_history (id, started_at, finished_at, status, summary, metrics_ingested,
			calendar_ingested, events_collected, events_classified, events_relevant, duplicates_skipped,
			events_scored, events_ranked, errors, stats)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rh.ID, rh.StartedAt, rh.FinishedAt, string(rh.Status), nullString(rh.Summary),
		rh.MetricsIngested, rh.CalendarIngested, rh.EventsCollected, rh.EventsClassified,
		rh.EventsRelevant, rh.DuplicatesSkipped, rh.EventsScored, rh.EventsRanked,
		toJSON(rh.Errors), toJSON(rh.Stats),
	)
	if err != nil {
		return fmt.Errorf("create run history %s: %w", rh.ID, err)
	}
	return nil
}

// GetLatest returns the most recent run history row, or nil if none
// exists yet.
func (r *RunHistoryRepository) GetLatest(ctx context.Context) (*domain.RunHistory, error) {
	row := r.DB().QueryRowContext(ctx, runHistorySelectColumns+` ORDER BY started_at DESC LIMIT 1`)
	rh, err := scanRunHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run history: %w", err)
	}
	return rh, nil
}

// GetRecent returns run history rows from the last `days` days, newest
// first.
func (r *RunHistoryRepository) GetRecent(ctx context.Context, days int) ([]domain.RunHistory, error) {
	rows, err := r.DB().QueryContext(ctx, runHistorySelectColumns+`
		WHERE started_at >= datetime('now', ?) ORDER BY started_at DESC`, fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, fmt.Errorf("get recent run history: %w", err)
	}
	defer rows.Close()

	var out []domain.RunHistory
	for rows.Next() {
		rh, err := scanRunHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run history: %w", err)
		}
		out = append(out, *rh)
	}
	return out, rows.Err()
}

const runHistorySelectColumns = `
	SELECT id, started_at, finished_at, status, summary, metrics_ingested, calendar_ingested,
		events_collected, events_classified, events_relevant, duplicates_skipped, events_scored,
		events_ranked, errors, stats
	FROM run_history`

func scanRunHistory(row rowScanner) (*domain.RunHistory, error) {
	var (
		rh              domain.RunHistory
		status          string
		summary         sql.NullString
		errorsJSON, statsJSON sql.NullString
		finishedAt      sql.NullTime
	)
	err := row.Scan(&rh.ID, &rh.StartedAt, &finishedAt, &status, &summary, &rh.MetricsIngested,
		&rh.CalendarIngested, &rh.EventsCollected, &rh.EventsClassified, &rh.EventsRelevant,
		&rh.DuplicatesSkipped, &rh.EventsScored, &rh.EventsRanked, &errorsJSON, &statsJSON)
	if err != nil {
		return nil, err
	}
	rh.Status = domain.RunStatus(status)
	rh.Summary = summary.String
	if t := timePtrFromNull(finishedAt); t != nil {
		rh.FinishedAt = *t
	}
	fromJSON(errorsJSON, &rh.Errors)
	fromJSON(statsJSON, &rh.Stats)
	return &rh, nil
}

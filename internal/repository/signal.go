package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/database/repositories"
	"github.com/M1nhHoang/marketintel/internal/domain"
)

// SignalRepository persists bounded, verifiable short-term predictions.
type SignalRepository struct {
	*repositories.BaseRepository
}

// NewSignalRepository constructs a SignalRepository.
func NewSignalRepository(db *sql.DB, log zerolog.Logger) *SignalRepository {
	return &SignalRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "signal").Logger()),
	}
}

// Create inserts a new signal.
func (r *SignalRepository) Create(ctx context.Context, s domain.Signal) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO signals (id, source_event_id, direction, target_indicator, target_range_low,
			target_range_high, confidence, timeframe_days, reasoning, status, actual_value,
			created_at, expires_at, verified_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.SourceEventID, string(s.Direction), s.TargetIndicator, nullFloat64(s.TargetRangeLow),
		nullFloat64(s.TargetRangeHigh), string(s.Confidence), s.TimeframeDays, nullString(s.Reasoning),
		string(s.Status), nullFloat64(s.ActualValue), s.CreatedAt, s.ExpiresAt, nullTime(s.VerifiedAt),
	)
	if err != nil {
		return fmt.Errorf("create signal %s: %w", s.ID, err)
	}
	return nil
}

// GetActive returns all signals with status=active.
func (r *SignalRepository) GetActive(ctx context.Context) ([]domain.Signal, error) {
	return r.queryStatus(ctx, domain.SignalActive)
}

// GetByStatus returns all signals with the given status.
func (r *SignalRepository) GetByStatus(ctx context.Context, status domain.SignalStatus) ([]domain.Signal, error) {
	return r.queryStatus(ctx, status)
}

// GetExpiredUnverified returns active signals whose expiry has passed —
// the verification job's working set.
func (r *SignalRepository) GetExpiredUnverified(ctx context.Context) ([]domain.Signal, error) {
	rows, err := r.DB().QueryContext(ctx, signalSelectColumns+` WHERE status = ? AND expires_at < ?`,
		string(domain.SignalActive), time.Now())
	if err != nil {
		return nil, fmt.Errorf("get expired unverified signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// Verify transitions a signal to a terminal status, recording the
// observed value and verification timestamp.
func (r *SignalRepository) Verify(ctx context.Context, id string, status domain.SignalStatus, actual *float64) error {
	now := time.Now()
	_, err := r.DB().ExecContext(ctx, `
		UPDATE signals SET status = ?, actual_value = ?, verified_at = ? WHERE id = ?`,
		string(status), nullFloat64(actual), now, id,
	)
	if err != nil {
		return fmt.Errorf("verify signal %s: %w", id, err)
	}
	return nil
}

// AccuracyStats summarizes verified-signal outcomes over a trailing
// window, optionally narrowed to one confidence tier or indicator.
type AccuracyStats struct {
	Total    int
	Correct  int
	Incorrect int
	Accuracy float64 // Correct / (Correct + Incorrect), 0 when no terminal signals
}

// GetAccuracyStats reports hit-rate over signals created in the
// trailing days window, optionally filtered by confidence and/or
// target indicator.
func (r *SignalRepository) GetAccuracyStats(ctx context.Context, days int, confidence *domain.SignalConfidence, indicator *string) (AccuracyStats, error) {
	query := `SELECT status, COUNT(*) FROM signals WHERE created_at >= ? AND status IN (?, ?)`
	args := []any{time.Now().AddDate(0, 0, -days), string(domain.SignalVerifiedCorrect), string(domain.SignalVerifiedWrong)}

	if confidence != nil {
		query += ` AND confidence = ?`
		args = append(args, string(*confidence))
	}
	if indicator != nil {
		query += ` AND target_indicator = ?`
		args = append(args, *indicator)
	}
	query += ` GROUP BY status`

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return AccuracyStats{}, fmt.Errorf("get signal accuracy stats: %w", err)
	}
	defer rows.Close()

	var stats AccuracyStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return AccuracyStats{}, fmt.Errorf("scan accuracy row: %w", err)
		}
		switch domain.SignalStatus(status) {
		case domain.SignalVerifiedCorrect:
			stats.Correct = count
		case domain.SignalVerifiedWrong:
			stats.Incorrect = count
		}
	}
	if err := rows.Err(); err != nil {
		return AccuracyStats{}, fmt.Errorf("get signal accuracy stats: %w", err)
	}

	stats.Total = stats.Correct + stats.Incorrect
	if stats.Total > 0 {
		stats.Accuracy = float64(stats.Correct) / float64(stats.Total)
	}
	return stats, nil
}

func (r *SignalRepository) queryStatus(ctx context.Context, status domain.SignalStatus) ([]domain.Signal, error) {
	rows, err := r.DB().QueryContext(ctx, signalSelectColumns+` WHERE status = ?`, string(status))
	if err != nil {
		return nil, fmt.Errorf("get signals by status %s: %w", status, err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

const signalSelectColumns = `
	SELECT id, source_event_id, direction, target_indicator, target_range_low, target_range_high,
		confidence, timeframe_days, reasoning, status, actual_value, created_at, expires_at, verified_at
	FROM signals`

func scanSignals(rows *sql.Rows) ([]domain.Signal, error) {
	var out []domain.Signal
	for rows.Next() {
		var (
			s                                domain.Signal
			direction, confidence, status    string
			rangeLow, rangeHigh, actualValue sql.NullFloat64
			reasoning                        sql.NullString
			verifiedAt                       sql.NullTime
		)
		err := rows.Scan(&s.ID, &s.SourceEventID, &direction, &s.TargetIndicator, &rangeLow, &rangeHigh,
			&confidence, &s.TimeframeDays, &reasoning, &status, &actualValue, &s.CreatedAt, &s.ExpiresAt, &verifiedAt)
		if err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		s.Direction = domain.SignalDirection(direction)
		s.Confidence = domain.SignalConfidence(confidence)
		s.Status = domain.SignalStatus(status)
		s.Reasoning = reasoning.String
		s.TargetRangeLow = floatPtrFromNull(rangeLow)
		s.TargetRangeHigh = floatPtrFromNull(rangeHigh)
		s.ActualValue = floatPtrFromNull(actualValue)
		s.VerifiedAt = timePtrFromNull(verifiedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

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

// WatchlistRepository persists declarative triggers (date, indicator
// condition, keyword match).
type WatchlistRepository struct {
	*repositories.BaseRepository
}

// NewWatchlistRepository constructs a WatchlistRepository.
func NewWatchlistRepository(db *sql.DB, log zerolog.Logger) *WatchlistRepository {
	return &WatchlistRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "watchlist").Logger()),
	}
}

// Create inserts a new watchlist item.
func (r *WatchlistRepository) Create(ctx context.Context, w domain.Watchlist) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO watchlist_items (id, type, indicator, condition, keyword, trigger_date,
			status, snooze_until, created_at, triggered_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		w.ID, string(w.Type), nullString(w.Indicator), nullString(w.Condition), nullString(w.Keyword),
		nullTime(w.TriggerDate), string(w.Status), nullTime(w.SnoozeUntil), w.CreatedAt, nullTime(w.TriggeredAt),
	)
	if err != nil {
		return fmt.Errorf("create watchlist item %s: %w", w.ID, err)
	}
	return nil
}

// GetActive returns all items with status=watching (excluding those
// currently snoozed past now).
func (r *WatchlistRepository) GetActive(ctx context.Context) ([]domain.Watchlist, error) {
	rows, err := r.DB().QueryContext(ctx, watchlistSelectColumns+`
		WHERE status = 'watching' AND (snooze_until IS NULL OR snooze_until < ?)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("get active watchlist items: %w", err)
	}
	defer rows.Close()
	return scanWatchlist(rows)
}

// GetTriggered returns all items with status=triggered.
func (r *WatchlistRepository) GetTriggered(ctx context.Context) ([]domain.Watchlist, error) {
	rows, err := r.DB().QueryContext(ctx, watchlistSelectColumns+` WHERE status = 'triggered'`)
	if err != nil {
		return nil, fmt.Errorf("get triggered watchlist items: %w", err)
	}
	defer rows.Close()
	return scanWatchlist(rows)
}

// Trigger flips an item to status=triggered.
func (r *WatchlistRepository) Trigger(ctx context.Context, id string) error {
	now := time.Now()
	_, err := r.DB().ExecContext(ctx, `UPDATE watchlist_items SET status = 'triggered', triggered_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("trigger watchlist item %s: %w", id, err)
	}
	return nil
}

const watchlistSelectColumns = `
	SELECT id, type, indicator, condition, keyword, trigger_date, status, snooze_until, created_at, triggered_at
	FROM watchlist_items`

func scanWatchlist(rows *sql.Rows) ([]domain.Watchlist, error) {
	var out []domain.Watchlist
	for rows.Next() {
		var (
			w                          domain.Watchlist
			typ, status                string
			indicator, condition, kw   sql.NullString
			triggerDate, snooze, trig  sql.NullTime
		)
		err := rows.Scan(&w.ID, &typ, &indicator, &condition, &kw, &triggerDate, &status, &snooze, &w.CreatedAt, &trig)
		if err != nil {
			return nil, fmt.Errorf("scan watchlist row: %w", err)
		}
		w.Type = domain.WatchlistType(typ)
		w.Status = domain.WatchlistStatus(status)
		w.Indicator = indicator.String
		w.Condition = condition.String
		w.Keyword = kw.String
		w.TriggerDate = timePtrFromNull(triggerDate)
		w.SnoozeUntil = timePtrFromNull(snooze)
		w.TriggeredAt = timePtrFromNull(trig)
		out = append(out, w)
	}
	return out, rows.Err()
}

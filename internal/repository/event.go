package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/database/repositories"
	"github.com/M1nhHoang/marketintel/internal/domain"
)

// EventRepository persists news/document items and the progressive
// Stage 1/2/3 fields attached to them.
type EventRepository struct {
	*repositories.BaseRepository
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *sql.DB, log zerolog.Logger) *EventRepository {
	return &EventRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "event").Logger()),
	}
}

// FindByHash is the dedup probe: returns (nil, nil) when no event with
// that hash exists yet.
func (r *EventRepository) FindByHash(ctx context.Context, hash string) (*domain.Event, error) {
	row := r.DB().QueryRowContext(ctx, eventSelectColumns+` WHERE hash = ?`, hash)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find event by hash: %w", err)
	}
	return ev, nil
}

// GetRecentTitles returns distinct titles published in the last `days`
// days, optionally filtered to one source. It drives adapter-level
// title dedup before expensive content fetches.
func (r *EventRepository) GetRecentTitles(ctx context.Context, source string, days int) (map[string]bool, error) {
	since := time.Now().AddDate(0, 0, -days)
	query := `SELECT DISTINCT title FROM events WHERE published_at >= ?`
	args := []any{since}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get recent titles: %w", err)
	}
	defer rows.Close()

	titles := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles[t] = true
	}
	return titles, rows.Err()
}

// GetActiveEvents returns the working set for the ranker: events no
// older than maxAgeDays.
func (r *EventRepository) GetActiveEvents(ctx context.Context, maxAgeDays int) ([]domain.Event, error) {
	since := time.Now().AddDate(0, 0, -maxAgeDays)
	rows, err := r.DB().QueryContext(ctx, eventSelectColumns+` WHERE published_at >= ? ORDER BY published_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("get active events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// GetBySection returns events in a tier: key_events sorted by
// current_score desc, other tiers by published_at desc (spec §6).
func (r *EventRepository) GetBySection(ctx context.Context, section domain.DisplaySection, limit, offset int) ([]domain.Event, error) {
	order := "published_at DESC"
	if section == domain.SectionKeyEvents {
		order = "current_score DESC"
	}
	rows, err := r.DB().QueryContext(ctx,
		eventSelectColumns+fmt.Sprintf(` WHERE display_section = ? ORDER BY %s LIMIT ? OFFSET ?`, order),
		string(section), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get events by section: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// Create inserts a new event row. Callers must have probed FindByHash
// first; a unique-constraint violation on hash is returned wrapping
// domain.ErrDuplicateEvent.
func (r *EventRepository) Create(ctx context.Context, ev domain.Event) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO events (id, hash, type, title, summary, content, source, source_url,
			published_at, run_date, is_market_relevant, category, region, linked_indicators,
			base_score, score_factors, current_score, decay_factor, boost_factor,
			display_section, hot_topic, is_follow_up, last_ranked_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Hash, string(ev.Type), ev.Title, nullString(ev.Summary), nullString(ev.Content),
		ev.Source, ev.SourceURL, ev.PublishedAt, ev.RunDate, boolToInt(ev.IsMarketRelevant),
		nullString(ev.Category), nullString(ev.Region), toJSON(ev.LinkedIndicators),
		ev.BaseScore, toJSON(ev.ScoreFactors), ev.CurrentScore, ev.DecayFactor, ev.BoostFactor,
		string(ev.DisplaySection), boolToInt(ev.HotTopic), boolToInt(ev.IsFollowUp), nullTime(&ev.LastRankedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: events.hash") {
			return fmt.Errorf("create event %s: %w", ev.ID, domain.ErrDuplicateEvent)
		}
		return fmt.Errorf("create event %s: %w", ev.ID, err)
	}
	return nil
}

// UpdateScores atomically applies the Stage 3 ranking fields to an
// existing event row.
func (r *EventRepository) UpdateScores(ctx context.Context, id string, current, decay, boost float64, section domain.DisplaySection, hotTopic bool, rankedAt time.Time) error {
	_, err := r.DB().ExecContext(ctx, `
		UPDATE events SET current_score = ?, decay_factor = ?, boost_factor = ?,
			display_section = ?, hot_topic = ?, last_ranked_at = ?
		WHERE id = ?`,
		current, decay, boost, string(section), boolToInt(hotTopic), rankedAt, id,
	)
	if err != nil {
		return fmt.Errorf("update scores for event %s: %w", id, err)
	}
	return nil
}

const eventSelectColumns = `
	SELECT id, hash, type, title, summary, content, source, source_url, published_at, run_date,
		is_market_relevant, category, region, linked_indicators, base_score, score_factors,
		current_score, decay_factor, boost_factor, display_section, hot_topic, is_follow_up, last_ranked_at
	FROM events`

func scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		ev                                   domain.Event
		typ, section                         string
		summary, content, category, region   sql.NullString
		linkedIndicators, scoreFactors       sql.NullString
		isRelevant, hotTopic, isFollowUp     int
		lastRankedAt                         sql.NullTime
	)
	err := row.Scan(&ev.ID, &ev.Hash, &typ, &ev.Title, &summary, &content, &ev.Source, &ev.SourceURL,
		&ev.PublishedAt, &ev.RunDate, &isRelevant, &category, &region, &linkedIndicators,
		&ev.BaseScore, &scoreFactors, &ev.CurrentScore, &ev.DecayFactor, &ev.BoostFactor,
		&section, &hotTopic, &isFollowUp, &lastRankedAt)
	if err != nil {
		return nil, err
	}

	ev.Type = domain.EventType(typ)
	ev.Summary = summary.String
	ev.Content = content.String
	ev.Category = category.String
	ev.Region = region.String
	ev.IsMarketRelevant = isRelevant != 0
	ev.DisplaySection = domain.DisplaySection(section)
	ev.HotTopic = hotTopic != 0
	ev.IsFollowUp = isFollowUp != 0
	if t := timePtrFromNull(lastRankedAt); t != nil {
		ev.LastRankedAt = *t
	}
	fromJSON(linkedIndicators, &ev.LinkedIndicators)
	fromJSON(scoreFactors, &ev.ScoreFactors)
	return &ev, nil
}

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

// IndicatorRepository persists the single current-value row per
// indicator id.
type IndicatorRepository struct {
	*repositories.BaseRepository
}

// NewIndicatorRepository constructs an IndicatorRepository.
func NewIndicatorRepository(db *sql.DB, log zerolog.Logger) *IndicatorRepository {
	return &IndicatorRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "indicator").Logger()),
	}
}

// Upsert creates or updates the single row for id, recomputing trend
// from the supplied change.
func (r *IndicatorRepository) Upsert(ctx context.Context, ind domain.Indicator) error {
	trend := domain.TrendStable
	switch {
	case ind.Change > 0:
		trend = domain.TrendUp
	case ind.Change < 0:
		trend = domain.TrendDown
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO indicators (id, display_name, display_name_vi, category, unit,
			latest_value, change, change_pct, trend, source, source_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			display_name_vi = excluded.display_name_vi,
			category = excluded.category,
			unit = excluded.unit,
			latest_value = excluded.latest_value,
			change = excluded.change,
			change_pct = excluded.change_pct,
			trend = excluded.trend,
			source = excluded.source,
			source_url = excluded.source_url,
			updated_at = excluded.updated_at`,
		ind.ID, ind.DisplayName, nullString(ind.DisplayNameVi), ind.Category, nullString(ind.Unit),
		ind.LatestValue, ind.Change, ind.ChangePct, string(trend), ind.Source, nullString(ind.SourceURL), ind.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert indicator %s: %w", ind.ID, err)
	}
	return nil
}

// GetByID returns the indicator row for id, or sql.ErrNoRows.
func (r *IndicatorRepository) GetByID(ctx context.Context, id string) (*domain.Indicator, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT id, display_name, display_name_vi, category, unit, latest_value,
			change, change_pct, trend, source, source_url, updated_at
		FROM indicators WHERE id = ?`, id)
	ind, err := scanIndicator(row)
	if err != nil {
		return nil, fmt.Errorf("get indicator %s: %w", id, err)
	}
	return ind, nil
}

// GetAllGrouped returns every indicator grouped by category, matching
// the read API's contract (spec §6).
func (r *IndicatorRepository) GetAllGrouped(ctx context.Context) (map[string][]domain.Indicator, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, display_name, display_name_vi, category, unit, latest_value,
			change, change_pct, trend, source, source_url, updated_at
		FROM indicators ORDER BY category, id`)
	if err != nil {
		return nil, fmt.Errorf("list indicators: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string][]domain.Indicator)
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan indicator: %w", err)
		}
		grouped[ind.Category] = append(grouped[ind.Category], *ind)
	}
	return grouped, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIndicator(row rowScanner) (*domain.Indicator, error) {
	var (
		ind                      domain.Indicator
		displayNameVi, unit, url sql.NullString
		trend                    string
		updatedAt                time.Time
	)
	err := row.Scan(&ind.ID, &ind.DisplayName, &displayNameVi, &ind.Category, &unit,
		&ind.LatestValue, &ind.Change, &ind.ChangePct, &trend, &ind.Source, &url, &updatedAt)
	if err != nil {
		return nil, err
	}
	ind.DisplayNameVi = displayNameVi.String
	ind.Unit = unit.String
	ind.SourceURL = url.String
	ind.Trend = domain.Trend(trend)
	ind.UpdatedAt = updatedAt
	return &ind, nil
}

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

// ThemeRepository persists named clusters of related events/signals.
type ThemeRepository struct {
	*repositories.BaseRepository
}

// NewThemeRepository constructs a ThemeRepository.
func NewThemeRepository(db *sql.DB, log zerolog.Logger) *ThemeRepository {
	return &ThemeRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "theme").Logger()),
	}
}

// Create inserts a new theme.
func (r *ThemeRepository) Create(ctx context.Context, t domain.Theme) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO themes (id, name, name_vi, description, strength, peak_strength, status, first_seen_at, last_seen_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, nullString(t.NameVi), nullString(t.Description), t.Strength, t.PeakStrength,
		string(t.Status), t.FirstSeenAt, t.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("create theme %s: %w", t.ID, err)
	}
	return nil
}

// GetByID returns a theme by id, or nil if absent.
func (r *ThemeRepository) GetByID(ctx context.Context, id string) (*domain.Theme, error) {
	row := r.DB().QueryRowContext(ctx, themeSelectColumns+` WHERE id = ?`, id)
	t, err := scanTheme(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get theme %s: %w", id, err)
	}
	return t, nil
}

// GetActiveAndEmerging returns up to limit themes with status in
// {active, emerging}, most recently seen first.
func (r *ThemeRepository) GetActiveAndEmerging(ctx context.Context, limit int) ([]domain.Theme, error) {
	rows, err := r.DB().QueryContext(ctx, themeSelectColumns+`
		WHERE status IN ('active', 'emerging') ORDER BY last_seen_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get active/emerging themes: %w", err)
	}
	defer rows.Close()

	var out []domain.Theme
	for rows.Next() {
		t, err := scanTheme(rows)
		if err != nil {
			return nil, fmt.Errorf("scan theme: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateStrength is the background-job interface: it updates strength
// (and, optionally, peak strength / status) for an existing theme.
func (r *ThemeRepository) UpdateStrength(ctx context.Context, id string, strength float64, peak *float64, status *domain.ThemeStatus) error {
	now := time.Now()
	if peak == nil && status == nil {
		_, err := r.DB().ExecContext(ctx, `UPDATE themes SET strength = ?, last_seen_at = ? WHERE id = ?`, strength, now, id)
		if err != nil {
			return fmt.Errorf("update theme strength %s: %w", id, err)
		}
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("update theme strength %s: not found", id)
	}
	peakStrength := current.PeakStrength
	if peak != nil && *peak > peakStrength {
		peakStrength = *peak
	}
	themeStatus := current.Status
	if status != nil {
		themeStatus = *status
	}

	_, err = r.DB().ExecContext(ctx, `
		UPDATE themes SET strength = ?, peak_strength = ?, status = ?, last_seen_at = ? WHERE id = ?`,
		strength, peakStrength, string(themeStatus), now, id,
	)
	if err != nil {
		return fmt.Errorf("update theme strength %s: %w", id, err)
	}
	return nil
}

const themeSelectColumns = `
	SELECT id, name, name_vi, description, strength, peak_strength, status, first_seen_at, last_seen_at
	FROM themes`

func scanTheme(row rowScanner) (*domain.Theme, error) {
	var (
		t                     domain.Theme
		nameVi, description   sql.NullString
		status                string
	)
	err := row.Scan(&t.ID, &t.Name, &nameVi, &description, &t.Strength, &t.PeakStrength,
		&status, &t.FirstSeenAt, &t.LastSeenAt)
	if err != nil {
		return nil, err
	}
	t.NameVi = nameVi.String
	t.Description = description.String
	t.Status = domain.ThemeStatus(status)
	return &t, nil
}

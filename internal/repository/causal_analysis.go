package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/database/repositories"
	"github.com/M1nhHoang/marketintel/internal/domain"
)

// CausalAnalysisRepository persists the at-most-one causal chain
// attached to an event by the Scorer.
type CausalAnalysisRepository struct {
	*repositories.BaseRepository
}

// NewCausalAnalysisRepository constructs a CausalAnalysisRepository.
func NewCausalAnalysisRepository(db *sql.DB, log zerolog.Logger) *CausalAnalysisRepository {
	return &CausalAnalysisRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "causal_analysis").Logger()),
	}
}

// Create inserts a causal analysis row for an event.
func (r *CausalAnalysisRepository) Create(ctx context.Context, ca domain.CausalAnalysis) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO causal_analyses (event_id, matched_template_id, chain, confidence,
			investigation_prompts, affected_indicators, reasoning)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ca.EventID, nullString(ca.MatchedTemplateID), toJSON(ca.Chain), ca.Confidence,
		toJSON(ca.InvestigationPrompts), toJSON(ca.AffectedIndicators), nullString(ca.Reasoning),
	)
	if err != nil {
		return fmt.Errorf("create causal analysis for event %s: %w", ca.EventID, err)
	}
	return nil
}

// GetByEventID returns the causal analysis for an event, if any.
func (r *CausalAnalysisRepository) GetByEventID(ctx context.Context, eventID string) (*domain.CausalAnalysis, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT event_id, matched_template_id, chain, confidence, investigation_prompts, affected_indicators, reasoning
		FROM causal_analyses WHERE event_id = ?`, eventID)

	var (
		ca                            domain.CausalAnalysis
		matchedTemplateID, reasoning  sql.NullString
		chain, prompts, affected      sql.NullString
	)
	err := row.Scan(&ca.EventID, &matchedTemplateID, &chain, &ca.Confidence, &prompts, &affected, &reasoning)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get causal analysis for event %s: %w", eventID, err)
	}
	ca.MatchedTemplateID = matchedTemplateID.String
	ca.Reasoning = reasoning.String
	fromJSON(chain, &ca.Chain)
	fromJSON(prompts, &ca.InvestigationPrompts)
	fromJSON(affected, &ca.AffectedIndicators)
	return &ca, nil
}

// GetMatchedTemplateIDs batches the hot-topic detection lookup: it
// returns the non-empty matched_template_id for each event in
// eventIDs that has one, keyed by event id.
func (r *CausalAnalysisRepository) GetMatchedTemplateIDs(ctx context.Context, eventIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(eventIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(eventIDs)), ",")
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}

	rows, err := r.DB().QueryContext(ctx, `
		SELECT event_id, matched_template_id FROM causal_analyses
		WHERE event_id IN (`+placeholders+`) AND matched_template_id IS NOT NULL AND matched_template_id != ''`, args...)
	if err != nil {
		return nil, fmt.Errorf("get matched template ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID, templateID string
		if err := rows.Scan(&eventID, &templateID); err != nil {
			return nil, fmt.Errorf("scan matched template id: %w", err)
		}
		out[eventID] = templateID
	}
	return out, rows.Err()
}

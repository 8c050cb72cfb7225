package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/database/repositories"
	"github.com/M1nhHoang/marketintel/internal/domain"
)

// LLMCallHistoryRepository persists the append-only log of every LLM
// invocation. Written from the gateway's background call sink.
type LLMCallHistoryRepository struct {
	*repositories.BaseRepository
}

// NewLLMCallHistoryRepository constructs an LLMCallHistoryRepository.
func NewLLMCallHistoryRepository(db *sql.DB, log zerolog.Logger) *LLMCallHistoryRepository {
	return &LLMCallHistoryRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "llm_call_history").Logger()),
	}
}

// Create appends a call record. Callers (the gateway's call sink)
// already treat failures here as logged-and-dropped, never retried.
func (r *LLMCallHistoryRepository) Create(ctx context.Context, c domain.LLMCallHistory) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO llm_call_history (id, timestamp, model, messages, response, input_tokens,
			output_tokens, total_tokens, latency_ms, task_type, run_id, is_valid_json, stop_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Timestamp, c.Model, toJSON(c.Messages), nullString(c.Response), c.InputTokens,
		c.OutputTokens, c.TotalTokens, c.LatencyMs, nullString(c.TaskType), nullString(c.RunID),
		boolToInt(c.IsValidJSON), nullString(c.StopReason),
	)
	if err != nil {
		return fmt.Errorf("create llm call history %s: %w", c.ID, err)
	}
	return nil
}

// CountByRunID returns how many calls were logged for a run, useful in
// tests asserting an exact number of LLM invocations.
func (r *LLMCallHistoryRepository) CountByRunID(ctx context.Context, runID string) (int, error) {
	var n int
	err := r.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM llm_call_history WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count llm call history for run %s: %w", runID, err)
	}
	return n, nil
}

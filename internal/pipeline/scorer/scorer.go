// Package scorer implements Stage 2 of the pipeline: per-relevant-event
// scoring with context, causal analysis, and signal/theme linking.
package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
	"github.com/M1nhHoang/marketintel/internal/llmgateway"
)

// Context bundles the cross-run memory the scorer needs: previous-run
// summary and currently active signals/themes. Indicator trends are not
// part of it.
type Context struct {
	Summary       string
	ActiveSignals []domain.Signal
	ActiveThemes  []domain.Theme
}

// SignalOutput is the scorer's proposal for a new or continued signal.
type SignalOutput struct {
	CreateSignal    bool
	Direction       domain.SignalDirection
	TargetIndicator string
	TargetRangeLow  *float64
	TargetRangeHigh *float64
	Confidence      domain.SignalConfidence
	TimeframeDays   int
	Reasoning       string
}

// ThemeLink is the scorer's proposal to attach this event to an
// existing theme, or to spin up a new one.
type ThemeLink struct {
	ExistingThemeID string
	CreateNewTheme  bool
	Name            string
	NameVi          string
	Description     string
}

// Result is the scorer's full output for one event.
type Result struct {
	BaseScore      float64
	ScoreFactors   map[string]float64
	CausalAnalysis domain.CausalAnalysis
	SignalOutput   SignalOutput
	ThemeLink      ThemeLink
	Degraded       bool // true when a gateway error or parse failure forced the default score
}

type rawResult struct {
	BaseScore      float64            `json:"base_score"`
	ScoreFactors   map[string]float64 `json:"score_factors"`
	CausalAnalysis struct {
		MatchedTemplateID    string   `json:"matched_template_id"`
		Chain                []string `json:"chain"`
		Confidence           string   `json:"confidence"`
		InvestigationPrompts []string `json:"investigation_prompts"`
		AffectedIndicators   []string `json:"affected_indicators"`
		Reasoning            string   `json:"reasoning"`
	} `json:"causal_analysis"`
	SignalOutput struct {
		CreateSignal    bool     `json:"create_signal"`
		Direction       string   `json:"direction"`
		TargetIndicator string   `json:"target_indicator"`
		TargetRangeLow  *float64 `json:"target_range_low"`
		TargetRangeHigh *float64 `json:"target_range_high"`
		Confidence      string   `json:"confidence"`
		TimeframeDays   int      `json:"timeframe_days"`
		Reasoning       string   `json:"reasoning"`
	} `json:"signal_output"`
	ThemeLink struct {
		ExistingThemeID string `json:"existing_theme_id"`
		CreateNewTheme  bool   `json:"create_new_theme"`
		Name            string `json:"name"`
		NameVi          string `json:"name_vi"`
		Description     string `json:"description"`
	} `json:"theme_link"`
}

// defaultBaseScore and balanced factors used when the LLM response
// can't be parsed — the pipeline must not halt on one bad event.
const defaultBaseScore = 30.0

// Scorer wraps an llmgateway.Gateway.
type Scorer struct {
	gateway llmgateway.Gateway
	log     zerolog.Logger
}

// New constructs a Scorer.
func New(gateway llmgateway.Gateway, log zerolog.Logger) *Scorer {
	return &Scorer{gateway: gateway, log: log.With().Str("component", "scorer").Logger()}
}

// Score runs one scoring call for ev, degrading gracefully to a
// default score on any parse failure rather than failing the run.
func (s *Scorer) Score(ctx context.Context, ev domain.Event, cc Context, runID string) Result {
	ctx = llmgateway.WithCallContext(ctx, llmgateway.CallContext{TaskType: "score", RunID: runID})

	prompt := buildPrompt(ev, cc)
	resp, err := s.gateway.Generate(ctx, prompt, scorerSystemPrompt, 1000, 0.3)
	if err != nil {
		s.log.Warn().Err(err).Str("event", ev.Title).Msg("scorer call failed, using default score")
		return defaultResult()
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &raw); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Title).Msg("scorer response not valid json, using default score")
		return defaultResult()
	}

	return Result{
		BaseScore:    raw.BaseScore,
		ScoreFactors: raw.ScoreFactors,
		CausalAnalysis: domain.CausalAnalysis{
			EventID:              ev.ID,
			MatchedTemplateID:    raw.CausalAnalysis.MatchedTemplateID,
			Chain:                raw.CausalAnalysis.Chain,
			Confidence:           raw.CausalAnalysis.Confidence,
			InvestigationPrompts: raw.CausalAnalysis.InvestigationPrompts,
			AffectedIndicators:   raw.CausalAnalysis.AffectedIndicators,
			Reasoning:            raw.CausalAnalysis.Reasoning,
		},
		SignalOutput: SignalOutput{
			CreateSignal:    raw.SignalOutput.CreateSignal,
			Direction:       domain.SignalDirection(raw.SignalOutput.Direction),
			TargetIndicator: raw.SignalOutput.TargetIndicator,
			TargetRangeLow:  raw.SignalOutput.TargetRangeLow,
			TargetRangeHigh: raw.SignalOutput.TargetRangeHigh,
			Confidence:      domain.SignalConfidence(raw.SignalOutput.Confidence),
			TimeframeDays:   raw.SignalOutput.TimeframeDays,
			Reasoning:       raw.SignalOutput.Reasoning,
		},
		ThemeLink: ThemeLink{
			ExistingThemeID: raw.ThemeLink.ExistingThemeID,
			CreateNewTheme:  raw.ThemeLink.CreateNewTheme,
			Name:            raw.ThemeLink.Name,
			NameVi:          raw.ThemeLink.NameVi,
			Description:     raw.ThemeLink.Description,
		},
	}
}

// defaultResult is the graceful-degradation path: five named
// contributors summing to defaultBaseScore, per §4.7, plus a
// "reliability" factor of 0 kept out of that sum and Degraded=true, so
// the degradation is visible downstream rather than a silently
// average score.
func defaultResult() Result {
	return Result{
		BaseScore: defaultBaseScore,
		ScoreFactors: map[string]float64{
			"magnitude":     defaultBaseScore / 5,
			"indicators":    defaultBaseScore / 5,
			"novelty":       defaultBaseScore / 5,
			"source_trust":  defaultBaseScore / 5,
			"market_impact": defaultBaseScore / 5,
			"reliability":   0, // marks the degraded default; not part of the sum
		},
		Degraded: true,
	}
}

const scorerSystemPrompt = `You are a market-intelligence analyst. Score the importance of this event ` +
	`for Vietnamese and global macro-financial markets, identify causal chains, and propose signals/themes. ` +
	`Respond with JSON only.`

func buildPrompt(ev domain.Event, cc Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nContent: %s\nCategory: %s\nLinked indicators: %v\n\n",
		ev.Title, firstNonEmpty(ev.Content, ev.Summary), ev.Category, ev.LinkedIndicators)

	if cc.Summary != "" {
		fmt.Fprintf(&sb, "Previous run context:\n%s\n\n", cc.Summary)
	}
	if len(cc.ActiveSignals) > 0 {
		fmt.Fprintf(&sb, "Active signals: %d\n", len(cc.ActiveSignals))
	}
	if len(cc.ActiveThemes) > 0 {
		fmt.Fprintf(&sb, "Active themes: %d\n", len(cc.ActiveThemes))
	}

	sb.WriteString(`Return JSON: {"base_score": number, "score_factors": {...}, "causal_analysis": {...}, "signal_output": {...}, "theme_link": {...}}`)
	return sb.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

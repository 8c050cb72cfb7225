package scorer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
	"github.com/M1nhHoang/marketintel/internal/llmgateway"
)

type fakeGateway struct {
	response llmgateway.Response
	err      error
}

func (g fakeGateway) Generate(ctx context.Context, prompt, system string, maxTokens int, temperature float64) (llmgateway.Response, error) {
	return g.response, g.err
}

func (g fakeGateway) Chat(ctx context.Context, messages []llmgateway.Message, system string, maxTokens int, temperature float64) (llmgateway.Response, error) {
	return g.response, g.err
}

func TestScoreParsesFullResponse(t *testing.T) {
	gw := fakeGateway{response: llmgateway.Response{Content: `{
		"base_score": 82,
		"score_factors": {"magnitude": 30, "novelty": 20},
		"causal_analysis": {"matched_template_id": "rate_hike", "chain": ["SBV hikes", "VND strengthens"], "confidence": "likely"},
		"signal_output": {"create_signal": true, "direction": "up", "target_indicator": "usd_vnd_central", "confidence": "medium", "timeframe_days": 14},
		"theme_link": {"create_new_theme": true, "name": "Rate hikes", "name_vi": "Tang lai suat"}
	}`}}
	s := New(gw, zerolog.Nop())

	result := s.Score(context.Background(), domain.Event{Title: "SBV raises rate"}, Context{}, "run-1")

	if result.Degraded {
		t.Error("Degraded should be false for a valid response")
	}
	if result.BaseScore != 82 {
		t.Errorf("BaseScore = %v, want 82", result.BaseScore)
	}
	if result.CausalAnalysis.MatchedTemplateID != "rate_hike" {
		t.Errorf("MatchedTemplateID = %q, want rate_hike", result.CausalAnalysis.MatchedTemplateID)
	}
	if !result.SignalOutput.CreateSignal {
		t.Error("expected CreateSignal=true")
	}
	if !result.ThemeLink.CreateNewTheme {
		t.Error("expected CreateNewTheme=true")
	}
}

// TestScoreDegradesOnMalformedJSON mirrors spec.md §4.7: on parse
// failure the scorer must substitute a default low-medium score and
// continue rather than halting the run.
func TestScoreDegradesOnMalformedJSON(t *testing.T) {
	gw := fakeGateway{response: llmgateway.Response{Content: `not json at all`}}
	s := New(gw, zerolog.Nop())

	result := s.Score(context.Background(), domain.Event{Title: "garbled response event"}, Context{}, "run-1")

	if !result.Degraded {
		t.Error("expected Degraded=true on malformed JSON")
	}
	if result.BaseScore != defaultBaseScore {
		t.Errorf("BaseScore = %v, want default %v", result.BaseScore, defaultBaseScore)
	}
	sum := 0.0
	for k, v := range result.ScoreFactors {
		if k != "reliability" {
			sum += v
		}
	}
	if sum != defaultBaseScore {
		t.Errorf("score_factors sum (excl. reliability) = %v, want %v", sum, defaultBaseScore)
	}
}

func TestScoreDegradesOnGatewayError(t *testing.T) {
	gw := fakeGateway{err: errors.New("upstream timeout")}
	s := New(gw, zerolog.Nop())

	result := s.Score(context.Background(), domain.Event{Title: "timeout event"}, Context{}, "run-1")

	if !result.Degraded {
		t.Error("expected Degraded=true on gateway error")
	}
	if result.BaseScore != defaultBaseScore {
		t.Errorf("BaseScore = %v, want default %v", result.BaseScore, defaultBaseScore)
	}
}

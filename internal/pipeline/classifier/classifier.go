// Package classifier implements Stage 1 of the pipeline: per-event
// relevance/category classification with JSON-repair retries.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
	"github.com/M1nhHoang/marketintel/internal/llmgateway"
)

// Result is the classifier's output for one event.
type Result struct {
	IsMarketRelevant bool
	Category         string
	LinkedIndicators []string
	Reasoning        string
}

type rawResult struct {
	IsMarketRelevant bool     `json:"is_market_relevant"`
	Category         string   `json:"category"`
	LinkedIndicators []string `json:"linked_indicators"`
	Reasoning        string   `json:"reasoning"`
}

// Classifier wraps an llmgateway.Gateway with a bounded retry/repair
// policy: malformed JSON responses are fed back to the model with the
// parse error until maxRetries is exhausted.
type Classifier struct {
	gateway    llmgateway.Gateway
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

// New constructs a Classifier. maxRetries counts total attempts
// (attempt 1 uses the original prompt; the rest use the fix_json
// meta-prompt).
func New(gateway llmgateway.Gateway, maxRetries int, retryDelay time.Duration, log zerolog.Logger) *Classifier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Classifier{
		gateway:    gateway,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        log.With().Str("component", "classifier").Logger(),
	}
}

// Classify runs the attempt loop for one event, returning
// domain.ErrClassification after exhausting the retry budget.
func (c *Classifier) Classify(ctx context.Context, ev domain.Event, runID string) (Result, error) {
	ctx = llmgateway.WithCallContext(ctx, llmgateway.CallContext{TaskType: "classify", RunID: runID})

	prompt := buildPrompt(ev)
	var lastResponse, lastErrMsg string

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		var currentPrompt string
		if attempt == 1 {
			currentPrompt = prompt
		} else {
			currentPrompt = buildFixJSONPrompt(prompt, lastResponse, lastErrMsg)
		}

		resp, err := c.gateway.Generate(ctx, currentPrompt, classifierSystemPrompt, 500, 0.1)
		if err != nil {
			lastErrMsg = err.Error()
			c.sleepBetweenAttempts(ctx)
			continue
		}

		cleaned := cleanupJSON(resp.Content)
		if cleaned == "" {
			lastResponse = resp.Content
			lastErrMsg = "empty response"
			c.sleepBetweenAttempts(ctx)
			continue
		}

		var raw rawResult
		if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
			lastResponse = resp.Content
			lastErrMsg = err.Error()
			c.sleepBetweenAttempts(ctx)
			continue
		}

		return Result{
			IsMarketRelevant: raw.IsMarketRelevant,
			Category:         raw.Category,
			LinkedIndicators: raw.LinkedIndicators,
			Reasoning:        raw.Reasoning,
		}, nil
	}

	return Result{}, fmt.Errorf("classify event %q: %w", ev.Title, domain.ErrClassification)
}

func (c *Classifier) sleepBetweenAttempts(ctx context.Context) {
	select {
	case <-time.After(c.retryDelay):
	case <-ctx.Done():
	}
}

const classifierSystemPrompt = `You are a market-intelligence analyst. Classify the given news item ` +
	`for relevance to Vietnamese and global macro-financial markets. Respond with JSON only.`

func buildPrompt(ev domain.Event) string {
	content := ev.Content
	if content == "" {
		content = ev.Summary
	}
	return fmt.Sprintf(`Title: %s
Content: %s
Source: %s
Date: %s

Return JSON: {"is_market_relevant": bool, "category": string, "linked_indicators": [string], "reasoning": string}`,
		ev.Title, content, ev.Source, ev.PublishedAt.Format("2006-01-02"))
}

func buildFixJSONPrompt(originalTask, invalidResponse, errMessage string) string {
	return fmt.Sprintf(`Your previous response was not valid JSON.

Original task:
%s

Invalid response:
%s

Error: %s

Return ONLY a single valid JSON object matching the original task's requested schema. No prose, no code fences.`,
		originalTask, invalidResponse, errMessage)
}

var (
	codeFenceRe   = regexp.MustCompile("^```(?:json)?\\s*([\\s\\S]*?)\\s*```$")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// cleanupJSON strips a leading ```json fence and trailing commas before
// `}` / `]`, the common ways a model response fails to be strict JSON.
func cleanupJSON(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	s = trailingComma.ReplaceAllString(s, "$1")
	return s
}

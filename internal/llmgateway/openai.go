package llmgateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGateway targets any OpenAI-compatible remote endpoint via a
// custom BaseURL, grounded on the pack's selivandex-trader-bot manifest
// (a trading system talking to an OpenAI-compatible provider).
type OpenAIGateway struct {
	client *openai.Client
	model  string
	sink   *CallSink
	log    zerolog.Logger
}

// NewOpenAIGateway builds a gateway against baseURL/apiKey, fanning
// every call's outcome into sink for background persistence.
func NewOpenAIGateway(baseURL, apiKey, model string, sink *CallSink, log zerolog.Logger) *OpenAIGateway {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIGateway{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		sink:   sink,
		log:    log.With().Str("component", "llm_gateway").Logger(),
	}
}

// Generate issues a single-turn completion as a one-message chat call.
func (g *OpenAIGateway) Generate(ctx context.Context, prompt, system string, maxTokens int, temperature float64) (Response, error) {
	var messages []Message
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})
	return g.Chat(ctx, messages, "", maxTokens, temperature)
}

// Chat issues a multi-turn completion. Every outcome — success or
// failure — is handed to the call sink; logging never blocks or fails
// the call itself.
func (g *OpenAIGateway) Chat(ctx context.Context, messages []Message, system string, maxTokens int, temperature float64) (Response, error) {
	cc := CallContextFrom(ctx)
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
		Messages:    toOpenAIMessages(messages, system),
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		g.sink.Log(g.model, messages, "", Usage{}, latency, cc, "error")
		return Response{}, fmt.Errorf("llm chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		g.sink.Log(g.model, messages, "", Usage{}, latency, cc, "empty")
		return Response{}, fmt.Errorf("llm chat completion: no choices returned")
	}

	content := resp.Choices[0].Message.Content
	stopReason := string(resp.Choices[0].FinishReason)
	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}

	g.sink.Log(g.model, messages, content, usage, latency, cc, stopReason)

	return Response{
		Content:    content,
		Model:      resp.Model,
		Usage:      usage,
		StopReason: stopReason,
		LatencyMs:  latency,
	}, nil
}

func toOpenAIMessages(messages []Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Package llmgateway exposes a uniform generate/chat interface over a
// remote OpenAI-compatible model, with every call logged in the
// background regardless of whether it succeeds.
package llmgateway

import "context"

// CallContext carries the caller-supplied propagation fields that the
// Python source threaded through process-global contextvars; here they
// travel as an explicit context.Context value.
type CallContext struct {
	TaskType string
	RunID    string
}

type ccKey struct{}

// WithCallContext attaches a CallContext to ctx for the gateway to read
// when logging the call.
func WithCallContext(ctx context.Context, cc CallContext) context.Context {
	return context.WithValue(ctx, ccKey{}, cc)
}

// CallContextFrom extracts the CallContext previously attached with
// WithCallContext, returning the zero value if none was set.
func CallContextFrom(ctx context.Context) CallContext {
	cc, _ := ctx.Value(ccKey{}).(CallContext)
	return cc
}

// Message is one turn in a chat conversation.
type Message struct {
	Role    string
	Content string
}

// Response is the uniform shape returned by Generate and Chat.
type Response struct {
	Content    string
	Model      string
	Usage      Usage
	StopReason string
	LatencyMs  int64
}

// Usage is token accounting for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Gateway is the single interface the pipeline stages depend on.
type Gateway interface {
	Generate(ctx context.Context, prompt, system string, maxTokens int, temperature float64) (Response, error)
	Chat(ctx context.Context, messages []Message, system string, maxTokens int, temperature float64) (Response, error)
}

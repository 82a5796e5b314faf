package ai

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyResponse is returned by clients when the provider answered without
// any content.
var ErrEmptyResponse = errors.New("empty response from model")

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string        // Model identifier to use for generation
	SystemPrompts []string      // System prompts prepended to the request
	Temperature   float64       // Sampling temperature (0.0-2.0)
	Thinking      string        // Extended thinking mode configuration
	Timeout       time.Duration // Per-call deadline, zero means none
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	Calls          int     `json:"calls"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// Add accumulates m into the receiver and refreshes the throughput figure.
func (mm *ModelMetrics) Add(m ModelMetrics) {
	mm.InputTokens += m.InputTokens
	mm.OutputTokens += m.OutputTokens
	mm.TotalTokens += m.TotalTokens
	mm.DurationMs += m.DurationMs
	mm.Calls += max(m.Calls, 1)
	if mm.DurationMs > 0 {
		tps := float64(mm.TotalTokens) * 1000.0 / float64(mm.DurationMs)
		mm.TokenPerSecond = float32(int(tps*100+0.5)) / 100
	}
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
// Higher values (e.g., 1.0) produce more random outputs, while lower values
// (e.g., 0.2) make outputs more focused and deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking returns a GenerateOption that enables extended thinking mode.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// WithTimeout bounds a single model call. A timeout surfaces as an ordinary
// error from the client and is never retried inline.
func WithTimeout(d time.Duration) GenerateOption {
	return func(o *GenerateOptions) {
		o.Timeout = d
	}
}

// ApplyOptions folds opts over the given defaults.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		o(&defaults)
	}
	return defaults
}

// WithDeadline derives a context honoring the option timeout. The returned
// cancel func must always be called.
func (o GenerateOptions) WithDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

// GraphAIClient defines the text generation contract consumed by extraction
// and answer generation.
type GraphAIClient interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error

	ResetMetrics()
	GetMetrics() ModelMetrics
}

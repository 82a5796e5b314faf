package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/OFFIS-RIT/macrokg/pkg/ai"

	"github.com/ollama/ollama/api"
)

const (
	defaultNumCtx  = 4096
	responseBudget = 200
)

func (c *GraphOllamaClient) chat(
	ctx context.Context,
	prompt string,
	format json.RawMessage,
	options ai.GenerateOptions,
) (string, error) {
	ctx, cancel := options.WithDeadline(ctx)
	defer cancel()

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Format:   format,
		Options:  map[string]any{"temperature": options.Temperature},
	}

	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}

	tokens := responseBudget + ai.CountTokens(prompt)
	for _, sys := range options.SystemPrompts {
		tokens += ai.CountTokens(sys)
	}
	if tokens > defaultNumCtx {
		req.Options["num_ctx"] = tokens
	}

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	if final.Message.Content == "" {
		return "", fmt.Errorf("model %s: %w", options.Model, ai.ErrEmptyResponse)
	}
	return final.Message.Content, nil
}

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *GraphOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.answerModel,
		Temperature: 0.3,
	}, opts...)

	return c.chat(ctx, prompt, nil, options)
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *GraphOllamaClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if out == nil {
		return errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	formatBytes, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return fmt.Errorf("schema %s: %w", name, err)
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.1,
	}, opts...)

	content, err := c.chat(ctx, prompt, json.RawMessage(formatBytes), options)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(content, out)
}

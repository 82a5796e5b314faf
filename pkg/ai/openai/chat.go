package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/macrokg/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

var errNoClient = errors.New("openai client not configured (missing api key)")

func (c *GraphOpenAIClient) buildBody(prompt string, options ai.GenerateOptions) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}

	if options.Thinking != "" {
		// gpt-5 models only accept temperature 1.0 with reasoning enabled
		if c.chatURL == "" {
			body.Temperature = openai.Float(1.0)
		}
		body.ReasoningEffort = shared.ReasoningEffort(options.Thinking)
	}
	return body
}

func (c *GraphOpenAIClient) complete(
	ctx context.Context,
	body openai.ChatCompletionNewParams,
	options ai.GenerateOptions,
) (string, error) {
	if c.ChatClient == nil {
		return "", errNoClient
	}

	ctx, cancel := options.WithDeadline(ctx)
	defer cancel()

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response from model: %w", ai.ErrEmptyResponse)
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return "", fmt.Errorf("finish_reason %s: %w", response.Choices[0].FinishReason, ai.ErrEmptyResponse)
	}
	return message, nil
}

// GenerateCompletion sends a single-turn prompt to the chat model and
// returns the generated completion as plain text.
func (c *GraphOpenAIClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.answerModel,
		Temperature: 0.3,
	}, opts...)

	return c.complete(ctx, c.buildBody(prompt, options), options)
}

// GenerateCompletionWithFormat sends a prompt to the chat model and
// unmarshals the response into out, using a strict JSON schema derived from
// the type of out.
//
// Example:
//
//	var out extractionPayload
//	err := client.GenerateCompletionWithFormat(ctx, "extraction", "Macro extraction", prompt, &out)
func (c *GraphOpenAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.1,
	}, opts...)

	body := c.buildBody(prompt, options)
	body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        name,
				Description: openai.String(description),
				Schema:      ai.GenerateSchema(out),
				Strict:      openai.Bool(true),
			},
		},
	}

	message, err := c.complete(ctx, body, options)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(message, out)
}

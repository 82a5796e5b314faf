package openai

import (
	"sync"

	"github.com/OFFIS-RIT/macrokg/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GraphOpenAIClient talks to any OpenAI compatible chat completion endpoint.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	extractionModel string
	answerModel     string

	chatURL string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration parameters for creating
// a new GraphOpenAIClient.
//
// ExtractionModel is the default model for structured extraction calls.
// AnswerModel is the default model for plain completions.
// ChatURL and ChatKey configure the chat/completion API endpoint; an empty
// URL targets api.openai.com.
type NewGraphOpenAIClientParams struct {
	ExtractionModel string
	AnswerModel     string

	ChatURL string
	ChatKey string
}

// NewGraphOpenAIClient creates a client configured with the provided parameters.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		ExtractionModel: "gpt-4o-mini",
//		AnswerModel:     "gpt-4o-mini",
//		ChatKey:         os.Getenv("AI_CHAT_KEY"),
//	})
func NewGraphOpenAIClient(params NewGraphOpenAIClientParams) *GraphOpenAIClient {
	answerModel := params.AnswerModel
	if answerModel == "" {
		answerModel = params.ExtractionModel
	}
	return &GraphOpenAIClient{
		extractionModel: params.ExtractionModel,
		answerModel:     answerModel,
		chatURL:         params.ChatURL,
		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
	}
}

func newOpenaiClient(baseURL string, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// ResetMetrics clears all accumulated token and timing metrics to zero.
func (c *GraphOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	c.metrics = ai.ModelMetrics{}
	c.metricsLock.Unlock()
}

// GetMetrics returns the accumulated metrics since the last reset.
func (c *GraphOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *GraphOpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.Add(m)
}
